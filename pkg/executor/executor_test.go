package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intentline-hq/intentline/pkg/events"
	"github.com/intentline-hq/intentline/pkg/ledger"
	"github.com/intentline-hq/intentline/pkg/models"
	"github.com/intentline-hq/intentline/pkg/plan"
	"github.com/intentline-hq/intentline/pkg/roles"
	"github.com/intentline-hq/intentline/pkg/stats"
	"github.com/intentline-hq/intentline/pkg/testutil"
	"github.com/intentline-hq/intentline/pkg/venues"
)

var (
	ownerAddr        = common.HexToAddress("0x1111111111111111111111111111111111111111")
	orchestratorAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	strangerAddr     = common.HexToAddress("0x3333333333333333333333333333333333333333")
	swapVenueAddr    = common.HexToAddress("0xaaaa111111111111111111111111111111111111")
	lendVenueAddr    = common.HexToAddress("0xaaaa222222222222222222222222222222222222")
	stakeVenueAddr   = common.HexToAddress("0xaaaa333333333333333333333333333333333333")
	usdcAddr         = common.HexToAddress("0xbbbb111111111111111111111111111111111111")
	wethAddr         = common.HexToAddress("0xbbbb222222222222222222222222222222222222")
)

type harness struct {
	orch  *Orchestrator
	ldg   *ledger.Ledger
	vreg  *venues.Registry
	stats *stats.Service
	sink  *events.MemorySink
	swap  *venues.MockVenue
	lend  *venues.MockVenue
	stake *venues.MockVenue
}

func defaultBreakers() BreakerConfig {
	return BreakerConfig{Enabled: true, Threshold: 3, Window: time.Second, ResetTimeout: time.Minute}
}

func newHarness(t *testing.T, breakerCfg BreakerConfig) *harness {
	t.Helper()
	venues.ClearGlobalQuoteCache()

	reg, err := roles.NewRegistry(ownerAddr)
	require.NoError(t, err)
	require.NoError(t, reg.AddExecutor(orchestratorAddr, ownerAddr))

	sink := events.NewMemorySink()
	ldg := ledger.New(ledger.NewMemoryStore(), reg, sink, nil)

	vreg := venues.NewRegistry()
	swap := venues.NewMockVenue("mockswap", swapVenueAddr, 200)
	lend := venues.NewMockVenue("mocklend", lendVenueAddr, 0)
	stake := venues.NewMockVenue("mockstake", stakeVenueAddr, 0)
	vreg.Register(models.ActionSwap, swap)
	vreg.Register(models.ActionSupply, lend)
	vreg.Register(models.ActionBorrow, lend)
	vreg.Register(models.ActionWithdraw, lend)
	vreg.Register(models.ActionStake, stake)
	vreg.Register(models.ActionUnstake, stake)

	st := stats.NewService()
	orch := New(ldg, reg, vreg, st, nil, orchestratorAddr, breakerCfg)
	return &harness{orch: orch, ldg: ldg, vreg: vreg, stats: st, sink: sink, swap: swap, lend: lend, stake: stake}
}

func (h *harness) registerParsed(t *testing.T, budget uint64) common.Hash {
	t.Helper()
	id, err := h.ldg.Register(ownerAddr, "swap 100 USDC for WETH", nil, budget)
	require.NoError(t, err)
	require.NoError(t, h.ldg.AttachPlan(id, []byte(`plan`), orchestratorAddr))
	return id
}

func swapStep(amount, minOutput int64) models.ExecutionStep {
	return models.ExecutionStep{
		Action:      models.ActionSwap,
		Venue:       swapVenueAddr,
		InputAsset:  usdcAddr,
		OutputAsset: wethAddr,
		Amount:      big.NewInt(amount),
		MinOutput:   big.NewInt(minOutput),
	}
}

func lendStep(action models.ActionType, amount int64) models.ExecutionStep {
	return models.ExecutionStep{
		Action:      action,
		Venue:       lendVenueAddr,
		InputAsset:  usdcAddr,
		OutputAsset: usdcAddr,
		Amount:      big.NewInt(amount),
	}
}

func stakeStep(amount int64) models.ExecutionStep {
	return models.ExecutionStep{
		Action:      models.ActionStake,
		Venue:       stakeVenueAddr,
		InputAsset:  wethAddr,
		OutputAsset: wethAddr,
		Amount:      big.NewInt(amount),
	}
}

func TestExecuteCompletesSwap(t *testing.T) {
	h := newHarness(t, defaultBreakers())
	id := h.registerParsed(t, 150000)
	steps := []models.ExecutionStep{swapStep(100, 95)}

	total, err := h.orch.Execute(context.Background(), id, steps, ownerAddr)
	require.NoError(t, err)
	testutil.AssertBigIntEqual(t, big.NewInt(98), total)

	intent, err := h.ldg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, intent.Status)
	assert.Equal(t, uint64(1), intent.ExecutionCount)
	require.NotNil(t, intent.ExecutedAt)
	assert.NotEqual(t, common.Hash{}, intent.ExecutionCommitment)
	assert.True(t, VerifyCommitment(id, 1, steps, big.NewInt(98), intent.ExecutionCommitment))

	totalRuns, successful, failed := h.stats.GetStats()
	assert.Equal(t, uint64(1), totalRuns)
	assert.Equal(t, uint64(1), successful)
	assert.Equal(t, uint64(0), failed)

	receipt, ok := h.stats.GetLastReceipt(id)
	require.True(t, ok)
	assert.True(t, receipt.Success)
	assert.Equal(t, uint64(1), receipt.Attempt)
	testutil.AssertBigIntEqual(t, big.NewInt(98), receipt.TotalOutput)
	assert.Equal(t, plan.BaseCost+plan.CostSwap, receipt.ResourceUsed)
	assert.Equal(t, receipt.ResourceAtStart+receipt.ResourceUsed, receipt.ResourceAtEnd)

	executed := h.sink.ByType(events.TypeExecuted)
	require.Len(t, executed, 1)
	assert.Equal(t, uint64(1), executed[0].Attempt)
	assert.Equal(t, intent.ExecutionCommitment.Hex(), executed[0].Commitment)
}

func TestExecuteMultiStepTotal(t *testing.T) {
	h := newHarness(t, defaultBreakers())
	id := h.registerParsed(t, 200000)
	steps := []models.ExecutionStep{swapStep(100, 95), lendStep(models.ActionSupply, 50)}

	total, err := h.orch.Execute(context.Background(), id, steps, ownerAddr)
	require.NoError(t, err)
	testutil.AssertBigIntEqual(t, big.NewInt(148), total)

	intent, err := h.ldg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, intent.Status)
	assert.Equal(t, 1, h.swap.ApplyCalls())
	assert.Equal(t, 1, h.lend.ApplyCalls())
}

// orderedVenue records apply and revert calls into a shared log so tests
// can assert compensation ordering across venues
type orderedVenue struct {
	*venues.MockVenue
	log *[]string
}

func (v *orderedVenue) Apply(ctx context.Context, step models.ExecutionStep) (*big.Int, error) {
	out, err := v.MockVenue.Apply(ctx, step)
	if err == nil {
		*v.log = append(*v.log, "apply:"+string(step.Action))
	}
	return out, err
}

func (v *orderedVenue) Revert(ctx context.Context, step models.ExecutionStep, realized *big.Int) error {
	*v.log = append(*v.log, "revert:"+string(step.Action))
	return v.MockVenue.Revert(ctx, step, realized)
}

func TestExecuteRollsBackInReverseOrder(t *testing.T) {
	h := newHarness(t, defaultBreakers())

	var log []string
	h.vreg.Register(models.ActionSwap, &orderedVenue{MockVenue: h.swap, log: &log})
	h.vreg.Register(models.ActionSupply, &orderedVenue{MockVenue: h.lend, log: &log})
	h.stake.FailWith(&venues.VenueError{Venue: "mockstake", Reason: "staking pool at capacity"}, 1)

	id := h.registerParsed(t, 400000)
	steps := []models.ExecutionStep{
		swapStep(100, 95),
		lendStep(models.ActionSupply, 50),
		stakeStep(25),
		lendStep(models.ActionBorrow, 10),
		lendStep(models.ActionWithdraw, 10),
	}

	_, err := h.orch.Execute(context.Background(), id, steps, ownerAddr)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.FailureNamed, execErr.Kind)
	assert.Equal(t, "venue_rejected", execErr.Reason)

	intent, err := h.ldg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, intent.Status)
	assert.Equal(t, uint64(1), intent.ExecutionCount)
	require.NotNil(t, intent.ExecutedAt)

	// Steps four and five never ran, and the two applied steps unwound
	// in reverse order
	assert.Equal(t, []string{"apply:swap", "apply:supply", "revert:supply", "revert:swap"}, log)
	assert.Equal(t, 1, h.swap.ApplyCalls())
	assert.Equal(t, 1, h.lend.ApplyCalls())
	assert.Equal(t, 1, h.stake.ApplyCalls())
	assert.Equal(t, 0, h.stake.RevertCalls())
	testutil.AssertBigIntEqual(t, big.NewInt(0), h.swap.NetApplied(usdcAddr))
	testutil.AssertBigIntEqual(t, big.NewInt(0), h.lend.NetApplied(usdcAddr))

	_, successful, failed := h.stats.GetStats()
	assert.Equal(t, uint64(0), successful)
	assert.Equal(t, uint64(1), failed)

	receipt, ok := h.stats.GetLastReceipt(id)
	require.True(t, ok)
	assert.False(t, receipt.Success)
	assert.Equal(t, models.FailureNamed, receipt.FailureKind)
	assert.Contains(t, receipt.FailureReason, "staking pool at capacity")
	assert.Nil(t, receipt.TotalOutput)

	failures := h.sink.ByType(events.TypeExecutionFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, models.FailureNamed, failures[0].FailureKind)
}

func TestExecuteSlippageFailure(t *testing.T) {
	h := newHarness(t, defaultBreakers())
	id := h.registerParsed(t, 150000)

	// Fee of 200 bps realizes 98 on an input of 100, below the floor
	_, err := h.orch.Execute(context.Background(), id, []models.ExecutionStep{swapStep(100, 99)}, ownerAddr)
	require.ErrorIs(t, err, models.ErrSlippageExceeded)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.FailureNamed, execErr.Kind)
	assert.Equal(t, "slippage_exceeded", execErr.Reason)

	intent, err := h.ldg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, intent.Status)
	assert.Equal(t, uint64(1), intent.ExecutionCount)

	// The swap applied before the check, so it must have been reverted
	assert.Equal(t, 1, h.swap.RevertCalls())
	testutil.AssertBigIntEqual(t, big.NewInt(0), h.swap.NetApplied(usdcAddr))
}

func TestExecuteUnauthorized(t *testing.T) {
	h := newHarness(t, defaultBreakers())
	id := h.registerParsed(t, 150000)

	_, err := h.orch.Execute(context.Background(), id, []models.ExecutionStep{swapStep(100, 95)}, strangerAddr)
	require.ErrorIs(t, err, models.ErrUnauthorized)

	intent, err := h.ldg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusParsed, intent.Status)
	assert.Equal(t, uint64(0), intent.ExecutionCount)
	assert.Equal(t, 0, h.swap.ApplyCalls())

	totalRuns, _, _ := h.stats.GetStats()
	assert.Equal(t, uint64(0), totalRuns)
}

func TestExecutePreflightRejections(t *testing.T) {
	t.Run("missing intent", func(t *testing.T) {
		h := newHarness(t, defaultBreakers())
		_, err := h.orch.Execute(context.Background(), common.Hash{0xde, 0xad}, []models.ExecutionStep{swapStep(100, 95)}, ownerAddr)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("pending intent is not executable", func(t *testing.T) {
		h := newHarness(t, defaultBreakers())
		id, err := h.ldg.Register(ownerAddr, "swap 100 USDC for WETH", nil, 150000)
		require.NoError(t, err)

		_, err = h.orch.Execute(context.Background(), id, []models.ExecutionStep{swapStep(100, 95)}, ownerAddr)
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("completed intent is not executable", func(t *testing.T) {
		h := newHarness(t, defaultBreakers())
		id := h.registerParsed(t, 150000)
		_, err := h.orch.Execute(context.Background(), id, []models.ExecutionStep{swapStep(100, 95)}, ownerAddr)
		require.NoError(t, err)

		_, err = h.orch.Execute(context.Background(), id, []models.ExecutionStep{swapStep(100, 95)}, ownerAddr)
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("empty plan", func(t *testing.T) {
		h := newHarness(t, defaultBreakers())
		id := h.registerParsed(t, 150000)

		_, err := h.orch.Execute(context.Background(), id, nil, ownerAddr)
		assert.ErrorIs(t, err, plan.ErrTooFewSteps)

		intent, err := h.ldg.Get(id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusParsed, intent.Status)
	})

	t.Run("budget exceeded", func(t *testing.T) {
		h := newHarness(t, defaultBreakers())
		id := h.registerParsed(t, 100000)

		_, err := h.orch.Execute(context.Background(), id, []models.ExecutionStep{swapStep(100, 95)}, ownerAddr)
		assert.ErrorIs(t, err, models.ErrBudgetExceeded)

		intent, err := h.ldg.Get(id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusParsed, intent.Status)
		assert.Equal(t, uint64(0), intent.ExecutionCount)
	})

	t.Run("venue mismatch", func(t *testing.T) {
		h := newHarness(t, defaultBreakers())
		id := h.registerParsed(t, 150000)

		step := swapStep(100, 95)
		step.Venue = lendVenueAddr
		_, err := h.orch.Execute(context.Background(), id, []models.ExecutionStep{step}, ownerAddr)
		require.ErrorIs(t, err, models.ErrInvalidInput)

		// The mismatch surfaced after the claim, so the attempt settled
		// as a named failure
		intent, err := h.ldg.Get(id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFailed, intent.Status)
		assert.Equal(t, uint64(1), intent.ExecutionCount)
	})
}

func TestExecuteRetryAfterFailure(t *testing.T) {
	h := newHarness(t, defaultBreakers())
	id := h.registerParsed(t, 150000)
	steps := []models.ExecutionStep{swapStep(100, 95)}

	h.swap.FailWith(errors.New("venue rpc: connection reset"), 1)
	_, err := h.orch.Execute(context.Background(), id, steps, ownerAddr)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.FailureUnknown, execErr.Kind)
	assert.Equal(t, "unknown_error", execErr.Reason)

	intent, err := h.ldg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, intent.Status)
	assert.Equal(t, uint64(1), intent.ExecutionCount)

	// Failed intents stay executable, so the retry runs as attempt two
	total, err := h.orch.Execute(context.Background(), id, steps, ownerAddr)
	require.NoError(t, err)
	testutil.AssertBigIntEqual(t, big.NewInt(98), total)

	intent, err = h.ldg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, intent.Status)
	assert.Equal(t, uint64(2), intent.ExecutionCount)

	receipt, ok := h.stats.GetLastReceipt(id)
	require.True(t, ok)
	assert.True(t, receipt.Success)
	assert.Equal(t, uint64(2), receipt.Attempt)

	assert.InDelta(t, 50.0, h.stats.GetSuccessRate(), 0.001)
}

func TestExecuteVenueSuspension(t *testing.T) {
	cfg := BreakerConfig{Enabled: true, Threshold: 2, Window: time.Minute, ResetTimeout: time.Hour}
	h := newHarness(t, cfg)
	id := h.registerParsed(t, 150000)
	steps := []models.ExecutionStep{swapStep(100, 95)}

	h.swap.FailWith(errors.New("venue rpc: connection reset"), 0)

	for i := 0; i < 2; i++ {
		_, err := h.orch.Execute(context.Background(), id, steps, ownerAddr)
		require.Error(t, err)
		require.NotErrorIs(t, err, models.ErrVenueSuspended)
	}
	assert.Equal(t, 2, h.swap.ApplyCalls())
	assert.True(t, h.orch.BreakerStates()["mockswap"].Open)

	// Breaker is open now, so the third attempt fails without reaching
	// the venue
	_, err := h.orch.Execute(context.Background(), id, steps, ownerAddr)
	require.ErrorIs(t, err, models.ErrVenueSuspended)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "venue_suspended", execErr.Reason)
	assert.Equal(t, 2, h.swap.ApplyCalls())

	// Operator reset plus a recovered venue lets the intent complete
	require.True(t, h.orch.ResetBreaker("mockswap"))
	h.swap.FailWith(nil, 0)

	total, err := h.orch.Execute(context.Background(), id, steps, ownerAddr)
	require.NoError(t, err)
	testutil.AssertBigIntEqual(t, big.NewInt(98), total)

	assert.False(t, h.orch.ResetBreaker("nosuchvenue"))
}

func TestExecuteInterrupted(t *testing.T) {
	h := newHarness(t, defaultBreakers())
	id := h.registerParsed(t, 150000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.orch.Execute(ctx, id, []models.ExecutionStep{swapStep(100, 95)}, ownerAddr)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.FailureUnknown, execErr.Kind)
	assert.Equal(t, "interrupted", execErr.Reason)

	// The attempt still settled instead of leaving the intent executing
	intent, err := h.ldg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, intent.Status)
	assert.Equal(t, uint64(1), intent.ExecutionCount)
}

func TestExecuteRejectsConcurrentClaim(t *testing.T) {
	h := newHarness(t, defaultBreakers())
	id := h.registerParsed(t, 150000)
	steps := []models.ExecutionStep{swapStep(100, 95)}

	require.True(t, h.orch.inflight.Begin(id, ownerAddr))
	assert.Equal(t, 1, h.orch.InflightCount())

	_, err := h.orch.Execute(context.Background(), id, steps, ownerAddr)
	require.ErrorIs(t, err, models.ErrInvalidState)

	intent, err := h.ldg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusParsed, intent.Status)

	h.orch.inflight.End(id)
	assert.Equal(t, 0, h.orch.InflightCount())

	_, err = h.orch.Execute(context.Background(), id, steps, ownerAddr)
	require.NoError(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		kind  models.FailureKind
		label string
	}{
		{"slippage", fmt.Errorf("step 0: %w", models.ErrSlippageExceeded), models.FailureNamed, "slippage_exceeded"},
		{"budget", fmt.Errorf("estimate: %w", models.ErrBudgetExceeded), models.FailureNamed, "budget_exceeded"},
		{"suspended", fmt.Errorf("step 0: %w", models.ErrVenueSuspended), models.FailureNamed, "venue_suspended"},
		{"invalid step", fmt.Errorf("step 0: %w", models.ErrInvalidInput), models.FailureNamed, "invalid_step"},
		{"venue rejection", fmt.Errorf("step 0: %w", &venues.VenueError{Venue: "mockswap", Reason: "insufficient liquidity"}), models.FailureNamed, "venue_rejected"},
		{"cancelled", fmt.Errorf("step 0: %w", context.Canceled), models.FailureUnknown, "interrupted"},
		{"deadline", fmt.Errorf("step 0: %w", context.DeadlineExceeded), models.FailureUnknown, "interrupted"},
		{"anything else", errors.New("venue rpc: connection reset"), models.FailureUnknown, "unknown_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, label := Classify(tt.err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.label, label)
		})
	}
}

func TestCommitment(t *testing.T) {
	id := common.Hash{0x01}
	steps := []models.ExecutionStep{swapStep(100, 95), stakeStep(25)}
	total := big.NewInt(123)

	first := Commitment(id, 1, steps, total)
	assert.Equal(t, first, Commitment(id, 1, steps, total))
	assert.NotEqual(t, first, Commitment(id, 2, steps, total))
	assert.NotEqual(t, first, Commitment(common.Hash{0x02}, 1, steps, total))
	assert.NotEqual(t, first, Commitment(id, 1, steps, big.NewInt(124)))
	assert.NotEqual(t, first, Commitment(id, 1, steps[:1], total))

	assert.True(t, VerifyCommitment(id, 1, steps, total, first))
	assert.False(t, VerifyCommitment(id, 2, steps, total, first))
}

func TestResourceMeter(t *testing.T) {
	var m resourceMeter
	assert.Equal(t, uint64(0), m.Reading())
	assert.Equal(t, uint64(21000), m.Charge(21000))
	assert.Equal(t, uint64(141000), m.Charge(120000))
	assert.Equal(t, uint64(141000), m.Reading())
}

func TestInflightTracker(t *testing.T) {
	it := newInflightTracker()
	id := common.Hash{0x01}

	assert.True(t, it.Begin(id, ownerAddr))
	assert.False(t, it.Begin(id, strangerAddr))
	assert.Equal(t, 1, it.Count())

	it.End(id)
	assert.Equal(t, 0, it.Count())
	assert.True(t, it.Begin(id, ownerAddr))
}
