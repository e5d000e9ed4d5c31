package venues

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/intentline-hq/intentline/pkg/models"
)

// MockVenue simulates an external venue. Swaps settle at the cached pair
// rate minus the configured fee; every other action settles one-to-one.
// Net applied amounts are tracked per input asset so rollbacks can be
// verified, and an optional per-step liquidity cap produces venue
// rejections.
type MockVenue struct {
	name    string
	address common.Address
	feeBps  int64
	quotes  *QuoteCache

	mu          sync.Mutex
	liquidity   *big.Int
	failErr     error
	failIn      int
	applyCalls  int
	revertCalls int
	applied     map[common.Address]*big.Int
}

var _ Venue = (*MockVenue)(nil)

// NewMockVenue creates a mock venue with the given fee in basis points.
// The global quote cache supplies pair rates; missing quotes settle 1:1.
func NewMockVenue(name string, address common.Address, feeBps int64) *MockVenue {
	return &MockVenue{
		name:    name,
		address: address,
		feeBps:  feeBps,
		quotes:  getOrCreateCache(),
		applied: make(map[common.Address]*big.Int),
	}
}

func (v *MockVenue) Name() string            { return v.name }
func (v *MockVenue) Address() common.Address { return v.address }

// SetLiquidity caps the per-step amount the venue settles. Steps above the
// cap are rejected with a venue error. A nil limit lifts the cap.
func (v *MockVenue) SetLiquidity(limit *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.liquidity = limit
}

// FailWith makes the venue fail an upcoming Apply call with err. n counts
// calls from now (1 fails the next call); 0 fails every call. A nil err
// clears the injection.
func (v *MockVenue) FailWith(err error, n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failErr = err
	v.failIn = n
}

func (v *MockVenue) Apply(ctx context.Context, step models.ExecutionStep) (*big.Int, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.applyCalls++
	if v.failErr != nil {
		switch {
		case v.failIn == 0:
			return nil, v.failErr
		case v.failIn == 1:
			err := v.failErr
			v.failErr = nil
			return nil, err
		default:
			v.failIn--
		}
	}
	if v.liquidity != nil && step.Amount.Cmp(v.liquidity) > 0 {
		return nil, &VenueError{Venue: v.name, Reason: "insufficient liquidity"}
	}

	out := new(big.Int).Set(step.Amount)
	if step.Action == models.ActionSwap {
		out = v.swapOutput(step)
	}

	v.track(step.InputAsset, step.Amount)
	return out, nil
}

func (v *MockVenue) Revert(ctx context.Context, step models.ExecutionStep, _ *big.Int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.revertCalls++
	v.track(step.InputAsset, new(big.Int).Neg(step.Amount))
	return nil
}

// swapOutput applies the fee and the cached pair rate. Callers hold v.mu.
func (v *MockVenue) swapOutput(step models.ExecutionStep) *big.Int {
	out := new(big.Int).Mul(step.Amount, big.NewInt(10000-v.feeBps))
	out.Div(out, big.NewInt(10000))

	if rate, ok := v.quotes.Get(PairKey(step.InputAsset, step.OutputAsset)); ok && rate != 1.0 {
		scaled := new(big.Float).SetInt(out)
		scaled.Mul(scaled, big.NewFloat(rate))
		out, _ = scaled.Int(nil)
	}
	return out
}

// track adjusts the net applied amount for an asset. Callers hold v.mu.
func (v *MockVenue) track(asset common.Address, delta *big.Int) {
	cur, ok := v.applied[asset]
	if !ok {
		cur = new(big.Int)
		v.applied[asset] = cur
	}
	cur.Add(cur, delta)
}

// NetApplied returns the venue's net settled amount for an asset
func (v *MockVenue) NetApplied(asset common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	cur, ok := v.applied[asset]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(cur)
}

// ApplyCalls returns the number of Apply calls the venue has seen
func (v *MockVenue) ApplyCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.applyCalls
}

// RevertCalls returns the number of Revert calls the venue has seen
func (v *MockVenue) RevertCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.revertCalls
}
