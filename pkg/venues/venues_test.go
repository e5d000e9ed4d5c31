package venues

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/intentline-hq/intentline/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	swapAddr  = common.HexToAddress("0x5555555555555555555555555555555555555555")
	assetA    = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	assetB    = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	testSwap  = models.ExecutionStep{Action: models.ActionSwap, Venue: swapAddr, InputAsset: assetA, OutputAsset: assetB, Amount: big.NewInt(100), MinOutput: big.NewInt(95)}
	testStake = models.ExecutionStep{Action: models.ActionStake, Venue: swapAddr, InputAsset: assetA, Amount: big.NewInt(50)}
)

func TestMockVenueSwapFee(t *testing.T) {
	ClearGlobalQuoteCache()
	v := NewMockVenue("mockswap", swapAddr, 200)

	out, err := v.Apply(context.Background(), testSwap)
	require.NoError(t, err)
	// 100 in at a 2% fee settles 98 out
	assert.Equal(t, int64(98), out.Int64())
	assert.Equal(t, int64(100), v.NetApplied(assetA).Int64())
}

func TestMockVenueSwapUsesQuoteRate(t *testing.T) {
	ClearGlobalQuoteCache()
	v := NewMockVenue("mockswap", swapAddr, 0)

	getOrCreateCache().Set(PairKey(assetA, assetB), 2.0)
	out, err := v.Apply(context.Background(), testSwap)
	require.NoError(t, err)
	assert.Equal(t, int64(200), out.Int64())

	ClearGlobalQuoteCache()
	out, err = v.Apply(context.Background(), testSwap)
	require.NoError(t, err)
	assert.Equal(t, int64(100), out.Int64(), "missing quote settles 1:1")
}

func TestMockVenueNonSwapSettlesOneToOne(t *testing.T) {
	ClearGlobalQuoteCache()
	v := NewMockVenue("mockstake", swapAddr, 200)

	out, err := v.Apply(context.Background(), testStake)
	require.NoError(t, err)
	assert.Equal(t, int64(50), out.Int64(), "fee applies to swaps only")
}

func TestMockVenueLiquidityCap(t *testing.T) {
	ClearGlobalQuoteCache()
	v := NewMockVenue("mockswap", swapAddr, 200)
	v.SetLiquidity(big.NewInt(99))

	_, err := v.Apply(context.Background(), testSwap)
	require.Error(t, err)

	var venueErr *VenueError
	require.ErrorAs(t, err, &venueErr)
	assert.Equal(t, "mockswap", venueErr.Venue)
	assert.Contains(t, venueErr.Reason, "liquidity")
	assert.Zero(t, v.NetApplied(assetA).Int64(), "rejected steps settle nothing")
}

func TestMockVenueFailureInjection(t *testing.T) {
	ClearGlobalQuoteCache()
	v := NewMockVenue("mockswap", swapAddr, 0)
	boom := errors.New("venue rpc timeout")

	v.FailWith(boom, 2)

	_, err := v.Apply(context.Background(), testSwap)
	require.NoError(t, err, "first call passes")

	_, err = v.Apply(context.Background(), testSwap)
	assert.ErrorIs(t, err, boom, "second call fails")

	_, err = v.Apply(context.Background(), testSwap)
	assert.NoError(t, err, "injection clears after firing")
	assert.Equal(t, 3, v.ApplyCalls())
}

func TestMockVenueRevert(t *testing.T) {
	ClearGlobalQuoteCache()
	v := NewMockVenue("mockswap", swapAddr, 200)

	out, err := v.Apply(context.Background(), testSwap)
	require.NoError(t, err)
	require.NoError(t, v.Revert(context.Background(), testSwap, out))

	assert.Zero(t, v.NetApplied(assetA).Int64(), "revert compensates the applied amount")
	assert.Equal(t, 1, v.RevertCalls())
}

func TestMockVenueRespectsContext(t *testing.T) {
	ClearGlobalQuoteCache()
	v := NewMockVenue("mockswap", swapAddr, 200)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Apply(ctx, testSwap)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, v.Revert(ctx, testSwap, big.NewInt(98)), context.Canceled)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.Lookup(models.ActionSwap)
	assert.False(t, ok)

	swapVenue := NewMockVenue("mockswap", swapAddr, 200)
	lendAddr := common.HexToAddress("0x6666666666666666666666666666666666666666")
	lendVenue := NewMockVenue("mocklend", lendAddr, 0)

	reg.Register(models.ActionSwap, swapVenue)
	for _, a := range ActionsFor("mocklend") {
		reg.Register(a, lendVenue)
	}

	got, ok := reg.Lookup(models.ActionSwap)
	require.True(t, ok)
	assert.Equal(t, "mockswap", got.Name())

	got, ok = reg.Lookup(models.ActionBorrow)
	require.True(t, ok)
	assert.Equal(t, "mocklend", got.Name())

	_, ok = reg.Lookup(models.ActionStake)
	assert.False(t, ok)

	assert.Len(t, reg.Venues(), 2, "venues are deduplicated across actions")

	byName, ok := reg.ByName("mocklend")
	require.True(t, ok)
	assert.Equal(t, lendAddr, byName.Address())

	_, ok = reg.ByName("mockstake")
	assert.False(t, ok)
}

func TestCatalog(t *testing.T) {
	assert.ElementsMatch(t, []models.ActionType{models.ActionSwap}, ActionsFor("mockswap"))
	assert.Len(t, ActionsFor("mocklend"), 3)
	assert.Len(t, ActionsFor("mockstake"), 2)
	assert.Nil(t, ActionsFor("unknown"))

	// every defined action is covered by exactly one built-in venue
	covered := make(map[models.ActionType]int)
	for _, name := range VenueList {
		for _, a := range ActionsFor(name) {
			covered[a]++
		}
	}
	for _, a := range models.Actions {
		assert.Equal(t, 1, covered[a], "action %s", a)
	}
}
