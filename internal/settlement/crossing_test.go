package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blendtrade/auctiond/internal/domain"
)

// buyAt builds a buy order with the given implied limit price in ticks for
// one unit of base: amountIn is quote spent, minAmountOut the base floor.
func buyAt(submitter string, priceTicks, priorityBid int64, rank int) domain.Order {
	return domain.Order{
		Submitter:    submitter,
		Side:         domain.OrderSideBuy,
		AmountIn:     priceTicks,
		MinAmountOut: domain.PriceScale,
		PriorityBid:  priorityBid,
		RevealRank:   rank,
	}
}

// sellAt builds a sell order of one base unit with the given implied limit
// price in ticks: amountIn is base sold, minAmountOut the quote floor.
func sellAt(submitter string, priceTicks, priorityBid int64, rank int) domain.Order {
	return domain.Order{
		Submitter:    submitter,
		Side:         domain.OrderSideSell,
		AmountIn:     domain.PriceScale,
		MinAmountOut: priceTicks,
		PriorityBid:  priorityBid,
		RevealRank:   rank,
	}
}

// crossedBook is three buys and three sells whose max-volume interval is
// [2000000, 2005000] ticks, so the midpoint 2002500 clears two units.
func crossedBook() []domain.Order {
	return []domain.Order{
		buyAt("0xA1", 2_010_000, 0, 0),
		buyAt("0xA2", 2_005_000, 0, 1),
		buyAt("0xA3", 1_995_000, 0, 2),
		sellAt("0xB1", 1_990_000, 0, 3),
		sellAt("0xB2", 2_000_000, 0, 4),
		sellAt("0xB3", 2_015_000, 0, 5),
	}
}

func TestClearMidpointOfTieInterval(t *testing.T) {
	res, err := Clear(7, crossedBook())
	require.NoError(t, err)

	stl := res.Settlement
	assert.Equal(t, int64(7), stl.BatchID)
	assert.Equal(t, int64(2_002_500), stl.ClearingPriceTicks)
	assert.Equal(t, 2*domain.PriceScale, stl.TotalVolume)
	assert.Len(t, stl.Fills, 6, "every revealed order gets exactly one fill")

	assert.ElementsMatch(t, []string{"0xA3", "0xB3"}, res.PricedOut)
}

func TestClearFillAmounts(t *testing.T) {
	res, err := Clear(1, crossedBook())
	require.NoError(t, err)
	stl := res.Settlement

	// Buys receive base at the uniform price.
	f, ok := stl.FillFor("0xA1")
	require.True(t, ok)
	assert.True(t, f.Filled)
	assert.Equal(t, int64(1_003_745), f.AmountReceived)

	f, ok = stl.FillFor("0xA2")
	require.True(t, ok)
	assert.True(t, f.Filled)
	assert.Equal(t, int64(1_001_248), f.AmountReceived)

	// Sells receive quote at the same price: one base unit each.
	for _, s := range []string{"0xB1", "0xB2"} {
		f, ok = stl.FillFor(s)
		require.True(t, ok)
		assert.True(t, f.Filled)
		assert.Equal(t, int64(2_002_500), f.AmountReceived, "sell %s", s)
	}

	// Priced-out orders carry an empty fill, never a partial one.
	for _, s := range []string{"0xA3", "0xB3"} {
		f, ok = stl.FillFor(s)
		require.True(t, ok)
		assert.False(t, f.Filled)
		assert.Zero(t, f.AmountReceived)
		assert.Zero(t, f.ExecutionPosition)
	}
}

func TestClearUniformPrice(t *testing.T) {
	res, err := Clear(1, crossedBook())
	require.NoError(t, err)
	stl := res.Settlement

	// Every filled order's amounts must be consistent with the single
	// clearing price; no order trades at its own limit.
	for _, f := range stl.Fills {
		if !f.Filled {
			continue
		}
		switch f.Side {
		case domain.OrderSideBuy:
			assert.Equal(t, domain.MulDiv(f.AmountIn, domain.PriceScale, stl.ClearingPriceTicks), f.AmountReceived)
		case domain.OrderSideSell:
			assert.Equal(t, domain.MulDiv(f.AmountIn, stl.ClearingPriceTicks, domain.PriceScale), f.AmountReceived)
		}
	}
}

func TestClearDeterministic(t *testing.T) {
	a, err := Clear(3, crossedBook())
	require.NoError(t, err)
	b, err := Clear(3, crossedBook())
	require.NoError(t, err)

	assert.Equal(t, a, b, "same orders must settle identically")
}

func TestClearOrderIndependentOfInputOrder(t *testing.T) {
	orders := crossedBook()
	reversed := make([]domain.Order, len(orders))
	for i, o := range orders {
		reversed[len(orders)-1-i] = o
	}

	a, err := Clear(3, orders)
	require.NoError(t, err)
	b, err := Clear(3, reversed)
	require.NoError(t, err)

	assert.Equal(t, a.Settlement.ClearingPriceTicks, b.Settlement.ClearingPriceTicks)
	assert.Equal(t, a.Settlement.TotalVolume, b.Settlement.TotalVolume)
	for _, f := range a.Settlement.Fills {
		got, ok := b.Settlement.FillFor(f.Submitter)
		require.True(t, ok)
		assert.Equal(t, f, got, "fill for %s differs under input reordering", f.Submitter)
	}
}

func TestClearPriorityBidRanking(t *testing.T) {
	orders := []domain.Order{
		buyAt("0xA1", 2_010_000, 100, 0),
		buyAt("0xA2", 2_010_000, 900, 1),
		sellAt("0xB1", 1_990_000, 500, 2),
		sellAt("0xB2", 1_990_000, 500, 3),
	}

	res, err := Clear(1, orders)
	require.NoError(t, err)
	stl := res.Settlement

	pos := func(s string) int {
		f, ok := stl.FillFor(s)
		require.True(t, ok)
		require.True(t, f.Filled)
		return f.ExecutionPosition
	}

	// Highest priority bid first; equal bids break by reveal order.
	assert.Equal(t, 1, pos("0xA2"))
	assert.Equal(t, 2, pos("0xB1"))
	assert.Equal(t, 3, pos("0xB2"))
	assert.Equal(t, 4, pos("0xA1"))
}

func TestClearPriorityDoesNotMovePrice(t *testing.T) {
	plain := crossedBook()

	prioritized := crossedBook()
	for i := range prioritized {
		prioritized[i].PriorityBid = int64(1000 * (i + 1))
	}

	a, err := Clear(1, plain)
	require.NoError(t, err)
	b, err := Clear(1, prioritized)
	require.NoError(t, err)

	assert.Equal(t, a.Settlement.ClearingPriceTicks, b.Settlement.ClearingPriceTicks,
		"priority bids order execution, they never change the clearing price")
	assert.Equal(t, a.Settlement.TotalVolume, b.Settlement.TotalVolume)
}

func TestClearOneSidedBook(t *testing.T) {
	orders := []domain.Order{
		buyAt("0xA1", 2_000_000, 0, 0),
		buyAt("0xA2", 2_010_000, 0, 1),
	}

	res, err := Clear(1, orders)
	require.NoError(t, err)

	assert.Zero(t, res.Settlement.ClearingPriceTicks)
	assert.Zero(t, res.Settlement.TotalVolume)
	assert.ElementsMatch(t, []string{"0xA1", "0xA2"}, res.PricedOut)
}

func TestClearNonCrossingBook(t *testing.T) {
	// Best bid below best ask: no trade at any price.
	orders := []domain.Order{
		buyAt("0xA1", 1_900_000, 0, 0),
		sellAt("0xB1", 2_100_000, 0, 1),
	}

	res, err := Clear(1, orders)
	require.NoError(t, err)

	assert.Zero(t, res.Settlement.TotalVolume)
	assert.Len(t, res.PricedOut, 2)
}

func TestClearEmptyBatch(t *testing.T) {
	res, err := Clear(1, nil)
	require.NoError(t, err)

	assert.Zero(t, res.Settlement.ClearingPriceTicks)
	assert.Empty(t, res.Settlement.Fills)
	assert.Empty(t, res.PricedOut)
}

func TestClearRejectsDuplicateSubmitter(t *testing.T) {
	orders := []domain.Order{
		buyAt("0xA1", 2_000_000, 0, 0),
		buyAt("0xA1", 2_010_000, 0, 1),
	}

	_, err := Clear(1, orders)
	assert.Error(t, err)
}
