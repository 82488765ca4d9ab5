// Package settlement computes the uniform clearing price and fill
// assignments for one batch of revealed orders.
//
// Everything in this package is a pure function of the revealed order set:
// no clock, no randomness, no external state. Given the same orders, repeated
// runs produce bit-identical results, which is what makes a settlement
// auditable offline.
package settlement

import (
	"fmt"
	"sort"

	"github.com/blendtrade/auctiond/internal/domain"
)

// Result bundles the settlement with the submitters whose orders were priced
// out at the clearing price; the engine resolves those as failed with escrow
// returned.
type Result struct {
	Settlement domain.Settlement
	PricedOut  []string
}

// Clear runs the call-auction crossing over the revealed orders of batchID
// and assigns one Fill per order. The clearing price is the single price at
// which cumulative buy demand and cumulative sell supply cross, chosen to
// maximize matched volume; when a range of prices ties, the midpoint in
// ticks is used.
//
// Clear returns an error only for internal invariant violations (a duplicate
// fill for one submitter), which the caller must treat as fatal for the
// batch: they imply the uniform-price guarantee can no longer be trusted.
func Clear(batchID int64, orders []domain.Order) (Result, error) {
	if err := checkDistinct(orders); err != nil {
		return Result{}, err
	}

	clearing, volume := crossingPrice(orders)

	fills := make([]domain.Fill, 0, len(orders))
	var pricedOut []string
	var filled []int // indexes into fills for ranked orders

	for _, o := range orders {
		f := domain.Fill{
			Submitter:   o.Submitter,
			Side:        o.Side,
			AmountIn:    o.AmountIn,
			TotalOrders: len(orders),
		}
		if amt, ok := fillAmount(o, clearing); ok {
			f.Filled = true
			f.AmountReceived = amt
			filled = append(filled, len(fills))
		} else {
			pricedOut = append(pricedOut, o.Submitter)
		}
		fills = append(fills, f)
	}

	rankFills(orders, fills, filled)

	return Result{
		Settlement: domain.Settlement{
			BatchID:            batchID,
			ClearingPriceTicks: clearing,
			TotalVolume:        volume,
			Fills:              fills,
		},
		PricedOut: pricedOut,
	}, nil
}

// crossingPrice returns the uniform clearing price in ticks and the matched
// base volume at that price. A zero price means the book did not cross and
// no order fills.
func crossingPrice(orders []domain.Order) (int64, int64) {
	// Candidate prices are the implied limits of the orders themselves; the
	// crossing volume function only changes value at those points.
	candidates := make([]int64, 0, len(orders))
	for _, o := range orders {
		if p := o.LimitTicks(); p > 0 {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return 0, 0
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	candidates = dedupe(candidates)

	var (
		bestVolume int64
		bestLow    int64
		bestHigh   int64
	)
	for _, p := range candidates {
		v := matchedVolume(orders, p)
		switch {
		case v > bestVolume:
			bestVolume, bestLow, bestHigh = v, p, p
		case v == bestVolume && v > 0:
			bestHigh = p
		}
	}
	if bestVolume == 0 {
		return 0, 0
	}

	// Midpoint of the max-volume interval, in ticks.
	clearing := bestLow + (bestHigh-bestLow)/2
	return clearing, matchedVolume(orders, clearing)
}

// matchedVolume returns min(demand, supply) in base units at price p.
func matchedVolume(orders []domain.Order, p int64) int64 {
	if p <= 0 {
		return 0
	}
	var demand, supply int64
	for _, o := range orders {
		limit := o.LimitTicks()
		switch o.Side {
		case domain.OrderSideBuy:
			if limit >= p {
				demand += domain.MulDiv(o.AmountIn, domain.PriceScale, p)
			}
		case domain.OrderSideSell:
			if limit > 0 && limit <= p {
				supply += o.AmountIn
			}
		}
	}
	if demand < supply {
		return demand
	}
	return supply
}

// fillAmount returns the amount received by the order at the clearing price
// and whether the order fills at all. A buy receives base units
// (amountIn / price), a sell receives quote units (amountIn * price); both
// must satisfy the order's price bound and its minAmountOut floor, which the
// integer division can distinguish at the margin.
func fillAmount(o domain.Order, clearing int64) (int64, bool) {
	if clearing <= 0 {
		return 0, false
	}
	limit := o.LimitTicks()
	var out int64
	switch o.Side {
	case domain.OrderSideBuy:
		if limit < clearing {
			return 0, false
		}
		out = domain.MulDiv(o.AmountIn, domain.PriceScale, clearing)
	case domain.OrderSideSell:
		if limit > clearing {
			return 0, false
		}
		out = domain.MulDiv(o.AmountIn, clearing, domain.PriceScale)
	default:
		return 0, false
	}
	if out < o.MinAmountOut {
		return 0, false
	}
	return out, true
}

// rankFills assigns 1-based execution positions to the filled orders, ranked
// by priority bid descending then reveal order ascending. First revealed wins
// ties: a bounded, deterministic tie-break.
func rankFills(orders []domain.Order, fills []domain.Fill, filled []int) {
	sort.SliceStable(filled, func(i, j int) bool {
		a, b := orders[filled[i]], orders[filled[j]]
		if a.PriorityBid != b.PriorityBid {
			return a.PriorityBid > b.PriorityBid
		}
		return a.RevealRank < b.RevealRank
	})
	for pos, idx := range filled {
		fills[idx].ExecutionPosition = pos + 1
	}
}

// checkDistinct guards the exactly-one-fill-per-order invariant at the input
// boundary. The reveal validator already enforces one order per submitter;
// seeing a duplicate here means upstream state is corrupt.
func checkDistinct(orders []domain.Order) error {
	seen := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		if _, dup := seen[o.Submitter]; dup {
			return fmt.Errorf("settlement: duplicate revealed order for submitter %s", o.Submitter)
		}
		seen[o.Submitter] = struct{}{}
	}
	return nil
}

func dedupe(sorted []int64) []int64 {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}
