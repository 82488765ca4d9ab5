package domain

import (
	"math"
	"math/bits"
	"time"
)

// PriceScale is the fixed-point scale for prices and sizes: one unit of
// display value equals 1e6 ticks. All settlement arithmetic stays in int64
// ticks so repeated runs over the same order set are bit-identical.
const PriceScale int64 = 1_000_000

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks the per-submitter, per-batch order lifecycle.
type OrderStatus string

const (
	OrderStatusNone          OrderStatus = "none"
	OrderStatusPendingCommit OrderStatus = "pending_commit"
	OrderStatusCommitted     OrderStatus = "committed"
	OrderStatusPendingReveal OrderStatus = "pending_reveal"
	OrderStatusRevealed      OrderStatus = "revealed"
	OrderStatusSettling      OrderStatus = "settling"
	OrderStatusSettled       OrderStatus = "settled"
	OrderStatusFailed        OrderStatus = "failed"
)

// Terminal reports whether the status admits no further transitions within
// the batch. Failed additionally requires an explicit reset before the
// submitter may commit again.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusSettled || s == OrderStatusFailed
}

// Order is a revealed, plaintext trade intent. For buys AmountIn is quote
// units spent and MinAmountOut is the base floor; for sells AmountIn is base
// units sold and MinAmountOut is the quote floor. The implied limit price is
// derived from the two amounts, so the slippage floor and the price bound are
// one and the same field.
type Order struct {
	Submitter    string
	Side         OrderSide
	AmountIn     int64 // fixed-point units, > 0
	MinAmountOut int64 // fixed-point units, > 0
	PriorityBid  int64 // optional tie-break, >= 0
	RevealedAt   time.Time
	RevealRank   int // admission order within the batch, 0-based
}

// LimitTicks returns the order's implied limit price in ticks: the highest
// price a buy will pay, or the lowest a sell will accept.
//
//	buy:  amountIn / minAmountOut (quote per base)
//	sell: minAmountOut / amountIn
func (o Order) LimitTicks() int64 {
	if o.AmountIn <= 0 || o.MinAmountOut <= 0 {
		return 0
	}
	if o.Side == OrderSideBuy {
		return MulDiv(o.AmountIn, PriceScale, o.MinAmountOut)
	}
	return MulDiv(o.MinAmountOut, PriceScale, o.AmountIn)
}

// MulDiv computes a*b/c for non-negative operands using a 128-bit
// intermediate product, so tick math cannot overflow inside the supported
// amount range.
func MulDiv(a, b, c int64) int64 {
	if a <= 0 || b <= 0 || c <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi >= uint64(c) {
		// quotient would exceed 64 bits; clamp rather than wrap
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, uint64(c))
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}
