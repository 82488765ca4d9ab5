package domain

import "time"

// Fill is the settlement result for one revealed order. Every revealed,
// valid order in a settled batch has exactly one Fill; no order ever has
// two. Priced-out orders carry a Fill with Filled=false and zero amount.
type Fill struct {
	Submitter         string    `json:"submitter"`
	Side              OrderSide `json:"side"`
	Filled            bool      `json:"filled"`
	AmountIn          int64     `json:"amount_in"`
	AmountReceived    int64     `json:"amount_received"`
	ExecutionPosition int       `json:"execution_position"` // 1-based rank among filled orders; 0 when unfilled
	TotalOrders       int       `json:"total_orders_in_batch"`
}

// Settlement is the outcome of one batch: a single uniform clearing price
// applied to every matched order, plus one Fill per revealed order. The
// clearing price never varies by order size or priority bid.
type Settlement struct {
	BatchID            int64     `json:"batch_id"`
	ClearingPriceTicks int64     `json:"clearing_price_ticks"`
	TotalVolume        int64     `json:"total_volume"` // base units matched
	Fills              []Fill    `json:"fills"`
	SettledAt          time.Time `json:"settled_at"`
}

// FillFor returns the fill for submitter, if present.
func (s *Settlement) FillFor(submitter string) (Fill, bool) {
	for _, f := range s.Fills {
		if f.Submitter == submitter {
			return f, true
		}
	}
	return Fill{}, false
}

// ClearingPrice returns the float64 display price from fixed-point ticks.
func (s *Settlement) ClearingPrice() float64 {
	return float64(s.ClearingPriceTicks) / float64(PriceScale)
}

// UserOrderView is the per-client projection of auction state: the order
// status machine value plus whatever detail is visible at that stage. It is
// derived on read and never independently mutated.
type UserOrderView struct {
	Submitter  string      `json:"submitter"`
	BatchID    int64       `json:"batch_id"`
	Status     OrderStatus `json:"status"`
	CommitHash string      `json:"commit_hash,omitempty"`
	Order      *Order      `json:"order,omitempty"`
	Fill       *Fill       `json:"fill,omitempty"`
	Settlement *Settlement `json:"settlement,omitempty"`
}
