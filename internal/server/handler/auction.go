package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/blendtrade/auctiond/internal/auction"
	"github.com/blendtrade/auctiond/internal/crypto"
	"github.com/blendtrade/auctiond/internal/domain"
	"github.com/blendtrade/auctiond/internal/server/middleware"
)

// AuctionAPI is the service surface the auction handlers need.
type AuctionAPI interface {
	CommitOrder(ctx context.Context, p auction.CommitParams) (domain.CommitReceipt, error)
	RevealOrder(ctx context.Context, p auction.RevealParams) (domain.RevealReceipt, error)
	GetUserOrder(submitter string) domain.UserOrderView
	CanCommit(submitter string) bool
	ResetOrder(submitter string)
	Snapshot() domain.BatchSnapshot
	GetSettlement(ctx context.Context, batchID int64) (domain.Settlement, error)
	ListBatches(ctx context.Context, opts domain.ListOpts) ([]domain.BatchRecord, error)
	GetBatch(ctx context.Context, batchID int64) (domain.BatchRecord, error)
	ListBatchCommitments(ctx context.Context, batchID int64) ([]domain.CommitmentRecord, error)
	ListSettlements(ctx context.Context, opts domain.ListOpts) ([]domain.Settlement, error)
	ListAuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AuctionHandler serves the auction API: phase state, commits, reveals, and
// settlement lookups.
type AuctionHandler struct {
	svc    AuctionAPI
	logger *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler.
func NewAuctionHandler(svc AuctionAPI, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		svc:    svc,
		logger: logger.With(slog.String("handler", "auction")),
	}
}

// State returns the current batch snapshot: phase, deadline, and countdown.
// GET /api/auction/state
func (h *AuctionHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Snapshot())
}

// GetUserOrder returns the caller-visible order view for one submitter.
// GET /api/auction/orders/{submitter}
func (h *AuctionHandler) GetUserOrder(w http.ResponseWriter, r *http.Request) {
	submitter := r.PathValue("submitter")
	if submitter == "" {
		writeError(w, http.StatusBadRequest, "submitter is required")
		return
	}
	writeJSON(w, http.StatusOK, userOrderResponse{
		UserOrderView: h.svc.GetUserOrder(submitter),
		CanCommit:     h.svc.CanCommit(submitter),
	})
}

// userOrderResponse augments the order view with whether the submitter may
// commit to the current batch right now.
type userOrderResponse struct {
	domain.UserOrderView
	CanCommit bool `json:"can_commit"`
}

// commitRequest is the body of POST /api/auction/commit. EscrowWei crosses
// the wire as a decimal string since wei amounts overflow JSON numbers.
type commitRequest struct {
	Side         string `json:"side"`
	AmountIn     int64  `json:"amount_in"`
	MinAmountOut int64  `json:"min_amount_out"`
	PriorityBid  int64  `json:"priority_bid"`
	EscrowWei    string `json:"escrow_wei"`
}

// Commit accepts a sealed order commitment during the commit phase. The
// receipt includes the server-generated secret; it is returned exactly once
// and never stored.
// POST /api/auction/commit
func (h *AuctionHandler) Commit(w http.ResponseWriter, r *http.Request) {
	submitter := h.submitter(r)
	if submitter == "" {
		writeError(w, http.StatusUnauthorized, "submitter address is required")
		return
	}

	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	escrow := new(big.Int)
	if req.EscrowWei != "" {
		if _, ok := escrow.SetString(req.EscrowWei, 10); !ok {
			writeError(w, http.StatusBadRequest, "escrow_wei must be a decimal string")
			return
		}
	}

	receipt, err := h.svc.CommitOrder(r.Context(), auction.CommitParams{
		Submitter:    submitter,
		Side:         domain.OrderSide(req.Side),
		AmountIn:     req.AmountIn,
		MinAmountOut: req.MinAmountOut,
		PriorityBid:  req.PriorityBid,
		EscrowWei:    escrow,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// revealRequest is the body of POST /api/auction/reveal.
type revealRequest struct {
	Side         string `json:"side"`
	AmountIn     int64  `json:"amount_in"`
	MinAmountOut int64  `json:"min_amount_out"`
	PriorityBid  int64  `json:"priority_bid"`
	Secret       string `json:"secret"`
}

// Reveal opens a previously committed order during the reveal phase. A
// repeat reveal with the same parameters returns the original receipt.
// POST /api/auction/reveal
func (h *AuctionHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	submitter := h.submitter(r)
	if submitter == "" {
		writeError(w, http.StatusUnauthorized, "submitter address is required")
		return
	}

	var req revealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	receipt, err := h.svc.RevealOrder(r.Context(), auction.RevealParams{
		Submitter:    submitter,
		Side:         domain.OrderSide(req.Side),
		AmountIn:     req.AmountIn,
		MinAmountOut: req.MinAmountOut,
		PriorityBid:  req.PriorityBid,
		Secret:       req.Secret,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// Reset acknowledges a failed order so the submitter can commit again.
// POST /api/auction/reset
func (h *AuctionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	submitter := h.submitter(r)
	if submitter == "" {
		writeError(w, http.StatusUnauthorized, "submitter address is required")
		return
	}
	h.svc.ResetOrder(submitter)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// GetSettlement returns the settlement for one closed batch.
// GET /api/auction/settlements/{batchID}
func (h *AuctionHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	batchID, err := strconv.ParseInt(r.PathValue("batchID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "batchID must be an integer")
		return
	}

	stl, err := h.svc.GetSettlement(r.Context(), batchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stl)
}

// ListBatches returns the recent batch history for this market.
// GET /api/auction/batches
func (h *AuctionHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.svc.ListBatches(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if batches == nil {
		batches = []domain.BatchRecord{}
	}
	writeJSON(w, http.StatusOK, batches)
}

// batchDetailResponse is the body of GET /api/auction/batches/{batchID}.
// Escrow amounts cross the wire as decimal strings, matching the commit API.
type batchDetailResponse struct {
	Batch       domain.BatchRecord `json:"batch"`
	Commitments []batchCommitment  `json:"commitments"`
}

type batchCommitment struct {
	Submitter   string    `json:"submitter"`
	CommitHash  string    `json:"commit_hash"`
	EscrowWei   string    `json:"escrow_wei"`
	SubmittedAt time.Time `json:"submitted_at"`
	Revealed    bool      `json:"revealed"`
	Outcome     string    `json:"outcome,omitempty"`
}

// GetBatch returns one closed batch's lifecycle row plus its commitments and
// their resolutions.
// GET /api/auction/batches/{batchID}
func (h *AuctionHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := strconv.ParseInt(r.PathValue("batchID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "batchID must be an integer")
		return
	}

	rec, err := h.svc.GetBatch(r.Context(), batchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	commits, err := h.svc.ListBatchCommitments(r.Context(), batchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := batchDetailResponse{Batch: rec, Commitments: make([]batchCommitment, 0, len(commits))}
	for _, c := range commits {
		escrow := "0"
		if c.EscrowWei != nil {
			escrow = c.EscrowWei.String()
		}
		resp.Commitments = append(resp.Commitments, batchCommitment{
			Submitter:   c.Submitter,
			CommitHash:  c.CommitHash,
			EscrowWei:   escrow,
			SubmittedAt: c.SubmittedAt,
			Revealed:    c.Revealed,
			Outcome:     string(c.Outcome),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListAuditLog returns recent audit entries, newest first.
// GET /api/audit
func (h *AuctionHandler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListAuditLog(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ListSettlements returns recent settlements, newest first.
// GET /api/auction/settlements
func (h *AuctionHandler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := h.svc.ListSettlements(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if settlements == nil {
		settlements = []domain.Settlement{}
	}
	writeJSON(w, http.StatusOK, settlements)
}

// submitter resolves the caller's address: the signature-verified identity
// from the auth middleware when auth is enabled, otherwise the bare
// X-Auction-Address header.
func (h *AuctionHandler) submitter(r *http.Request) string {
	if s := middleware.Submitter(r.Context()); s != "" {
		return s
	}
	addr := r.Header.Get("X-Auction-Address")
	if addr == "" {
		return ""
	}
	return crypto.NormalizeSubmitter(addr)
}
