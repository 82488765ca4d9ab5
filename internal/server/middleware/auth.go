package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/blendtrade/auctiond/internal/crypto"
)

// maxTimestampSkew bounds how stale a signed auth timestamp may be. Signed
// headers older than this are replayable and get rejected.
const maxTimestampSkew = 5 * time.Minute

type ctxKey int

const submitterKey ctxKey = 0

// Submitter returns the signature-verified submitter address stored in the
// request context, or "" if the auth middleware did not run.
func Submitter(ctx context.Context) string {
	s, _ := ctx.Value(submitterKey).(string)
	return s
}

// WalletAuth returns middleware that authenticates callers by an EIP-191
// personal-sign signature over the market-scoped auth message. Clients send
// three headers:
//
//	X-Auction-Address   — the claimed submitter address
//	X-Auction-Timestamp — unix seconds the message was signed at
//	X-Auction-Signature — hex signature over AuthMessage(market, timestamp)
//
// On success the recovered address is placed in the request context. If
// enabled is false the middleware passes every request through untouched and
// handlers fall back to the bare address header.
func WalletAuth(market string, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}

			// Read-only routes stay open; only mutations need identity.
			if r.Method == http.MethodGet || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			claimed := strings.TrimSpace(r.Header.Get("X-Auction-Address"))
			sig := strings.TrimSpace(r.Header.Get("X-Auction-Signature"))
			tsRaw := strings.TrimSpace(r.Header.Get("X-Auction-Timestamp"))
			if claimed == "" || sig == "" || tsRaw == "" {
				writeUnauthorized(w, "missing auth headers")
				return
			}

			ts, err := strconv.ParseInt(tsRaw, 10, 64)
			if err != nil {
				writeUnauthorized(w, "malformed auth timestamp")
				return
			}
			skew := time.Since(time.Unix(ts, 0))
			if skew < 0 {
				skew = -skew
			}
			if skew > maxTimestampSkew {
				writeUnauthorized(w, "auth timestamp expired")
				return
			}

			recovered, err := crypto.RecoverSubmitter(crypto.AuthMessage(market, ts), sig)
			if err != nil {
				writeUnauthorized(w, "invalid signature")
				return
			}
			if !strings.EqualFold(recovered, claimed) {
				writeUnauthorized(w, "signature does not match address")
				return
			}

			ctx := context.WithValue(r.Context(), submitterKey, recovered)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
