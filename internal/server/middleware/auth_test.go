package middleware

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMarket = "ETH-USDC"

// signAuth produces the three auth headers a wallet client would send.
func signAuth(t *testing.T, key *ecdsa.PrivateKey, market string, ts int64) http.Header {
	t.Helper()

	msg := fmt.Sprintf("auctiond:%s:%d", market, ts)
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	digest := ethcrypto.Keccak256([]byte(prefix), []byte(msg))

	sig, err := ethcrypto.Sign(digest, key)
	require.NoError(t, err)

	h := http.Header{}
	h.Set("X-Auction-Address", ethcrypto.PubkeyToAddress(key.PublicKey).Hex())
	h.Set("X-Auction-Timestamp", strconv.FormatInt(ts, 10))
	h.Set("X-Auction-Signature", hex.EncodeToString(sig))
	return h
}

// authProbe runs one request through WalletAuth and reports the status code
// plus the submitter the inner handler observed.
func authProbe(enabled bool, method string, headers http.Header) (int, string) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = Submitter(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(method, "/api/auction/commit", nil)
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	WalletAuth(testMarket, enabled)(inner).ServeHTTP(rec, req)
	return rec.Code, seen
}

func TestWalletAuthDisabledPassesThrough(t *testing.T) {
	code, seen := authProbe(false, http.MethodPost, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, seen)
}

func TestWalletAuthSkipsReads(t *testing.T) {
	code, _ := authProbe(true, http.MethodGet, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestWalletAuthValidSignature(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	addr := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	headers := signAuth(t, key, testMarket, time.Now().Unix())
	code, seen := authProbe(true, http.MethodPost, headers)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, addr, seen)
}

func TestWalletAuthMissingHeaders(t *testing.T) {
	code, _ := authProbe(true, http.MethodPost, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestWalletAuthStaleTimestamp(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	ts := time.Now().Add(-10 * time.Minute).Unix()
	headers := signAuth(t, key, testMarket, ts)
	code, _ := authProbe(true, http.MethodPost, headers)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestWalletAuthWrongMarket(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	// Signed for some other deployment; recovery yields a different address
	// than the one claimed.
	headers := signAuth(t, key, "BTC-USDC", time.Now().Unix())
	code, _ := authProbe(true, http.MethodPost, headers)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestWalletAuthAddressMismatch(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	other, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	headers := signAuth(t, key, testMarket, time.Now().Unix())
	headers.Set("X-Auction-Address", ethcrypto.PubkeyToAddress(other.PublicKey).Hex())

	code, _ := authProbe(true, http.MethodPost, headers)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestWalletAuthGarbageSignature(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	headers := signAuth(t, key, testMarket, time.Now().Unix())
	headers.Set("X-Auction-Signature", "not-hex")

	code, _ := authProbe(true, http.MethodPost, headers)
	assert.Equal(t, http.StatusUnauthorized, code)
}
