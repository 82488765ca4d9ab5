// Package crypto provides commitment hashing, reveal verification, and
// submitter signature recovery for the batch auction engine.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/blendtrade/auctiond/internal/domain"
)

// secretLen is the length in bytes of a freshly generated reveal secret.
const secretLen = 32

// CommitPayload carries every order field bound by a commitment. Any field
// mutated between commit and reveal changes the digest and fails
// verification.
type CommitPayload struct {
	Side         domain.OrderSide
	AmountIn     int64
	MinAmountOut int64
	PriorityBid  int64
	Secret       string
	EscrowWei    *big.Int
}

// CommitDigest computes the keccak-256 commitment hash over the canonical
// encoding of the payload. Variable-length fields are u32 length-prefixed so
// no two distinct payloads share an encoding.
func CommitDigest(p CommitPayload) [32]byte {
	h := sha3.NewLegacyKeccak256()

	writeBytes := func(b []byte) {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(b)))
		h.Write(n[:])
		h.Write(b)
	}
	writeInt := func(v int64) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(v))
		h.Write(n[:])
	}

	writeBytes([]byte(p.Side))
	writeInt(p.AmountIn)
	writeInt(p.MinAmountOut)
	writeInt(p.PriorityBid)
	writeBytes([]byte(p.Secret))
	if p.EscrowWei != nil {
		writeBytes(p.EscrowWei.Bytes())
	} else {
		writeBytes(nil)
	}

	var out [32]byte
	h.Sum(out[:0])
	return out
}

// VerifyCommit recomputes the digest for the payload and compares it to the
// recorded commitment hash in constant time. Timing side channels on this
// comparison would leak information about valid hashes during the Reveal
// phase.
func VerifyCommit(p CommitPayload, commitHash [32]byte) bool {
	digest := CommitDigest(p)
	return subtle.ConstantTimeCompare(digest[:], commitHash[:]) == 1
}

// NewSecret returns a freshly generated hex-encoded reveal secret.
func NewSecret() (string, error) {
	buf := make([]byte, secretLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("crypto: generate secret: %w", err)
	}
	return "0x" + hex.EncodeToString(buf), nil
}

// EncodeHash renders a commitment hash as a 0x-prefixed hex string for wire
// and storage use.
func EncodeHash(h [32]byte) string {
	return "0x" + hex.EncodeToString(h[:])
}

// DecodeHash parses a 0x-prefixed (or bare) hex commitment hash.
func DecodeHash(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return out, fmt.Errorf("crypto: decode commit hash: %w", err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("crypto: commit hash must be %d bytes, got %d", len(out), len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
