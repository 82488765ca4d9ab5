package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AuthMessage builds the canonical plaintext a wallet signs to authenticate
// a mutating auction call. Binding the market and a timestamp keeps a
// captured signature from being replayed against another market or much
// later in time.
func AuthMessage(market string, unixTS int64) string {
	return fmt.Sprintf("auctiond:%s:%d", market, unixTS)
}

// RecoverSubmitter recovers the Ethereum address that produced sigHex over
// the EIP-191 personal-sign envelope of message. The returned hex address is
// the opaque submitter key used throughout the engine.
func RecoverSubmitter(message string, sigHex string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("crypto: decode signature: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("crypto: signature must be 65 bytes, got %d", len(sig))
	}

	// Normalize v from {27,28} to {0,1} as go-ethereum expects.
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}

	digest := personalHash([]byte(message))
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("crypto: recover public key: %w", err)
	}

	return ethcrypto.PubkeyToAddress(*pub).Hex(), nil
}

// personalHash computes the EIP-191 personal-sign digest:
//
//	keccak256("\x19Ethereum Signed Message:\n" || len(msg) || msg)
func personalHash(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return ethcrypto.Keccak256([]byte(prefix), msg)
}

// NormalizeSubmitter canonicalizes a submitter address string to its EIP-55
// checksummed form so map keys are stable regardless of input casing.
func NormalizeSubmitter(addr string) string {
	if common.IsHexAddress(addr) {
		return common.HexToAddress(addr).Hex()
	}
	return addr
}
