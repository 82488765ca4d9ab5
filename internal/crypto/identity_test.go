package crypto

import (
	"encoding/hex"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverSubmitterRoundTrip(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	addr := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	msg := AuthMessage("ETH-USDC", 1750000000)
	sig, err := ethcrypto.Sign(personalHash([]byte(msg)), key)
	require.NoError(t, err)

	recovered, err := RecoverSubmitter(msg, hex.EncodeToString(sig))
	require.NoError(t, err)
	assert.Equal(t, addr, recovered)

	// Wallets commonly emit v as 27/28 rather than 0/1; both forms recover.
	legacy := append([]byte(nil), sig...)
	legacy[64] += 27
	recovered, err = RecoverSubmitter(msg, "0x"+hex.EncodeToString(legacy))
	require.NoError(t, err)
	assert.Equal(t, addr, recovered)
}

func TestRecoverSubmitterDifferentMessage(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	addr := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	sig, err := ethcrypto.Sign(personalHash([]byte(AuthMessage("ETH-USDC", 1750000000))), key)
	require.NoError(t, err)

	// A signature over one market's message must not authenticate another's.
	recovered, err := RecoverSubmitter(AuthMessage("BTC-USDC", 1750000000), hex.EncodeToString(sig))
	if err == nil {
		assert.NotEqual(t, addr, recovered)
	}
}

func TestRecoverSubmitterRejectsMalformed(t *testing.T) {
	_, err := RecoverSubmitter("hello", "zzzz")
	assert.Error(t, err)

	_, err = RecoverSubmitter("hello", "0102")
	assert.Error(t, err)
}

func TestAuthMessage(t *testing.T) {
	assert.Equal(t, "auctiond:ETH-USDC:42", AuthMessage("ETH-USDC", 42))
}

func TestNormalizeSubmitter(t *testing.T) {
	// Lowercased input canonicalizes to the EIP-55 checksum form.
	lower := "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
	checksummed := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	assert.Equal(t, checksummed, NormalizeSubmitter(lower))
	assert.Equal(t, checksummed, NormalizeSubmitter(checksummed))

	// Non-address identifiers pass through untouched.
	assert.Equal(t, "alice", NormalizeSubmitter("alice"))
}
