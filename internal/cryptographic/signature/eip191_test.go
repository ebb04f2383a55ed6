package signature

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersonalSignVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	msg := WriteMessage("publish_key", addr.Hex(), "n-1", "cHVi")
	sig, err := PersonalSign(key, msg)
	require.NoError(t, err)

	got, err := Recover(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	assert.NoError(t, Verify(addr.Hex(), msg, sig))
}

func TestVerifyRejectsOtherSigner(t *testing.T) {
	key, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	otherAddr := crypto.PubkeyToAddress(other.PublicKey)

	msg := WriteMessage("record_index", otherAddr.Hex(), "n-2", "1,2|0xabc")
	sig, err := PersonalSign(key, msg)
	require.NoError(t, err)

	assert.ErrorIs(t, Verify(otherAddr.Hex(), msg, sig), ErrInvalidSignature)
}

func TestVerifyRejectsChangedMessage(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	sig, err := PersonalSign(key, WriteMessage("publish_key", addr, "n-3", "a"))
	require.NoError(t, err)

	assert.Error(t, Verify(addr, WriteMessage("publish_key", addr, "n-3", "b"), sig))
}

func TestRecoverRejectsGarbage(t *testing.T) {
	_, err := Recover("m", "0x1234")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = Recover("m", "nothex")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestWriteMessageLowercasesAddress(t *testing.T) {
	assert.Equal(t,
		WriteMessage("publish_key", "0xABCDEF", "n", "p"),
		WriteMessage("publish_key", "0xabcdef", "n", "p"))
}
