package wrap

import (
	"strings"
	"testing"

	"nft_messenger/internal/cryptographic/dh"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	priv, pub, err := dh.NewX25519KeyPair()
	require.NoError(t, err)

	env, err := Seal(dh.EncodePublicKey(pub), []byte("00112233"))
	require.NoError(t, err)
	assert.Equal(t, Version, env.Version)

	encoded, err := Encode(env)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "0x"))

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, env, decoded)

	plain, err := Open(decoded, priv)
	require.NoError(t, err)
	assert.Equal(t, "00112233", string(plain))
}

func TestOpenWithWrongKey(t *testing.T) {
	_, pub, _ := dh.NewX25519KeyPair()
	other, _, _ := dh.NewX25519KeyPair()

	env, err := Seal(dh.EncodePublicKey(pub), []byte("secret"))
	require.NoError(t, err)

	_, err = Open(env, other)
	assert.ErrorIs(t, err, ErrOpen)
}

func TestOpenRejectsUnknownVersion(t *testing.T) {
	priv, pub, _ := dh.NewX25519KeyPair()
	env, err := Seal(dh.EncodePublicKey(pub), []byte("secret"))
	require.NoError(t, err)

	env.Version = "x25519-chacha"
	_, err = Open(env, priv)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode("0xzz")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode("0x" + strings.Repeat("00", 4))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSealRejectsBadRecipientKey(t *testing.T) {
	_, err := Seal("not-base64!", []byte("x"))
	assert.Error(t, err)

	_, err = Seal("AAAA", []byte("x"))
	assert.Error(t, err)
}
