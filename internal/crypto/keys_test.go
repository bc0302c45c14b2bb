package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyEncodingRoundTrip(t *testing.T) {
	key, err := GenerateRSAKey()
	require.NoError(t, err)
	require.Equal(t, 2048, key.N.BitLen())

	privateEncoded, err := EncodePrivateKey(key)
	require.NoError(t, err)
	publicEncoded, err := EncodePublicKey(&key.PublicKey)
	require.NoError(t, err)

	decodedPrivate, err := DecodePrivateKey(privateEncoded)
	require.NoError(t, err)
	assert.True(t, key.Equal(decodedPrivate))

	decodedPublic, err := DecodePublicKey(publicEncoded)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(decodedPublic))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodePrivateKey("not base64!!")
	assert.Error(t, err)

	_, err = DecodePrivateKey("bm90LWEta2V5")
	assert.Error(t, err)

	_, err = DecodePublicKey("bm90LWEta2V5")
	assert.Error(t, err)
}
