package motion

import (
	"crypto/aes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	for _, plaintext := range [][]byte{
		{0x01},
		[]byte("hello motor"),
		make([]byte, 16),
		make([]byte, 33),
	} {
		ciphertext := Encrypt(plaintext)
		assert.Equal(t, 0, len(ciphertext)%16)
		assert.NotEqual(t, plaintext, ciphertext)

		out, err := Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, out)
	}
}

func TestDecryptRejectsBadLength(t *testing.T) {
	_, err := Decrypt(nil)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = Decrypt(make([]byte, 15))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecryptRejectsBadPadding(t *testing.T) {
	block, err := aes.NewCipher(frameKey)
	require.NoError(t, err)

	// A block that decrypts to a zero padding byte
	ciphertext := make([]byte, aes.BlockSize)
	block.Encrypt(ciphertext, make([]byte, aes.BlockSize))

	_, err = Decrypt(ciphertext)
	assert.ErrorIs(t, err, ErrDecode)
}
