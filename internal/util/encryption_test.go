package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestEncryptDecrypt(t *testing.T) {
	t.Run("round trips plaintext", func(t *testing.T) {
		ciphertext, err := Encrypt(testKey, "api-token-123")
		require.NoError(t, err)
		assert.NotContains(t, ciphertext, "api-token-123")

		plaintext, err := Decrypt(testKey, ciphertext)
		require.NoError(t, err)
		assert.Equal(t, "api-token-123", plaintext)
	})

	t.Run("uses a fresh nonce per call", func(t *testing.T) {
		a, _ := Encrypt(testKey, "same")
		b, _ := Encrypt(testKey, "same")
		assert.NotEqual(t, a, b)
	})

	t.Run("rejects malformed keys", func(t *testing.T) {
		_, err := Encrypt("abcd", "x")
		assert.ErrorIs(t, err, ErrInvalidKey)

		_, err = Decrypt("not-hex", "x")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("rejects truncated values", func(t *testing.T) {
		_, err := Decrypt(testKey, "AAAA")
		assert.Error(t, err)
	})

	t.Run("fails with wrong key", func(t *testing.T) {
		ciphertext, err := Encrypt(testKey, "secret")
		require.NoError(t, err)

		otherKey := strings.Repeat("ff", 32)
		_, err = Decrypt(otherKey, ciphertext)
		assert.Error(t, err)
	})
}
