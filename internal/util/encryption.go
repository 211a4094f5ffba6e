package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrInvalidKey is returned when ENCRYPTION_KEY is not 64 hex characters.
var ErrInvalidKey = errors.New("encryption key must be 32 bytes (64 hex chars)")

// Encrypt seals an account's long-lived API credential for storage in
// accounts.api_token_encrypted. The output is base64(nonce || ciphertext).
func Encrypt(hexKey, credential string) (string, error) {
	aead, err := credentialCipher(hexKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(credential), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt recovers a credential sealed by Encrypt.
func Decrypt(hexKey, stored string) (string, error) {
	aead, err := credentialCipher(hexKey)
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("decode stored credential: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", errors.New("stored credential too short")
	}

	nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	credential, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("open stored credential: %w", err)
	}
	return string(credential), nil
}

// credentialCipher builds AES-256-GCM from the hex key.
func credentialCipher(hexKey string) (cipher.AEAD, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
