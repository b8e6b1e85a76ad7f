package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultTokenKeyEnv names the variable holding the access token key.
const DefaultTokenKeyEnv = "SCRIBEIT_TOKEN_KEY"

var errInvalidCiphertext = errors.New("invalid token ciphertext")

// TokenCipher seals backend access tokens before they are written to storage.
type TokenCipher struct {
	aead cipher.AEAD
}

// TokenCipherFromEnv reads a 32 byte key (raw or base64) from envName.
// It returns nil and no error when the variable is unset.
func TokenCipherFromEnv(envName string) (*TokenCipher, error) {
	if envName == "" {
		envName = DefaultTokenKeyEnv
	}
	raw := strings.TrimSpace(os.Getenv(envName))
	if raw == "" {
		return nil, nil
	}
	key, err := decodeKey(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", envName, err)
	}
	return NewTokenCipher(key)
}

// NewTokenCipher builds an AES-256-GCM cipher from key.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

func decodeKey(raw string) ([]byte, error) {
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid key length %d, want 32", len(key))
	}
	return key, nil
}

// Seal encrypts plain. A nil cipher stores the value as is.
func (c *TokenCipher) Seal(plain string) (string, error) {
	if c == nil {
		return plain, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (c *TokenCipher) Open(input string) (string, error) {
	if c == nil {
		return input, nil
	}
	data, err := base64.StdEncoding.DecodeString(input)
	if err != nil {
		return "", errInvalidCiphertext
	}
	ns := c.aead.NonceSize()
	if len(data) < ns {
		return "", errInvalidCiphertext
	}
	plain, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", errInvalidCiphertext
	}
	return string(plain), nil
}
