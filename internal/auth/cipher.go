// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"

	"github.com/samber/oops"
	"golang.org/x/crypto/scrypt"

	"github.com/turnstile-auth/turnstile/internal/fault"
)

// scrypt parameters for deriving the token key from the configured secret.
const (
	scryptN      = 1 << 14
	scryptR      = 8
	scryptP      = 1
	tokenKeySize = 32
)

// TokenCipher encrypts tokens for transport in links and decrypts them on return.
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}

// AESTokenCipher seals tokens with AES-256-GCM under a key derived by scrypt.
// Ciphertexts are hex(nonce || sealed).
type AESTokenCipher struct {
	aead cipher.AEAD
}

// NewAESTokenCipher derives the key from secret and salt.
func NewAESTokenCipher(secret, salt string) (*AESTokenCipher, error) {
	if secret == "" || salt == "" {
		return nil, oops.Code("CIPHER_INVALID_CONFIG").Errorf("token secret and salt are required")
	}
	key, err := scrypt.Key([]byte(secret), []byte(salt), scryptN, scryptR, scryptP, tokenKeySize)
	if err != nil {
		return nil, oops.Code("CIPHER_KEY_DERIVATION_FAILED").Wrap(err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, oops.Code("CIPHER_INIT_FAILED").Wrap(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, oops.Code("CIPHER_INIT_FAILED").Wrap(err)
	}
	return &AESTokenCipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *AESTokenCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", oops.Code("CIPHER_NONCE_FAILED").Wrap(err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Any malformed or tampered input
// yields a bad request error.
func (c *AESTokenCipher) Decrypt(encoded string) (string, error) {
	raw, err := hex.DecodeString(encoded)
	if err != nil || len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return "", invalidToken()
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", invalidToken()
	}
	return string(plain), nil
}

func invalidToken() error {
	return fault.BadRequest("TOKEN_INVALID", "Invalid token")
}
