package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// encryptedPrefix discriminates ciphertext from legacy plaintext, matching
// the original Python implementation's Fernet-based scheme
// (app/core/encryption.py: ENCRYPTED_PREFIX = "enc:"). This repository
// reimplements the same shape with AES-GCM since no Fernet-compatible
// library is present anywhere in the retrieval pack.
const encryptedPrefix = "enc:"

// Cipher derives a 256-bit AES key from a process secret via SHA-256,
// exactly as the original derives its Fernet key, and performs AES-GCM
// authenticated encryption with the enc: prefix discriminator.
type Cipher struct {
	key [32]byte
}

// NewCipher derives the cipher key from secretKey.
func NewCipher(secretKey string) *Cipher {
	return &Cipher{key: sha256.Sum256([]byte(secretKey))}
}

// Encrypt returns ciphertext prefixed with "enc:". The nonce is prepended to
// the sealed output before base64 encoding.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return "", fmt.Errorf("creating aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedPrefix + base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Returns an error if value does not carry the
// enc: prefix — callers should check IsEncrypted first for read-through
// compatibility with legacy plaintext rows.
func (c *Cipher) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return "", errors.New("vault: value is not encrypted")
	}
	raw, err := base64.URLEncoding.DecodeString(strings.TrimPrefix(value, encryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return "", fmt.Errorf("creating aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating gcm: %w", err)
	}
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("vault: ciphertext too short")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether value carries the enc: discriminator.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encryptedPrefix)
}

// EncryptIfNeeded is idempotent: encrypting an already-encrypted value is a
// no-op (spec invariant 6).
func (c *Cipher) EncryptIfNeeded(value string) (string, error) {
	if IsEncrypted(value) {
		return value, nil
	}
	return c.Encrypt(value)
}

// DecryptIfNeeded is idempotent in the other direction: decrypting a value
// that isn't encrypted returns it unchanged, treating it as legacy plaintext
// pending re-encryption on next write.
func (c *Cipher) DecryptIfNeeded(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	return c.Decrypt(value)
}
