// Package secrets encrypts token material and provider client secrets at rest.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the required master key length.
	KeySize = 32

	hkdfInfo = "oauth-bridge-secrets-v1"
)

var (
	ErrInvalidKey        = errors.New("secrets: master key must be 32 bytes")
	ErrInvalidCiphertext = errors.New("secrets: invalid ciphertext")
	ErrDecryptionFailed  = errors.New("secrets: decryption failed")
)

// Codec converts between plaintext secrets and their stored form.
type Codec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AESCodec is an AES-256-GCM codec whose key is derived from a master key with HKDF.
// Output is base64(nonce || ciphertext || tag).
type AESCodec struct {
	aead cipher.AEAD
}

// NewAESCodec derives a purpose-bound key from masterKey. Different purposes
// yield independent keys from the same master key.
func NewAESCodec(masterKey []byte, purpose string) (*AESCodec, error) {
	if len(masterKey) != KeySize {
		return nil, ErrInvalidKey
	}

	key := make([]byte, KeySize)
	reader := hkdf.New(sha256.New, masterKey, []byte(purpose), []byte(hkdfInfo))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &AESCodec{aead: gcm}, nil
}

func (c *AESCodec) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (c *AESCodec) Decrypt(encoded string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Join(ErrInvalidCiphertext, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize+c.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}

// EncryptOptional encrypts s unless it is empty, in which case it returns nil.
func EncryptOptional(c Codec, s string) (*string, error) {
	if s == "" {
		return nil, nil
	}
	enc, err := c.Encrypt(s)
	if err != nil {
		return nil, err
	}
	return &enc, nil
}

// DecryptOptional is the inverse of EncryptOptional.
func DecryptOptional(c Codec, s *string) (string, error) {
	if s == nil || *s == "" {
		return "", nil
	}
	return c.Decrypt(*s)
}

var _ Codec = (*AESCodec)(nil)
