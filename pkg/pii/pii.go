// Package pii encrypts candidate ID-card and phone numbers at rest.
//
// The cipher is deterministic AES in ECB mode with PKCS#7 padding, matching
// the stored format the admin tooling already reads. It provides
// confidentiality only: ciphertexts are not integrity-protected and equal
// plaintexts produce equal ciphertexts. Key management is external; the AES
// key is derived from the configured secret with HKDF so the raw secret never
// acts as key material directly.
package pii

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keySize = 32

var errBadCiphertext = errors.New("pii: malformed ciphertext")

// Cipher encrypts and decrypts short PII strings.
type Cipher struct {
	block cipher.Block
}

// NewCipher derives an AES-256 key from secret and returns a ready cipher.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("pii: secret is required")
	}
	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("examreg/pii/v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("pii: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("pii: init cipher: %w", err)
	}
	return &Cipher{block: block}, nil
}

// Encrypt returns the base64 ciphertext of plaintext. Empty input encrypts to
// empty output so optional fields stay optional.
func (c *Cipher) Encrypt(plaintext string) string {
	if plaintext == "" {
		return ""
	}
	padded := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aes.BlockSize {
		c.block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}
	return base64.StdEncoding.EncodeToString(out)
}

// Decrypt reverses Encrypt. Malformed input yields an error, never a panic.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errBadCiphertext
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", errBadCiphertext
	}
	out := make([]byte, len(raw))
	for i := 0; i < len(raw); i += aes.BlockSize {
		c.block.Decrypt(out[i:i+aes.BlockSize], raw[i:i+aes.BlockSize])
	}
	plain, err := unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	padded := make([]byte, len(b)+n)
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 {
		return nil, errBadCiphertext
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, errBadCiphertext
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errBadCiphertext
		}
	}
	return b[:len(b)-n], nil
}

// MaskPhone hides the middle digits of an 11-digit phone number. Other
// lengths are returned unchanged; they are already non-standard input.
func MaskPhone(phone string) string {
	if len(phone) != 11 {
		return phone
	}
	return phone[:3] + "****" + phone[7:]
}

// MaskIDCard hides the middle of an 18-digit national ID, keeping the first
// three and last four characters.
func MaskIDCard(idCard string) string {
	if len(idCard) < 8 {
		return idCard
	}
	return idCard[:3] + "***********" + idCard[len(idCard)-4:]
}
