package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var (
	ErrInvalidKey        = errors.New("encryption key must not be empty")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// Encryptor handles AES-256-GCM encryption/decryption
type Encryptor struct {
	gcm      cipher.AEAD
	encoding *base64.Encoding
}

// NewEncryptor creates a new encryptor with the given key. Keys that are
// not 32 bytes are stretched with SHA-256.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) == 0 {
		return nil, ErrInvalidKey
	}
	if len(key) != 32 {
		hash := sha256.Sum256(key)
		key = hash[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{
		gcm:      gcm,
		encoding: base64.StdEncoding,
	}, nil
}

// URLSafe returns a copy that emits unpadded URL-safe base64, suitable for
// path segments.
func (e *Encryptor) URLSafe() *Encryptor {
	return &Encryptor{gcm: e.gcm, encoding: base64.RawURLEncoding}
}

// Encrypt encrypts plaintext and returns base64-encoded ciphertext
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return e.encoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts base64-encoded ciphertext
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := e.encoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	nonceSize := e.gcm.NonceSize()
	if len(data) < nonceSize+e.gcm.Overhead() {
		return "", ErrInvalidCiphertext
	}

	nonce, encrypted := data[:nonceSize], data[nonceSize:]

	plaintext, err := e.gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// EncryptID seals a generated id into an opaque token.
func (e *Encryptor) EncryptID(id int64) (string, error) {
	return e.Encrypt(strconv.FormatInt(id, 10))
}

// DecryptID reverses EncryptID.
func (e *Encryptor) DecryptID(token string) (int64, error) {
	if token == "" {
		return 0, ErrInvalidCiphertext
	}
	plain, err := e.Decrypt(token)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(plain, 10, 64)
	if err != nil {
		return 0, ErrInvalidCiphertext
	}
	return id, nil
}

// IsEncrypted checks if a string appears to be encrypted (base64 with proper length)
func IsEncrypted(s string) bool {
	if s == "" {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return false
	}

	// nonce (12 bytes) + tag (16 bytes)
	return len(decoded) >= 28
}
