package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Algorithm selects a block cipher for the CBC helpers.
type Algorithm int

const (
	AES Algorithm = iota
	DES
	TripleDES
)

func (a Algorithm) String() string {
	switch a {
	case AES:
		return "aes"
	case DES:
		return "des"
	case TripleDES:
		return "3des"
	default:
		return "unknown"
	}
}

// ParseAlgorithm accepts the names returned by String.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(s) {
	case "aes":
		return AES, nil
	case "des":
		return DES, nil
	case "3des", "tripledes":
		return TripleDES, nil
	default:
		return 0, fmt.Errorf("crypto: unknown algorithm %q", s)
	}
}

func (a Algorithm) keySize() int {
	switch a {
	case DES:
		return 8
	case TripleDES:
		return 24
	default:
		return 32
	}
}

// Options tunes the CBC helpers. A zero IV selects the algorithm default.
type Options struct {
	IV string
}

// DefaultOptions returns the IV used when none is given.
func DefaultOptions(alg Algorithm) Options {
	if alg == AES {
		return Options{IV: "0000000000000000"}
	}
	return Options{IV: "00000000"}
}

var (
	ErrEmptyInput = errors.New("crypto: key and text must not be empty")
	ErrBadPadding = errors.New("crypto: invalid padding")
)

// HashMD5 returns the lowercase hex MD5 of input.
func HashMD5(input string) string {
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}

// HashSHA256 returns the base64 SHA-256 of input.
func HashSHA256(input string) string {
	sum := sha256.Sum256([]byte(input))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func EncryptAES(key, text string, opts ...Options) (string, error) {
	return transform(AES, key, text, opts, true)
}

func DecryptAES(key, text string, opts ...Options) (string, error) {
	return transform(AES, key, text, opts, false)
}

func EncryptDES(key, text string, opts ...Options) (string, error) {
	return transform(DES, key, text, opts, true)
}

func DecryptDES(key, text string, opts ...Options) (string, error) {
	return transform(DES, key, text, opts, false)
}

func Encrypt3DES(key, text string, opts ...Options) (string, error) {
	return transform(TripleDES, key, text, opts, true)
}

func Decrypt3DES(key, text string, opts ...Options) (string, error) {
	return transform(TripleDES, key, text, opts, false)
}

// Encrypt runs the CBC/PKCS7 encryption for alg and returns base64.
func Encrypt(alg Algorithm, key, text string, opts ...Options) (string, error) {
	return transform(alg, key, text, opts, true)
}

// Decrypt reverses Encrypt.
func Decrypt(alg Algorithm, key, text string, opts ...Options) (string, error) {
	return transform(alg, key, text, opts, false)
}

func transform(alg Algorithm, key, text string, opts []Options, encrypt bool) (string, error) {
	if key == "" || text == "" {
		return "", ErrEmptyInput
	}
	opt := DefaultOptions(alg)
	if len(opts) > 0 {
		opt = opts[0]
	}

	block, err := newBlock(alg, deriveKey(key, alg.keySize()))
	if err != nil {
		return "", err
	}
	iv := deriveIV(opt.IV, block.BlockSize())

	if encrypt {
		plain := pkcs7Pad([]byte(text), block.BlockSize())
		out := make([]byte, len(plain))
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plain)
		return base64.StdEncoding.EncodeToString(out), nil
	}

	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return "", err
	}
	if len(data) == 0 || len(data)%block.BlockSize() != 0 {
		return "", ErrInvalidCiphertext
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	plain, err := pkcs7Unpad(out, block.BlockSize())
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func newBlock(alg Algorithm, key []byte) (cipher.Block, error) {
	switch alg {
	case DES:
		return des.NewCipher(key)
	case TripleDES:
		return des.NewTripleDESCipher(key)
	default:
		return aes.NewCipher(key)
	}
}

// deriveKey hashes key with SHA-256 and truncates or repeats the digest to
// size bytes.
func deriveKey(key string, size int) []byte {
	hash := sha256.Sum256([]byte(key))
	out := make([]byte, size)
	for off := 0; off < size; off += len(hash) {
		copy(out[off:], hash[:])
	}
	return out
}

// deriveIV zero-pads or truncates the UTF-8 bytes of iv. An empty iv falls
// back to the SHA-256 of nothing.
func deriveIV(iv string, size int) []byte {
	out := make([]byte, size)
	if iv == "" {
		hash := sha256.Sum256(nil)
		copy(out, hash[:])
		return out
	}
	copy(out, iv)
	return out
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrBadPadding
		}
	}
	return data[:len(data)-n], nil
}
