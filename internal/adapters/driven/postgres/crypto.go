package postgres

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// blobVersion is the leading byte of the sealed format.
	blobVersion = 0x01

	// nonceSize is the AES-GCM nonce size
	nonceSize = 12

	// keySize is the required key size for AES-256
	keySize = 32
)

var (
	// ErrInvalidKeySize is returned when the encryption key is not 32 bytes.
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes")

	// ErrInvalidBlobSize is returned when the sealed blob is too small.
	ErrInvalidBlobSize = errors.New("encrypted blob is too small")

	// ErrUnsupportedVersion is returned when the blob version is not supported.
	ErrUnsupportedVersion = errors.New("unsupported blob version")

	// ErrDecryptionFailed is returned when opening fails (wrong key, wrong
	// storage key, or corrupted data).
	ErrDecryptionFailed = errors.New("failed to decrypt blob")
)

// BlobEncryptor seals uploaded file bytes with AES-256-GCM.
// Format: version(1) || nonce(12) || ciphertext(N). The storage key is
// bound as additional data, so a blob copied under another key fails to open.
type BlobEncryptor struct {
	gcm cipher.AEAD
}

// NewBlobEncryptor creates an encryptor with the given 32-byte key.
func NewBlobEncryptor(key []byte) (*BlobEncryptor, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &BlobEncryptor{gcm: gcm}, nil
}

// NewBlobEncryptorFromHex parses a 64-character hex key.
func NewBlobEncryptorFromHex(hexKey string) (*BlobEncryptor, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	return NewBlobEncryptor(key)
}

// Seal encrypts plaintext stored under storageKey.
func (e *BlobEncryptor) Seal(storageKey string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	blob := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+e.gcm.Overhead())
	blob[0] = blobVersion
	copy(blob[1:], nonce)
	return e.gcm.Seal(blob, nonce, plaintext, []byte(storageKey)), nil
}

// Open decrypts a blob sealed under storageKey.
func (e *BlobEncryptor) Open(storageKey string, blob []byte) ([]byte, error) {
	if len(blob) < 1+nonceSize+e.gcm.Overhead() {
		return nil, ErrInvalidBlobSize
	}
	if blob[0] != blobVersion {
		return nil, fmt.Errorf("%w: got version %d", ErrUnsupportedVersion, blob[0])
	}

	nonce := blob[1 : 1+nonceSize]
	plaintext, err := e.gcm.Open(nil, nonce, blob[1+nonceSize:], []byte(storageKey))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
