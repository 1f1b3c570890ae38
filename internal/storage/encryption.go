package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/argon2"
)

// EncryptionMagicHeader starts every encrypted backup.
const EncryptionMagicHeader = "CFBMENC1"

const (
	saltSize = 32
	keySize  = 32 // AES-256
	tagSize  = 16
)

var errNoPassphrase = errors.New("encryption passphrase required")

// EncryptionConfig holds the passphrase and Argon2id cost parameters. The
// same parameters must be used to decrypt.
type EncryptionConfig struct {
	Passphrase string
	Time       uint32 // Argon2 passes
	MemoryKiB  uint32
	Threads    uint8
}

// DefaultEncryptionConfig uses the RFC 9106 second recommended profile
// (1 pass, 64 MiB).
func DefaultEncryptionConfig(passphrase string) *EncryptionConfig {
	return &EncryptionConfig{
		Passphrase: passphrase,
		Time:       1,
		MemoryKiB:  64 * 1024,
		Threads:    4,
	}
}

// aead derives a key for salt and returns the AES-GCM cipher.
func (c *EncryptionConfig) aead(salt []byte) (cipher.AEAD, error) {
	if c == nil || c.Passphrase == "" {
		return nil, errNoPassphrase
	}
	key := argon2.IDKey([]byte(c.Passphrase), salt, c.Time, c.MemoryKiB, c.Threads, keySize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncryptData seals plaintext. The result is salt || nonce || ciphertext.
func EncryptData(plaintext []byte, config *EncryptionConfig) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := config.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// DecryptData opens data produced by EncryptData.
func DecryptData(data []byte, config *EncryptionConfig) ([]byte, error) {
	if len(data) < saltSize+tagSize {
		return nil, fmt.Errorf("encrypted data too short")
	}
	gcm, err := config.aead(data[:saltSize])
	if err != nil {
		return nil, err
	}

	data = data[saltSize:]
	if len(data) < gcm.NonceSize()+tagSize {
		return nil, fmt.Errorf("encrypted data too short")
	}
	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("wrong passphrase or corrupted data: %w", err)
	}
	return plaintext, nil
}

// EncryptFile writes an encrypted copy of src to dst with mode 0600.
func EncryptFile(src, dst string, config *EncryptionConfig) error {
	plaintext, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	sealed, err := EncryptData(plaintext, config)
	if err != nil {
		return fmt.Errorf("encryption failed: %w", err)
	}
	if err := os.WriteFile(dst, append([]byte(EncryptionMagicHeader), sealed...), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}

// DecryptFile reverses EncryptFile.
func DecryptFile(src, dst string, config *EncryptionConfig) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	sealed, ok := bytes.CutPrefix(data, []byte(EncryptionMagicHeader))
	if !ok {
		return fmt.Errorf("%s is not an encrypted backup", src)
	}
	plaintext, err := DecryptData(sealed, config)
	if err != nil {
		return fmt.Errorf("decryption failed: %w", err)
	}
	if err := os.WriteFile(dst, plaintext, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}

// IsEncrypted reports whether path starts with the magic header.
func IsEncrypted(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = f.Close()
	}()

	header := make([]byte, len(EncryptionMagicHeader))
	if _, err := io.ReadFull(f, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return string(header) == EncryptionMagicHeader, nil
}
