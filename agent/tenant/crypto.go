package tenant

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	cipherPrefix = "enc:v1:"

	// Fixed salt keeps key derivation deterministic across processes;
	// rotating the master key requires re-encrypting stored credentials.
	kdfSalt       = "frontdesk-salt-v1"
	kdfIterations = 480_000
	kdfKeyLen     = 32
)

var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// Vault encrypts and decrypts tenant credentials with AES-256-GCM under a
// key derived from the master key via PBKDF2-SHA256. Plaintext credentials
// exist only in process memory, for the duration of one call.
type Vault struct {
	aead cipher.AEAD
}

func NewVault(masterKey string) (*Vault, error) {
	masterKey = strings.TrimSpace(masterKey)
	if masterKey == "" {
		return nil, errors.New("master key is required")
	}

	key := pbkdf2.Key([]byte(masterKey), []byte(kdfSalt), kdfIterations, kdfKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return cipherPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	if !IsEncrypted(ciphertext) {
		return "", fmt.Errorf("%w: missing %q prefix", ErrInvalidCiphertext, cipherPrefix)
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(ciphertext, cipherPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(raw) < v.aead.NonceSize() {
		return "", fmt.Errorf("%w: too short", ErrInvalidCiphertext)
	}

	nonce, sealed := raw[:v.aead.NonceSize()], raw[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	return string(plaintext), nil
}

// EncryptIfNeeded leaves already-encrypted values untouched, so re-saving a
// tenant record never double-encrypts.
func (v *Vault) EncryptIfNeeded(value string) (string, error) {
	if IsEncrypted(value) {
		return value, nil
	}
	return v.Encrypt(value)
}

func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, cipherPrefix)
}
