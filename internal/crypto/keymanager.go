// Package crypto resolves the bot's signing key and signs execution
// transactions for the configured chain.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// kdfIterations is the OWASP-recommended minimum for PBKDF2-HMAC-SHA256.
	kdfIterations = 480_000
	kdfSaltLen    = 16
	aesKeyLen     = 32

	keyfileVersion = 1
)

// keyfile is the on-disk format for an encrypted signing key. All binary
// fields are hex-encoded.
type keyfile struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeySource carries the inputs needed to resolve the signing key, populated
// from the wallet config section.
type KeySource struct {
	// RawHex is a hex private key (0x prefix optional); env-only, takes
	// precedence when set.
	RawHex string
	// KeyfilePath points at a JSON file written by SealKey.
	KeyfilePath string
	// Password decrypts the keyfile.
	Password string
}

// SealKey encrypts a 32-byte hex private key under a password with
// PBKDF2-HMAC-SHA256 and AES-256-GCM, returning the keyfile JSON.
func SealKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	keyBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("crypto: expected 32-byte key, got %d bytes", len(keyBytes))
	}

	salt := make([]byte, kdfSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	kf := keyfile{
		Version:    keyfileVersion,
		KDF:        "pbkdf2-sha256",
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(gcm.Seal(nil, nonce, keyBytes, nil)),
	}
	return json.MarshalIndent(kf, "", "  ")
}

// OpenKey decrypts keyfile JSON produced by SealKey, returning the private
// key as hex without the 0x prefix.
func OpenKey(data []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}
	var kf keyfile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", fmt.Errorf("crypto: parsing keyfile: %w", err)
	}
	if kf.Version != keyfileVersion {
		return "", fmt.Errorf("crypto: unsupported keyfile version %d", kf.Version)
	}
	salt, err := hex.DecodeString(kf.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := hex.DecodeString(kf.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := hex.DecodeString(kf.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	return hex.EncodeToString(plaintext), nil
}

// ResolveKey returns the signing key hex from the first configured source:
// raw key, then keyfile.
func ResolveKey(src KeySource) (string, error) {
	if src.RawHex != "" {
		k := strings.TrimPrefix(src.RawHex, "0x")
		if _, err := hex.DecodeString(k); err != nil {
			return "", fmt.Errorf("crypto: raw key is not valid hex: %w", err)
		}
		return k, nil
	}
	if src.KeyfilePath != "" {
		data, err := os.ReadFile(src.KeyfilePath)
		if err != nil {
			return "", fmt.Errorf("crypto: reading keyfile: %w", err)
		}
		return OpenKey(data, src.Password)
	}
	return "", errors.New("crypto: no key source configured (set wallet.private_key or wallet.encrypted_key_path)")
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, kdfIterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}
