// Package crypto implements the stateless Integrity & Crypto Module of
// spec §4.4: SHA-256 file hashing and password-derived AES-256-GCM
// authenticated encryption. Every function here is safe for concurrent
// use — there is no shared state, matching spec's "the module is
// stateless and thread-safe".
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize       = 8
	ivSize         = 12
	keySize        = 32
	pbkdf2Rounds   = 10000
	hashBlockSize  = 8 * 1024
)

// ErrAuthFailed is returned by Decrypt when the AEAD tag does not
// verify — a wrong password or corrupted ciphertext.
var ErrAuthFailed = errors.New("crypto: authentication failed")

// ErrShortCiphertext is returned by Decrypt when the input is smaller
// than the fixed salt+iv+tag overhead and therefore cannot be valid.
var ErrShortCiphertext = errors.New("crypto: ciphertext shorter than salt+iv+tag")

// HashFile computes the lowercase hex SHA-256 digest of r's content,
// reading in 8 KiB blocks per spec §4.4.
func HashFile(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, hashBlockSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("crypto: hashing failed: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes is a convenience wrapper around HashFile for in-memory data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func deriveKeyIV(password string, salt []byte) (key, iv []byte) {
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Rounds, keySize+ivSize, sha256.New)
	return derived[:keySize], derived[keySize:]
}

// Encrypt seals plaintext under a key derived from password via
// PBKDF2-HMAC-SHA256 over a fresh random 8-byte salt, producing
// salt(8) || iv(12) || ciphertext || tag(16) per spec §4.4.
func Encrypt(plaintext []byte, password string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: salt generation failed: %w", err)
	}
	key, iv := deriveKeyIV(password, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm init failed: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)

	out := make([]byte, 0, saltSize+ivSize+len(sealed))
	out = append(out, salt...)
	out = append(out, iv...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt reverses Encrypt. A wrong password or corrupted ciphertext
// yields ErrAuthFailed; an input too short to contain the fixed
// salt+iv+tag overhead yields ErrShortCiphertext.
func Decrypt(ciphertext []byte, password string) ([]byte, error) {
	const minLen = saltSize + ivSize + 16 // 16 = GCM tag size
	if len(ciphertext) < minLen {
		return nil, ErrShortCiphertext
	}

	salt := ciphertext[:saltSize]
	iv := ciphertext[saltSize : saltSize+ivSize]
	sealed := ciphertext[saltSize+ivSize:]

	key, _ := deriveKeyIV(password, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm init failed: %w", err)
	}

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}
