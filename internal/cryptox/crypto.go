// Package cryptox implements the crypto primitives of the identity store:
// symmetric key generation, salted one-way password hashing, and reversible
// encryption for secrets that must be retrievable (security answers when
// retrieval is enabled).
//
// All randomness comes from crypto/rand. Key material and salt bounds are
// validated once at configuration time; the per-call functions assume valid
// inputs.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"

	"golang.org/x/crypto/argon2"
)

// Accepted symmetric key sizes, in bytes.
const (
	KeySize128 = 16
	KeySize192 = 24
	KeySize256 = 32
)

// argon2id parameters for password digests.
const (
	hashTime    = 1
	hashMemory  = 64 * 1024
	hashThreads = 4
	hashLen     = 32
)

// GenerateKey returns a fresh random symmetric key of the given bit length
// (128, 192, or 256).
func GenerateKey(bits int) ([]byte, error) {
	switch bits {
	case 128, 192, 256:
	default:
		return nil, fmt.Errorf("unsupported key length: %d bits", bits)
	}
	return RandBytes(bits / 8), nil
}

// EncodeKey renders a key in its portable text form for storage in
// configuration.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// DecodeKey parses the portable text form produced by EncodeKey and checks
// that the result is a valid AES key length.
func DecodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("key is not valid base64: %w", err)
	}
	switch len(key) {
	case KeySize128, KeySize192, KeySize256:
		return key, nil
	default:
		return nil, fmt.Errorf("key must be 16, 24 or 32 bytes, got %d", len(key))
	}
}

// GenerateSalt returns a random salt whose length is drawn uniformly from
// [minLen, maxLen]. Bounds are validated at configuration time.
func GenerateSalt(minLen, maxLen int) []byte {
	n := minLen
	if maxLen > minLen {
		d, err := rand.Int(rand.Reader, big.NewInt(int64(maxLen-minLen+1)))
		if err != nil {
			panic(err) // crypto/rand failure is not recoverable
		}
		n += int(d.Int64())
	}
	return RandBytes(n)
}

// HashPassword derives a one-way salted digest from the password. The same
// (password, salt) pair always yields the same digest; a fresh salt is
// generated on every password set or reset.
func HashPassword(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, hashTime, hashMemory, hashThreads, hashLen)
}

// VerifyDigest recomputes the digest for the candidate and compares it to
// the stored one in constant time.
func VerifyDigest(stored []byte, candidate string, salt []byte) bool {
	digest := HashPassword(candidate, salt)
	return subtle.ConstantTimeCompare(stored, digest) == 1
}

// Encrypt seals plaintext with AES-GCM under the given key. The random
// nonce is prepended to the returned ciphertext.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := RandBytes(aesgcm.NonceSize())
	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aesgcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:aesgcm.NonceSize()], ciphertext[aesgcm.NonceSize():]
	return aesgcm.Open(nil, nonce, sealed, nil)
}

// RandBytes returns n cryptographically random bytes.
func RandBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}
