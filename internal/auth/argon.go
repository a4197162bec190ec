// Package auth hashes and verifies user passwords. Plaintext passwords never
// reach the record store.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// maxPasswordLength bounds the hashing cost of a single call.
const maxPasswordLength = 1024

// Params are the argon2id cost parameters.
type Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams suits a single-user local profile.
var DefaultParams = Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// Hasher hashes passwords with a fixed set of parameters.
type Hasher struct {
	params Params
}

// NewHasher returns a Hasher using p.
func NewHasher(p Params) *Hasher {
	return &Hasher{params: p}
}

// HashPassword hashes with DefaultParams.
func HashPassword(password string) (string, error) {
	return NewHasher(DefaultParams).Hash(password)
}

// VerifyPassword checks password against an encoded argon2id hash.
// The parameters are read from the hash itself.
func VerifyPassword(encodedHash, password string) (bool, error) {
	return NewHasher(DefaultParams).Verify(encodedHash, password)
}

// Hash returns the PHC-style encoding of the argon2id hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	if len(password) > maxPasswordLength {
		return "", errors.New("password exceeds maximum length")
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encodedHash. A malformed hash is a
// mismatch, not an error, so callers cannot distinguish the two.
func (h *Hasher) Verify(encodedHash, password string) (bool, error) {
	if len(password) > maxPasswordLength {
		return false, nil
	}

	salt, key, params, err := decodeHash(encodedHash)
	if err != nil {
		//nolint:nilerr // a malformed hash is reported as a mismatch
		return false, nil
	}

	candidate := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

// NeedsRehash reports whether encodedHash was produced with parameters other
// than the hasher's own.
func (h *Hasher) NeedsRehash(encodedHash string) bool {
	_, _, params, err := decodeHash(encodedHash)
	if err != nil {
		return true
	}
	return params.Memory != h.params.Memory ||
		params.Iterations != h.params.Iterations ||
		params.Parallelism != h.params.Parallelism ||
		params.KeyLength != h.params.KeyLength
}

func decodeHash(encodedHash string) (salt, key []byte, params Params, err error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return nil, nil, params, errors.New("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, params, fmt.Errorf("invalid version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("incompatible version: %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return nil, nil, params, fmt.Errorf("invalid parameters: %w", err)
	}

	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, nil, params, fmt.Errorf("invalid salt encoding: %w", err)
	}
	if key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, nil, params, fmt.Errorf("invalid hash encoding: %w", err)
	}

	//nolint:gosec // key length is bounded by the encoder
	params.KeyLength = uint32(len(key))
	//nolint:gosec // salt length is bounded by the encoder
	params.SaltLength = uint32(len(salt))

	return salt, key, params, nil
}
