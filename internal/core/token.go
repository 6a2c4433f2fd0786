package core

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Token wire format: ct_<lookup>_<secret>. The lookup segment is the
// first 8 characters of the token id and lets verification fetch a
// single row by index; the secret is 192 bits of randomness rendered
// as lowercase unpadded base32.
const (
	TokenPrefix     = "ct"
	TokenSecretSize = 24
	LookupLen       = 8
)

var (
	ErrInvalidToken = errors.New("invalid token format")
	ErrInvalidHash  = errors.New("invalid hash format")
	ErrHashMismatch = errors.New("token does not match hash")
)

// argon2id parameters, serialized into the PHC hash string so they can
// be tuned without invalidating stored hashes.
const (
	argonMemory  = 64 * 1024
	argonTime    = 1
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns n random bytes encoded as lowercase unpadded
// base32.
func GenerateSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return strings.ToLower(secretEncoding.EncodeToString(buf)), nil
}

// BuildToken assembles the wire form of a token.
func BuildToken(lookup, secret string) string {
	return TokenPrefix + "_" + lookup + "_" + secret
}

// ParseToken splits a wire token into its lookup and secret segments.
func ParseToken(token string) (lookup, secret string, err error) {
	parts := strings.SplitN(token, "_", 3)
	if len(parts) != 3 || parts[0] != TokenPrefix {
		return "", "", ErrInvalidToken
	}
	if parts[1] == "" || parts[2] == "" {
		return "", "", ErrInvalidToken
	}
	return parts[1], parts[2], nil
}

// HashToken derives an argon2id hash of the full wire token and
// serializes it in PHC format with a fresh random salt.
func HashToken(token string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyToken checks a wire token against a stored PHC hash using a
// constant-time comparison. Returns ErrHashMismatch when the token is
// wrong and ErrInvalidHash when the stored string is malformed.
func VerifyToken(token, hash string) error {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return ErrInvalidHash
	}

	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return ErrInvalidHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return ErrInvalidHash
	}

	got := argon2.IDKey([]byte(token), salt, time, memory, threads, uint32(len(want)))
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrHashMismatch
	}
	return nil
}
