package registry

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
)

// ErrUnknownHashType is returned by Verify for a stored hash in no known format.
var ErrUnknownHashType = errors.New("registry: unknown password hash format")

// Hasher produces the password hash stored for a new registration.
type Hasher interface {
	Hash(password string) (string, error)
}

// SHA256Hasher stores the bare hex SHA-256 digest. It is the default and is
// readable by every deployment that shares the registry.
type SHA256Hasher struct{}

// Hash implements Hasher.
func (SHA256Hasher) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

// DefaultArgon2idParams follows the OWASP minimum for Argon2id.
var DefaultArgon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Argon2idHasher stores a salted Argon2id hash in PHC format.
type Argon2idHasher struct {
	// Params defaults to DefaultArgon2idParams when nil.
	Params *argon2id.Params
}

// Hash implements Hasher.
func (h Argon2idHasher) Hash(password string) (string, error) {
	params := h.Params
	if params == nil {
		params = DefaultArgon2idParams
	}
	return argon2id.CreateHash(password, params)
}

// NewHasher maps a configuration name to a Hasher: "sha256" (or empty) and
// "argon2id".
func NewHasher(name string) (Hasher, error) {
	switch strings.ToLower(name) {
	case "", "sha256":
		return SHA256Hasher{}, nil
	case "argon2id":
		return Argon2idHasher{}, nil
	}
	return nil, fmt.Errorf("registry: unknown hasher %q", name)
}

// Verify checks password against a stored hash of either format, so entries
// written before a hasher change stay valid.
func Verify(password, stored string) (bool, error) {
	switch {
	case strings.HasPrefix(stored, "$argon2id$"):
		return safeArgon2idCompare(password, stored)
	case len(stored) == sha256.Size*2 && isHex(stored):
		sum, _ := SHA256Hasher{}.Hash(password)
		return subtle.ConstantTimeCompare([]byte(sum), []byte(strings.ToLower(stored))) == 1, nil
	}
	return false, ErrUnknownHashType
}

// safeArgon2idCompare converts the panics argon2 raises on hashes with
// invalid parameters into errors.
func safeArgon2idCompare(password, stored string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("registry: invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(password, stored)
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}
