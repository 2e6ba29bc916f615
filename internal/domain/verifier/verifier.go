// Package verifier derives and checks memory-hard password verifiers over
// API key secrets, using Argon2id with fixed, spec-pinned parameters.
package verifier

import (
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"
)

// ErrMalformed is returned when a stored verifier string cannot be parsed.
// This indicates corrupted persisted data, not a caller error; it must
// surface to the Validator as an internal error, never a plain denial.
var ErrMalformed = errors.New("verifier malformed")

// params are fixed per the credential format's security contract: time
// cost 3, memory cost 64 MiB, parallelism 1, 32-byte digest, 16-byte salt.
// Raising memory cost later is a breaking change because previously
// stored verifiers must remain verifiable; a rehash-on-successful-verify
// migration path is the recommended way to move parameters forward.
var params = &argon2id.Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Derive produces a self-describing encoded verifier for secret, including
// algorithm tag, parameters, salt, and digest (PHC format).
func Derive(secret string) (string, error) {
	encoded, err := argon2id.CreateHash(secret, params)
	if err != nil {
		return "", fmt.Errorf("derive verifier: %w", err)
	}
	return encoded, nil
}

// Check verifies secret against encoded in constant time. It returns
// (true, nil) on match, (false, nil) on mismatch, and (false, ErrMalformed)
// if encoded cannot be parsed as a PHC-format Argon2id verifier.
func Check(secret, encoded string) (bool, error) {
	match, err := safeCompare(secret, encoded)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return match, nil
}

// safeCompare wraps argon2id.ComparePasswordAndHash with panic recovery.
// The underlying argon2 library panics on malformed hashes with invalid
// parameters (e.g. t=0, p=0); this converts those panics into errors so
// Check never panics on corrupted stored data.
func safeCompare(secret, encoded string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid verifier parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(secret, encoded)
}
