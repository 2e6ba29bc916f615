// Package credential parses and formats opaque bearer credentials and
// generates the random identifiers and secrets minted into them.
package credential

import (
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformed is returned when a bearer string does not conform to the
// sk-proj.{project_id}.{key_id}.{secret} shape. Callers must treat this
// identically to any other validation denial: same response shape, same
// latency class, no distinguishing detail surfaced to the client.
var ErrMalformed = errors.New("malformed credential")

const (
	literalPrefix = "sk-proj"
	keyIDPrefix   = "k_"
)

var (
	projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	keyIDPattern     = regexp.MustCompile(`^k_[A-Za-z0-9_-]{4,32}$`)
	secretPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)
)

// base62Alphabet is also URL-safe and never contains the "." segment
// separator, so generated identifiers can never be mistaken for a
// segment boundary.
const base62Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Credential is the parsed form of a bearer string.
type Credential struct {
	ProjectID string
	KeyID     string
	Secret    string
}

// Parse splits and validates a bearer string into its four segments.
// Returns ErrMalformed on any structural or pattern violation.
func Parse(bearer string) (Credential, error) {
	segments := strings.Split(bearer, ".")
	if len(segments) != 4 {
		return Credential{}, ErrMalformed
	}
	for _, seg := range segments {
		if seg == "" {
			return Credential{}, ErrMalformed
		}
	}
	if segments[0] != literalPrefix {
		return Credential{}, ErrMalformed
	}
	projectID, keyID, secret := segments[1], segments[2], segments[3]
	if !projectIDPattern.MatchString(projectID) {
		return Credential{}, ErrMalformed
	}
	if !keyIDPattern.MatchString(keyID) {
		return Credential{}, ErrMalformed
	}
	if !secretPattern.MatchString(secret) {
		return Credential{}, ErrMalformed
	}
	return Credential{ProjectID: projectID, KeyID: keyID, Secret: secret}, nil
}

// Format is the inverse of Parse: it renders a bearer string from its parts.
func Format(projectID, keyID, secret string) string {
	return fmt.Sprintf("%s.%s.%s.%s", literalPrefix, projectID, keyID, secret)
}

// randomBase62 returns n characters drawn from base62Alphabet using a
// cryptographically secure source.
func randomBase62(n int) (string, error) {
	alphabetLen := byte(len(base62Alphabet))
	out := make([]byte, n)
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		out[i] = base62Alphabet[b%alphabetLen]
	}
	return string(out), nil
}

// NewKeyID generates a "k_" prefixed key_id: the prefix plus 7 base62
// characters from a cryptographically secure source.
func NewKeyID() (string, error) {
	suffix, err := randomBase62(7)
	if err != nil {
		return "", fmt.Errorf("generate key id: %w", err)
	}
	return keyIDPrefix + suffix, nil
}

// NewSecret generates a 32-character base62 secret.
func NewSecret() (string, error) {
	secret, err := randomBase62(32)
	if err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return secret, nil
}
