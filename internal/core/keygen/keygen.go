// Package keygen produces license key strings of the form PREFIX-BODY, where BODY is
// drawn uniformly from the uppercase base-36 alphabet using crypto/rand.
package keygen

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
)

const (
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// BodyLength is the number of random characters in a generated key (~82.7 bits).
	BodyLength = 16
	// MinBodyLength is the shortest body accepted by IsWellFormed.
	MinBodyLength = 12

	// DefaultPrefix is used when no prefix is configured.
	DefaultPrefix = "ECL"

	// Bytes at or above this value are rejected so every symbol has equal probability.
	rejectAbove = 256 - 256%len(alphabet)
)

var (
	prefixRegex = regexp.MustCompile(`^[A-Z0-9]{2,8}$`)
	keyRegex    = regexp.MustCompile(`^[A-Z0-9]{2,8}-[0-9A-Z]{12,16}$`)
)

// Generator creates license keys. It is safe for concurrent use.
type Generator struct {
	prefix string
	random io.Reader
}

// New returns a Generator for the given tenant-visible prefix.
func New(prefix string) (*Generator, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !prefixRegex.MatchString(prefix) {
		return nil, fmt.Errorf("key prefix %q must be 2-8 uppercase alphanumeric characters", prefix)
	}
	return &Generator{prefix: prefix, random: rand.Reader}, nil
}

// Prefix returns the configured prefix.
func (g *Generator) Prefix() string {
	return g.prefix
}

// Generate returns a fresh key. Uniqueness is enforced by the store, not here.
func (g *Generator) Generate() (string, error) {
	body := make([]byte, 0, BodyLength)
	buf := make([]byte, BodyLength*2)

	for len(body) < BodyLength {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("failed to read randomness: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			body = append(body, alphabet[int(b)%len(alphabet)])
			if len(body) == BodyLength {
				break
			}
		}
	}

	return g.prefix + "-" + string(body), nil
}

// IsWellFormed reports whether key has the license key shape, regardless of prefix.
// Comparison elsewhere is exact, so lowercase input is malformed rather than normalized.
func IsWellFormed(key string) bool {
	return keyRegex.MatchString(key)
}
