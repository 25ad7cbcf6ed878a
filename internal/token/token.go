// Package token mints page tokens: short, unguessable strings that identify a
// notebook page in a capture link. Tokens carry no data; every lookup goes
// through the page registry.
package token

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

const (
	// Prefix is prepended to every token so a token is recognisable when typed
	// or read aloud.
	Prefix = "NB-"

	// BodyLength is the number of random characters after the prefix.
	// 32^10 gives 50 bits of entropy.
	BodyLength = 10

	// Alphabet omits 0/O and 1/I so that hand-copied tokens survive.
	Alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

	// Length is the total length of a generated token.
	Length = len(Prefix) + BodyLength
)

// Generator produces tokens from a random source.
type Generator struct {
	random io.Reader
}

// NewGenerator returns a Generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{random: rand.Reader}
}

// NewGeneratorWithReader returns a Generator reading randomness from r.
// It exists for tests; production code should use NewGenerator.
func NewGeneratorWithReader(r io.Reader) *Generator {
	return &Generator{random: r}
}

// Generate returns a fresh token. An error is returned only when the random
// source fails.
func (g *Generator) Generate() (string, error) {
	// len(Alphabet) is 32, so the low five bits of each byte map uniformly.
	buf := make([]byte, BodyLength)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes for page token: %w", err)
	}

	var b strings.Builder
	b.Grow(Length)
	b.WriteString(Prefix)
	for _, c := range buf {
		b.WriteByte(Alphabet[int(c)&(len(Alphabet)-1)])
	}
	return b.String(), nil
}

// Generate returns a token from the default crypto/rand generator.
func Generate() (string, error) {
	return NewGenerator().Generate()
}

// LooksValid reports whether s has the shape of a generated token. It is a
// cheap pre-filter for request input and says nothing about whether the token
// was ever issued.
func LooksValid(s string) bool {
	if len(s) != Length || !strings.HasPrefix(s, Prefix) {
		return false
	}
	for i := len(Prefix); i < len(s); i++ {
		if strings.IndexByte(Alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

// Normalize upper-cases user-typed input and trims surrounding whitespace so
// that "nb-abcd…" typed on a phone still resolves.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
