package registry

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

const (
	// CodeLength is the number of characters in an issued code.
	CodeLength = 6

	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// largest multiple of len(codeAlphabet) that fits in a byte; bytes at or
// above it are rejected so every symbol is equally likely.
const codeByteLimit = 256 - (256 % len(codeAlphabet))

// Generator produces short uppercase alphanumeric codes.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a Generator reading from src, or crypto/rand when src is nil.
func NewGenerator(src io.Reader) *Generator {
	if src == nil {
		src = rand.Reader
	}
	return &Generator{rand: src}
}

// Generate returns a fresh code. Uniqueness is not checked here.
func (g *Generator) Generate() (string, error) {
	out := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)
	for len(out) < CodeLength {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= codeByteLimit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == CodeLength {
				break
			}
		}
	}
	return string(out), nil
}

// NormalizeCode trims and uppercases user input so either case resolves.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether an already normalized code has the issued shape.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}
