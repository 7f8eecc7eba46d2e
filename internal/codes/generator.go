// Package codes mints the one-time secret codes handed to contributors and
// hashes them for storage.
package codes

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// Alphabet is the transcription-safe symbol set. I, O, 0 and 1 are omitted.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	entropyBytes   = 20
	symbolCount    = 32
	groupSize      = 4
	groupSeparator = "-"
)

// FormattedLength is the length of a grouped code, separators included.
const FormattedLength = symbolCount + symbolCount/groupSize - 1

// ErrEntropyUnavailable indicates the random source could not supply bytes.
var ErrEntropyUnavailable = errors.New("codes: entropy source unavailable")

var codeEncoding = base32.NewEncoding(Alphabet).WithPadding(base32.NoPadding)

// Generator produces grouped secret codes from a cryptographically secure source.
type Generator struct {
	entropy io.Reader
}

// NewGenerator returns a Generator reading from entropy, or crypto/rand when nil.
func NewGenerator(entropy io.Reader) *Generator {
	if entropy == nil {
		entropy = rand.Reader
	}
	return &Generator{entropy: entropy}
}

// Generate returns a fresh code such as "ABCD-EFGH-JKLM-NPQR-STUV-WXYZ-2345-6789".
// Twenty random bytes encode to exactly 32 symbols, 160 bits of entropy.
func (g *Generator) Generate() (string, error) {
	buffer := make([]byte, entropyBytes)
	if _, err := io.ReadFull(g.entropy, buffer); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	return groupSymbols(codeEncoding.EncodeToString(buffer)), nil
}

// Normalize canonicalizes user input into the grouped form that was hashed at
// issue time. Case, spaces and separators are ignored. The boolean is false
// when the input cannot be a code this package issued.
func Normalize(rawInput string) (string, bool) {
	var builder strings.Builder
	builder.Grow(symbolCount)
	for _, symbol := range strings.ToUpper(rawInput) {
		switch {
		case symbol == '-' || symbol == ' ' || symbol == '\t':
			continue
		case strings.ContainsRune(Alphabet, symbol):
			builder.WriteRune(symbol)
		default:
			return "", false
		}
		if builder.Len() > symbolCount {
			return "", false
		}
	}
	if builder.Len() != symbolCount {
		return "", false
	}
	return groupSymbols(builder.String()), true
}

func groupSymbols(symbols string) string {
	groups := make([]string, 0, len(symbols)/groupSize+1)
	for start := 0; start < len(symbols); start += groupSize {
		end := start + groupSize
		if end > len(symbols) {
			end = len(symbols)
		}
		groups = append(groups, symbols[start:end])
	}
	return strings.Join(groups, groupSeparator)
}
