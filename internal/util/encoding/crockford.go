// Package encoding implements the lower-case Crockford Base32 encoding used
// for content hashes and media IDs.
package encoding

import (
	"encoding/base32"
	"fmt"
	"strings"
)

// crockfordAlphabet omits i, l, o and u to avoid transcription errors.
const crockfordAlphabet = "0123456789abcdefghjkmnpqrstvwxyz"

//nolint:gochecknoglobals
var crockford = base32.NewEncoding(crockfordAlphabet).WithPadding(base32.NoPadding)

//nolint:gochecknoglobals
var normalizer = strings.NewReplacer(
	" ", "",
	"o", "0",
	"i", "1",
	"l", "1",
)

// EncodeCrockfordB32LC encodes input with Crockford's Base32 alphabet in lower case
// and without padding.
func EncodeCrockfordB32LC(input []byte) string {
	return crockford.EncodeToString(input)
}

// DecodeCrockfordB32LC decodes a string produced by EncodeCrockfordB32LC.
// The input is normalized first and may contain hyphens.
func DecodeCrockfordB32LC(input string) ([]byte, error) {
	input = strings.ReplaceAll(NormalizeCrockfordB32LC(input), "-", "")

	out, err := crockford.DecodeString(input)
	if err != nil {
		return nil, fmt.Errorf("decode crockford b32: %w", err)
	}

	return out, nil
}

// NormalizeCrockfordB32LC lower-cases input, drops spaces and maps the
// ambiguous letters o to 0 and i, l to 1.
func NormalizeCrockfordB32LC(input string) string {
	return normalizer.Replace(strings.ToLower(input))
}
