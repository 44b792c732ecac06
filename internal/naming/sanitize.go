package naming

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxNameLength caps a single path segment, leaving room for suffixes and
// extensions below the usual 255 byte limit.
const maxNameLength = 100

// fallbackName replaces segments that sanitize to nothing.
const fallbackName = "file"

// sanitizeSegment folds s to a safe ASCII file name segment.
func sanitizeSegment(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range folded {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._-", r)):
			b.WriteRune(r)
			dash = r == '-'
		case !dash:
			b.WriteByte('-')
			dash = true
		}
	}

	name := strings.Trim(b.String(), "-.")
	if len(name) > maxNameLength {
		name = strings.TrimRight(name[:maxNameLength], "-.")
	}
	if name == "" {
		return fallbackName
	}
	return name
}

// queryHash returns a short stable hash of a raw query string.
func queryHash(rawQuery string) string {
	sum := sha256.Sum256([]byte(rawQuery))
	return hex.EncodeToString(sum[:4])
}
