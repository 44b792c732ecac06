package handler

import (
	"fmt"
	"net/url"
	"strings"
)

// skippedSchemes are reference prefixes that never point at fetchable content.
var skippedSchemes = []string{
	"data:",
	"javascript:",
	"mailto:",
	"tel:",
	"about:",
	"blob:",
}

// skipReference reports whether a raw reference should not be extracted:
// empty values, pure fragments and non-fetchable schemes.
func skipReference(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return true
	}
	lower := strings.ToLower(raw)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

// resolveReference resolves raw against base following RFC 3986 (relative,
// absolute-path, protocol-relative and fully-qualified forms). The fragment is
// dropped because it never changes what is fetched.
func resolveReference(base, raw string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: base %q: %w", ErrInvalidReference, base, err)
	}
	r, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidReference, raw, err)
	}

	resolved := b.ResolveReference(r)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, resolved.String())
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved.String(), nil
}

// baseFor returns the URL references of res should be resolved against.
// An HTML <base href> is itself resolved against the document URL.
func baseFor(docURL, baseHref string) string {
	if baseHref == "" {
		return docURL
	}
	abs, err := resolveReference(docURL, baseHref)
	if err != nil {
		return docURL
	}
	return abs
}
