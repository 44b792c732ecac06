package crawler

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"
)

// NormalizeURL returns the dedup key for an absolute http(s) URL.
//
// Design decision: We normalize URLs because:
//  1. Same resource can have different URL representations
//  2. Fragment (#anchor) doesn't change content
//  3. Default ports and dot segments are noise
//
// Rules: lowercase scheme and host, drop the default port, drop the fragment,
// turn an empty path into "/", and resolve "." and ".." segments. A non-empty
// query is kept verbatim because it often selects different content; a bare
// "?" is dropped.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidURL, rawURL)
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	// "font.eot?" is the same resource as "font.eot".
	if u.RawQuery == "" {
		u.ForceQuery = false
	}

	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	} else if u.RawPath == "" {
		cleaned := path.Clean(u.Path)
		if strings.HasSuffix(u.Path, "/") && cleaned != "/" {
			cleaned += "/"
		}
		u.Path = cleaned
	}

	return u.String(), nil
}

// SeedURL turns user input into an absolute seed URL. Input without a scheme
// is assumed to be http, matching what browsers do for bare host names.
func SeedURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty seed", ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return NormalizeURL(raw)
}
