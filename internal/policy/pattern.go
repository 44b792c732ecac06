package policy

import (
	"path/filepath"
	"strings"
)

// matchPattern checks if a URL path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//   - a trailing /* to match a whole subtree ("/admin/*" matches "/admin/a/b")
//   - a leading *. to match an extension anywhere ("*.pdf")
func matchPattern(pattern, urlPath string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if strings.HasPrefix(urlPath, prefix+"/") || urlPath == prefix {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(ext, ".") {
		if strings.HasSuffix(urlPath, ext) {
			return true
		}
	}

	if matched, err := filepath.Match(pattern, urlPath); err == nil && matched {
		return true
	}

	// Patterns without a slash also match the last path segment.
	if strings.ContainsAny(pattern, "*?") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(urlPath)); err == nil && matched {
			return true
		}
	}

	return false
}

// matchPath applies ignore patterns first, then follow patterns.
// With no follow patterns, every path that is not ignored matches.
func matchPath(ignore, follow []string, urlPath string) bool {
	if urlPath == "" {
		urlPath = "/"
	}

	for _, pattern := range ignore {
		if matchPattern(pattern, urlPath) {
			return false
		}
	}

	if len(follow) == 0 {
		return true
	}
	for _, pattern := range follow {
		if matchPattern(pattern, urlPath) {
			return true
		}
	}
	return false
}
