package tally

import "strings"

// matchPath checks whether a request path matches a glob-style pattern and
// returns the text matched by the wildcard, which becomes the event key.
//
// Supported patterns:
//   - "/downloads/*" matches any path under /downloads; the key is everything
//     after the prefix, slashes included
//   - "/files/*/download" matches one path segment; the key is that segment
//   - "/brochure.pdf" exact match; the key is the path itself
//   - "*" matches everything; the key is the path
//
// Only the first "*" is a wildcard.
func matchPath(path, pattern string) (string, bool) {
	// Strip trailing slashes for consistency.
	path = strings.TrimRight(path, "/")
	pattern = strings.TrimRight(pattern, "/")

	star := strings.IndexByte(pattern, '*')
	if star < 0 {
		if path == pattern && path != "" {
			return path, true
		}
		return "", false
	}

	if pattern == "*" {
		return path, path != ""
	}

	prefix, suffix := pattern[:star], pattern[star+1:]

	// Trailing /* captures everything remaining.
	if suffix == "" && strings.HasSuffix(prefix, "/") {
		key, ok := strings.CutPrefix(path, prefix)
		if !ok || key == "" {
			return "", false
		}
		return key, true
	}

	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return "", false
	}
	if len(path) < len(prefix)+len(suffix) {
		return "", false
	}

	key := path[len(prefix) : len(path)-len(suffix)]
	if key == "" || strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}
