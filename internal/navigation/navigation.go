// Package navigation parses ravn:// deep-link URLs into router paths for
// the UI layer.
package navigation

import (
	"fmt"
	"strings"
)

const scheme = "ravn://"

// URL is a parsed ravn:// deep link.
type URL struct {
	Path  string
	Query string
}

// Parse splits a ravn://path?query URL. Any other scheme is rejected.
func Parse(raw string) (URL, error) {
	if !strings.HasPrefix(raw, scheme) {
		return URL{}, fmt.Errorf("invalid ravn url scheme: %s", raw)
	}
	rest := raw[len(scheme):]
	if q := strings.Index(rest, "?"); q >= 0 {
		return URL{Path: rest[:q], Query: rest[q+1:]}, nil
	}
	return URL{Path: rest}, nil
}

// RouterPath renders the URL as a /path?query router target.
func (u URL) RouterPath() string {
	path := u.Path
	if path == "" {
		path = "/"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if u.Query != "" {
		return path + "?" + u.Query
	}
	return path
}

// Build renders a ravn:// URL from components.
func Build(path, query string) string {
	out := scheme + strings.TrimPrefix(path, "/")
	if query != "" {
		out += "?" + query
	}
	return out
}
