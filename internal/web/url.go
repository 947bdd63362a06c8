package web

import (
	"errors"
	"net/url"
	"strings"
)

var ErrInvalidURL = errors.New("url must be an absolute http:// or https:// URL")

// NormalizeURL returns the cache key for a source URL: scheme and host
// lowercased, fragment dropped. Query and path are kept as given.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrInvalidURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}
