// Package media resolves narration filenames to playable URLs and
// probes clip audio for its duration.
package media

import (
	"fmt"
	"net/url"
	"strings"
)

// URLResolver templates narration filenames against the configured
// media server base.
type URLResolver struct {
	base string
}

// NewURLResolver creates a resolver for the given base URL.
func NewURLResolver(baseURL string) *URLResolver {
	return &URLResolver{base: strings.TrimRight(baseURL, "/")}
}

// Resolve returns the playable URL for a narration filename.
func (r *URLResolver) Resolve(filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("empty narration filename")
	}
	return r.base + "/" + url.PathEscape(filename), nil
}
