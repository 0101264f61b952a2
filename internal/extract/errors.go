package extract

import (
	"fmt"
	"net/url"
	"strings"
)

// InvalidURLError is returned before any network activity when the submitted
// URL is not an absolute http(s) URL.
type InvalidURLError struct {
	URL    string
	Reason string
}

func (e *InvalidURLError) Error() string {
	if e.URL == "" {
		return "invalid url: " + e.Reason
	}
	return fmt.Sprintf("invalid url %q: %s", e.URL, e.Reason)
}

// ValidateURL parses raw and requires an absolute http or https URL with a host.
func ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &InvalidURLError{Reason: "url is required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &InvalidURLError{URL: raw, Reason: err.Error()}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return nil, &InvalidURLError{URL: raw, Reason: "url must be absolute"}
	default:
		return nil, &InvalidURLError{URL: raw, Reason: "unsupported scheme " + u.Scheme}
	}
	if u.Host == "" {
		return nil, &InvalidURLError{URL: raw, Reason: "missing host"}
	}
	return u, nil
}
