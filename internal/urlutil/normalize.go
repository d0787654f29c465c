package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

var disallowedPrefixes = []string{"file://", "javascript:", "data:"}

type InvalidURLError struct {
	Input  string
	Reason string
	Err    error
}

func (e *InvalidURLError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid url %q: %s: %v", e.Input, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid url %q: %s", e.Input, e.Reason)
}

func (e *InvalidURLError) Unwrap() error {
	return e.Err
}

// HasScheme reports whether target already starts with http:// or https://.
func HasScheme(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}

// Normalize returns raw with an http(s) scheme, inferring https:// when no
// scheme is given. Dangerous schemes are rejected before inference so that
// e.g. FILE://x never turns into https://FILE://x.
func Normalize(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", &InvalidURLError{Input: raw, Reason: "must be a non-empty string"}
	}

	lower := strings.ToLower(raw)
	for _, prefix := range disallowedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return "", &InvalidURLError{Input: raw, Reason: "scheme " + strings.TrimSuffix(prefix, "//") + " is not allowed"}
		}
	}

	normalized := raw
	if !HasScheme(raw) {
		normalized = "https://" + raw
	}

	u, err := url.Parse(normalized)
	if err != nil {
		return "", &InvalidURLError{Input: raw, Reason: "malformed", Err: err}
	}
	// url.Parse accepts "https://" and "https://:80"; a browser would not.
	if u.Hostname() == "" {
		return "", &InvalidURLError{Input: raw, Reason: "missing host"}
	}

	return normalized, nil
}
