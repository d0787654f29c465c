package filename

import (
	"fmt"
	"strings"
	"time"
)

const (
	maxURLLength    = 50
	timestampLayout = "2006-01-02T15-04-05"
)

// Generate builds "{url}_{width}x{height}_{timestamp}.{format}" where url is
// the address without its http(s) scheme, reduced to [A-Za-z0-9_.-] and cut
// to 50 characters. The timestamp has second resolution, so two captures of
// the same page and size within one second share a name.
func Generate(url string, width int, height int, format string, now time.Time) string {
	timestamp := now.UTC().Format(timestampLayout)
	return fmt.Sprintf("%s_%dx%d_%s.%s", sanitize(url), width, height, timestamp, format)
}

func sanitize(url string) string {
	if strings.HasPrefix(url, "http://") {
		url = strings.TrimPrefix(url, "http://")
	} else {
		url = strings.TrimPrefix(url, "https://")
	}

	var b strings.Builder
	b.Grow(len(url))
	lastDash := false
	for _, r := range url {
		if !isSafe(r) {
			r = '-'
		}
		if r == '-' {
			if lastDash {
				continue
			}
			lastDash = true
		} else {
			lastDash = false
		}
		b.WriteRune(r)
	}

	s := strings.Trim(b.String(), "-")
	if len(s) > maxURLLength {
		s = s[:maxURLLength]
	}
	return s
}

func isSafe(r rune) bool {
	switch {
	case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
		return true
	case r == '_', r == '.', r == '-':
		return true
	}
	return false
}
