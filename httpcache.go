package zenwave

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CacheDirectives represents parsed Cache-Control directives.
type CacheDirectives struct {
	NoStore        bool
	NoCache        bool
	MaxAge         *time.Duration
	MustRevalidate bool
	Public         bool
	Private        bool
}

// parseCacheControl parses Cache-Control header values into structured
// directives. Multiple header values are folded together.
func parseCacheControl(values []string) *CacheDirectives {
	directives := &CacheDirectives{}
	for _, header := range values {
		for _, part := range strings.Split(header, ",") {
			part = strings.TrimSpace(strings.ToLower(part))
			if part == "" {
				continue
			}

			if strings.Contains(part, "=") {
				kv := strings.SplitN(part, "=", 2)
				if len(kv) != 2 {
					continue
				}
				key := strings.TrimSpace(kv[0])
				value := strings.Trim(strings.TrimSpace(kv[1]), "\"")

				if key == "max-age" {
					if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
						maxAge := time.Duration(seconds) * time.Second
						directives.MaxAge = &maxAge
					}
				}
			} else {
				switch part {
				case "no-store":
					directives.NoStore = true
				case "no-cache":
					directives.NoCache = true
				case "must-revalidate":
					directives.MustRevalidate = true
				case "public":
					directives.Public = true
				case "private":
					directives.Private = true
				}
			}
		}
	}
	return directives
}

// parseHTTPDate parses an HTTP date header in any of the three allowed formats.
func parseHTTPDate(header string) *time.Time {
	if header == "" {
		return nil
	}

	if t, err := time.Parse(time.RFC1123, header); err == nil {
		return &t
	}
	if t, err := time.Parse(time.RFC850, header); err == nil {
		return &t
	}
	if t, err := time.Parse(time.ANSIC, header); err == nil {
		return &t
	}

	return nil
}

// expiresIn converts an Expires header into a freshness duration relative to
// now. A past or unparsable Expires yields nothing: the entry is always stale
// and only usable through validator revalidation.
func expiresIn(header http.Header, now time.Time) *time.Duration {
	expires := parseHTTPDate(header.Get("Expires"))
	if expires == nil {
		return nil
	}
	d := expires.Sub(now)
	if d <= 0 {
		return nil
	}
	return &d
}

// responseFreshness computes freshness from Cache-Control max-age, falling
// back to the Expires header.
func responseFreshness(directives *CacheDirectives, header http.Header, now time.Time) *time.Duration {
	if directives.MaxAge != nil {
		return directives.MaxAge
	}
	return expiresIn(header, now)
}
