package token

import (
	"regexp"
	"strconv"
	"time"
)

// lifetimePattern accepts "<integer><unit>" with unit in s/m/h/d, e.g. "15m", "7d".
var lifetimePattern = regexp.MustCompile(`^(\d+)(s|m|h|d)$`)

// ParseLifetime converts a configured lifetime string into a duration.
// Returns a ConfigError for anything that does not match the
// "<integer><s|m|h|d>" grammar (empty string, missing unit, unknown unit).
func ParseLifetime(spec string) (time.Duration, error) {
	match := lifetimePattern.FindStringSubmatch(spec)
	if match == nil {
		return 0, configErrorf("invalid lifetime %q, expected <integer><s|m|h|d>", spec)
	}

	value, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, configErrorf("invalid lifetime %q: %v", spec, err)
	}

	switch match[2] {
	case "s":
		return time.Duration(value) * time.Second, nil
	case "m":
		return time.Duration(value) * time.Minute, nil
	case "h":
		return time.Duration(value) * time.Hour, nil
	case "d":
		return time.Duration(value) * 24 * time.Hour, nil
	}
	return 0, configErrorf("invalid lifetime unit in %q", spec)
}

// ExpiryAfter returns now plus the parsed lifetime. It knows nothing about
// tokens; it is a plain calendar computation shared by both mint paths and
// any caller needing a lifetime-to-timestamp conversion.
func ExpiryAfter(spec string) (time.Time, error) {
	d, err := ParseLifetime(spec)
	if err != nil {
		return time.Time{}, err
	}
	return time.Now().Add(d), nil
}
