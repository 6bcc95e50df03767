package util

import (
	"html"
	"strings"
)

// Identity fields (user_id, email, role) end up inside signed claims and in
// audit events consumed by downstream dashboards; markup has no business in
// either place.
var suspiciousFragments = []string{"<", ">", "$", "{", "}", "script", "onerror", "onload"}

// SanitizeInput trims and HTML-escapes a caller-supplied identity field.
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// ContainsSuspicious reports whether an identity field carries markup or
// injection fragments and should be rejected outright instead of escaped.
func ContainsSuspicious(s string) bool {
	lower := strings.ToLower(s)
	for _, fragment := range suspiciousFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
