package provider

import (
	"strings"

	"github.com/scribed/scribed/internal/job"
)

// Normalize trims the provider's text and collapses "nothing usable" shapes
// to the null-result sentinel: an empty string, or the literal null in any
// case, optionally wrapped in single or double quotes.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return job.ResultNone
	}
	unquoted := strings.Trim(s, `"'`)
	if strings.EqualFold(unquoted, "null") {
		return job.ResultNone
	}
	return s
}
