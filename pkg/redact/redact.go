package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe  = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe  = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
	apiKeyRe = regexp.MustCompile(`\b(sk-(?:ant-)?[A-Za-z0-9_\-]{16,})\b`)
	bearerRe = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._\-]{16,}`)
)

// SetEnabled toggles PII redaction. Secrets are masked either way.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when PII redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text masks API keys and bearer tokens, and when enabled also emails and
// phone numbers.
func Text(in string) string {
	if strings.TrimSpace(in) == "" {
		return in
	}
	out := apiKeyRe.ReplaceAllString(in, "[REDACTED_KEY]")
	out = bearerRe.ReplaceAllString(out, "Bearer [REDACTED_KEY]")
	if !enabled.Load() {
		return out
	}
	out = emailRe.ReplaceAllString(out, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}

// Truncate redacts in and cuts it to at most n runes for log lines.
func Truncate(in string, n int) string {
	out := Text(in)
	if n <= 0 {
		return out
	}
	r := []rune(out)
	if len(r) <= n {
		return out
	}
	return string(r[:n]) + "..."
}
