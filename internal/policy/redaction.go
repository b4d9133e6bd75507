// Package policy decides what caller data may leave the process in logs.
package policy

import (
	"regexp"
	"strings"
)

var (
	uriPattern   = regexp.MustCompile(`(?i)\b(?:sips?|tel):[^\s;>]+`)
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-(). ]{5,}[0-9]`)
)

// RedactCaller masks phone numbers, emails and SIP/tel URIs in a caller
// display string. Phone numbers keep their last two digits so operators can
// still tell calls apart.
func RedactCaller(caller string) (redacted string, changed bool) {
	out := caller

	// URIs first; sip:alice@host would otherwise be half-matched as an email.
	next := uriPattern.ReplaceAllString(out, "[REDACTED_URI]")
	changed = changed || next != out
	out = next

	next = emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllStringFunc(out, maskPhone)
	changed = changed || next != out
	out = next

	return out, changed
}

// LogCaller is RedactCaller for slog attributes.
func LogCaller(caller string) string {
	out, _ := RedactCaller(strings.TrimSpace(caller))
	return out
}

func maskPhone(number string) string {
	digits := make([]byte, 0, len(number))
	for i := 0; i < len(number); i++ {
		if number[i] >= '0' && number[i] <= '9' {
			digits = append(digits, number[i])
		}
	}
	if len(digits) < 7 {
		return number
	}
	return "[PHONE ..." + string(digits[len(digits)-2:]) + "]"
}
