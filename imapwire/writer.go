package imapwire

import (
	"fmt"
	"strings"
)

// QuoteAstring renders s as a quoted IMAP string for use as a command
// argument. CR and LF are rejected outright (per the dispatcher's quoting
// rule — literals for such strings are not implemented); otherwise '\' and
// '"' are escaped and the result is wrapped in double quotes.
func QuoteAstring(s string) (string, error) {
	if strings.ContainsAny(s, "\r\n") {
		return "", fmt.Errorf("imap: argument contains CR or LF: %q", s)
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, c := range s {
		if c == '\\' || c == '"' {
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	b.WriteByte('"')
	return b.String(), nil
}
