package session

import (
	"fmt"

	"github.com/example/imapwatch/imapwire"
)

// ServerError is a tagged NO/BAD returned for a user-requested command
// (LIST). The session stays alive; the error is returned directly to the
// caller that issued the command.
type ServerError struct {
	Status imapwire.Status
	Code   string // Bracketed response code, if any; e.g. "BADCHARSET".
	Text   string
}

func (e ServerError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("imap: server returned %s: %s", e.Status, e.Text)
	}
	return fmt.Sprintf("imap: server returned %s [%s]: %s", e.Status, e.Code, e.Text)
}

// FatalError is a tagged NO/BAD on a lifecycle command (CAPABILITY,
// STARTTLS, LOGIN, SELECT), or a transport failure. The session has
// stopped by the time this is observed.
type FatalError struct {
	Reason string
}

func (e FatalError) Error() string {
	return fmt.Sprintf("imap: session failed: %s", e.Reason)
}
