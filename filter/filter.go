// Package filter implements the subscriber-side acceptance predicate: a
// conjunction of flag and regex conditions evaluated against progressively
// more complete partial message state as the fetch pipeline advances.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/example/imapwatch/imapwire"
)

// Partial is the subset of a message's accumulated state a Filter may
// examine. Fields are nil/zero until the corresponding fetch stage has
// populated them.
type Partial struct {
	Flags    []string
	Envelope *imapwire.Envelope
}

// Filter is a conjunction of acceptance conditions. Construct with New; the
// zero value has no conditions and accepts every message (it is AcceptAll).
type Filter struct {
	hasFlags    map[string]bool
	lacksFlags  map[string]bool
	subjectRe   *regexp.Regexp
	senderRe    *regexp.Regexp
}

// AcceptAll is a Filter with no conditions; every message is accepted.
var AcceptAll = Filter{}

// New builds a Filter from the given flag sets and optional regexes.
// Construction fails if hasFlags and lacksFlags intersect.
func New(hasFlags, lacksFlags []string, subjectRegex, senderRegex string) (Filter, error) {
	has := toSet(hasFlags)
	lacks := toSet(lacksFlags)
	for f := range has {
		if lacks[f] {
			return Filter{}, fmt.Errorf("filter: flag %q is in both has_flags and lacks_flags", f)
		}
	}

	f := Filter{hasFlags: has, lacksFlags: lacks}
	if subjectRegex != "" {
		re, err := regexp.Compile(subjectRegex)
		if err != nil {
			return Filter{}, fmt.Errorf("filter: compiling subject regex: %w", err)
		}
		f.subjectRe = re
	}
	if senderRegex != "" {
		re, err := regexp.Compile(senderRegex)
		if err != nil {
			return Filter{}, fmt.Errorf("filter: compiling sender regex: %w", err)
		}
		f.senderRe = re
	}
	return f, nil
}

func toSet(flags []string) map[string]bool {
	if len(flags) == 0 {
		return nil
	}
	m := make(map[string]bool, len(flags))
	for _, f := range flags {
		m[normalizeFlag(f)] = true
	}
	return m
}

// normalizeFlag drops a leading backslash and lower-cases f, so "Seen",
// "seen" and `\Seen` all name the same flag.
func normalizeFlag(f string) string {
	return strings.ToLower(strings.TrimPrefix(f, `\`))
}

// NeedsFlags reports whether this filter's acceptance depends on the
// message's flags.
func (f Filter) NeedsFlags() bool {
	return len(f.hasFlags) > 0 || len(f.lacksFlags) > 0
}

// NeedsEnvelope reports whether this filter's acceptance depends on the
// message's envelope (subject or sender address).
func (f Filter) NeedsEnvelope() bool {
	return f.subjectRe != nil || f.senderRe != nil
}

// Accepts reports whether partial satisfies every condition. A condition
// whose required data is absent rejects: a has-flag with no flags present,
// or a subject/sender regex with a nil partial.Envelope. Flags are compared
// case-insensitively, ignoring a leading backslash.
func (f Filter) Accepts(partial Partial) bool {
	for flag := range f.hasFlags {
		if !containsFold(partial.Flags, flag) {
			return false
		}
	}
	for flag := range f.lacksFlags {
		if containsFold(partial.Flags, flag) {
			return false
		}
	}
	if f.subjectRe != nil {
		if partial.Envelope == nil || !f.subjectRe.MatchString(partial.Envelope.Subject) {
			return false
		}
	}
	if f.senderRe != nil {
		if partial.Envelope == nil || !senderMatches(f.senderRe, partial.Envelope.From) {
			return false
		}
	}
	return true
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if eqFold(strings.TrimPrefix(h, `\`), needle) {
			return true
		}
	}
	return false
}

func eqFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func senderMatches(re *regexp.Regexp, from []imapwire.Address) bool {
	for _, a := range from {
		if re.MatchString(a.Addr()) {
			return true
		}
	}
	return false
}
