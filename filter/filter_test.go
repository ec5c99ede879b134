package filter

import (
	"testing"

	"github.com/example/imapwatch/imapwire"
)

func TestNewRejectsIntersectingFlagSets(t *testing.T) {
	_, err := New([]string{"Seen"}, []string{"seen"}, "", "")
	if err == nil {
		t.Fatalf("expected an error for overlapping has/lacks flags")
	}
}

func TestNeedsFlagsAndEnvelope(t *testing.T) {
	f, err := New([]string{"Seen"}, nil, "", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !f.NeedsFlags() {
		t.Fatalf("expected NeedsFlags to be true")
	}
	if f.NeedsEnvelope() {
		t.Fatalf("expected NeedsEnvelope to be false")
	}

	f, err = New(nil, nil, "invoice", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f.NeedsFlags() {
		t.Fatalf("expected NeedsFlags to be false")
	}
	if !f.NeedsEnvelope() {
		t.Fatalf("expected NeedsEnvelope to be true")
	}
}

func TestAcceptAllAcceptsEverything(t *testing.T) {
	if !AcceptAll.Accepts(Partial{}) {
		t.Fatalf("AcceptAll should accept an empty Partial")
	}
}

func TestAcceptsFlags(t *testing.T) {
	f, err := New([]string{"Seen"}, []string{"Flagged"}, "", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !f.Accepts(Partial{Flags: []string{`\Seen`}}) {
		t.Fatalf("expected Accepts to match case-insensitively on \\Seen")
	}
	if f.Accepts(Partial{Flags: nil}) {
		t.Fatalf("expected Accepts to reject a message missing the required flag")
	}
	if f.Accepts(Partial{Flags: []string{`\Seen`, `\Flagged`}}) {
		t.Fatalf("expected Accepts to reject a message carrying a lacks-flag")
	}
}

func TestAcceptsSubjectRegex(t *testing.T) {
	f, err := New(nil, nil, "(?i)invoice", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !f.Accepts(Partial{Envelope: &imapwire.Envelope{Subject: "Your Invoice #42"}}) {
		t.Fatalf("expected subject match")
	}
	if f.Accepts(Partial{Envelope: &imapwire.Envelope{Subject: "Meeting notes"}}) {
		t.Fatalf("expected subject mismatch to be rejected")
	}
	// A nil Envelope can't satisfy a subject condition, so Accepts rejects;
	// callers are expected to only call Accepts once NeedsEnvelope data has
	// actually been fetched.
	if f.Accepts(Partial{}) {
		t.Fatalf("expected Accepts to reject a missing envelope once a subject filter is set")
	}
}

func TestAcceptsSenderRegex(t *testing.T) {
	f, err := New(nil, nil, "", "@example\\.com$")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	from := []imapwire.Address{{Mailbox: "alice", Host: "example.com"}}
	if !f.Accepts(Partial{Envelope: &imapwire.Envelope{From: from}}) {
		t.Fatalf("expected sender match")
	}
	other := []imapwire.Address{{Mailbox: "bob", Host: "other.org"}}
	if f.Accepts(Partial{Envelope: &imapwire.Envelope{From: other}}) {
		t.Fatalf("expected sender mismatch to be rejected")
	}
}

func TestNewInvalidRegex(t *testing.T) {
	if _, err := New(nil, nil, "(", ""); err == nil {
		t.Fatalf("expected an error for an invalid subject regex")
	}
	if _, err := New(nil, nil, "", "("); err == nil {
		t.Fatalf("expected an error for an invalid sender regex")
	}
}
