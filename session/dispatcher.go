package session

import (
	"fmt"

	"github.com/example/imapwatch/imapwire"
	"github.com/example/imapwatch/mlog"
)

// TagKind is the closed variant of what an outstanding tag is waiting for;
// the state machine's transition function is a single switch on this plus
// the arrived status, per the tag-callback registry design note.
type TagKind int

const (
	AwaitCapability TagKind = iota
	AwaitStarttls
	AwaitLogin
	AwaitSelect
	AwaitFetch
	AwaitList
	AwaitIdle
	AwaitGeneric
)

// tagEntry is installed in the tag table at send time and removed when its
// tagged response arrives. Since at most one command is ever outstanding at
// a time (§5), AwaitList/AwaitGeneric completions are delivered through the
// single-slot Session.listWaiter/opWaiter fields rather than a per-tag
// channel.
type tagEntry struct {
	kind TagKind

	// AwaitFetch payload.
	seq       uint32
	nextStage fetchStage
}

// nextTag reserves the next monotonically increasing numeric tag.
func (s *Session) nextTag() uint32 {
	t := s.tagCounter
	s.tagCounter++
	return t
}

// send writes one command line, prefixed with a freshly reserved tag, and
// installs entry in the tag table under that tag. Must only be called from
// the session goroutine.
func (s *Session) send(entry tagEntry, format string, args ...any) (uint32, error) {
	tag := s.nextTag()
	s.tags[tag] = entry
	line := fmt.Sprintf("%d %s\r\n", tag, fmt.Sprintf(format, args...))
	s.tw.SetTrace(mlog.LevelTrace)
	_, err := s.bw.WriteString(line)
	if err == nil {
		err = s.bw.Flush()
	}
	if err != nil {
		delete(s.tags, tag)
	}
	return tag, err
}

// sendLogin writes the LOGIN command with the password logged only at
// LevelTraceauth, then immediately clears the password from the config
// struct held by the session, per the password-handling design note.
func (s *Session) sendLogin() (uint32, error) {
	user, err1 := imapwire.QuoteAstring(s.cfg.Username)
	pass, err2 := imapwire.QuoteAstring(s.cfg.Password)
	if err1 != nil {
		return 0, err1
	}
	if err2 != nil {
		return 0, err2
	}
	tag := s.nextTag()
	s.tags[tag] = tagEntry{kind: AwaitLogin}
	line := fmt.Sprintf("%d LOGIN %s %s\r\n", tag, user, pass)

	s.tw.SetTrace(mlog.LevelTraceauth)
	_, err := s.bw.WriteString(line)
	if err == nil {
		err = s.bw.Flush()
	}
	s.tw.SetTrace(mlog.LevelTrace)

	// Cleared immediately after being handed to the transport, regardless
	// of write outcome.
	s.cfg.Password = ""

	if err != nil {
		delete(s.tags, tag)
	}
	return tag, err
}
