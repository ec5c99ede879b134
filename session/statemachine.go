package session

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/example/imapwatch/imapwire"
	"github.com/example/imapwatch/message"
	"github.com/example/imapwatch/netutil"
)

// handshake drives the connection lifecycle from Greeting through Steady
// (spec.md §4.3, steps 1-6), synchronously on the caller's goroutine. It
// returns once the session reaches Steady, or the first error that makes
// that impossible.
func (s *Session) handshake(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := imapwire.ReadPacket(s.br)
		if err != nil {
			return fmt.Errorf("session: reading handshake packet: %w", err)
		}

		if s.state == stateGreeting {
			s.state = stateUnauthCapability
			if _, err := s.send(tagEntry{kind: AwaitCapability}, "CAPABILITY"); err != nil {
				return fmt.Errorf("session: writing CAPABILITY: %w", err)
			}
			continue
		}

		actions, err := imapwire.Parse(data)
		if err != nil {
			return fmt.Errorf("session: parsing handshake packet: %w", err)
		}
		for _, a := range actions {
			s.applyAction(a)
			if s.state == stateFatal {
				return fmt.Errorf("session: %s", s.failReason)
			}
			if s.state == stateSteady {
				return nil
			}
		}
	}
}

// run is the steady-state event loop: one goroutine, selecting between
// framed packets from the reader goroutine, requests on the inbox channel,
// and the idle/NOOP timers. It owns every Session field from here on.
func (s *Session) run() {
	defer s.teardown()
	for {
		var idleC <-chan time.Time
		if s.idleTimer != nil {
			idleC = s.idleTimer.C
		}
		var noopC <-chan time.Time
		if s.noopTimer != nil {
			noopC = s.noopTimer.C
		}

		select {
		case pr := <-s.packets:
			if pr.err != nil {
				s.fail("transport closed: " + pr.err.Error())
			} else {
				s.handlePacket(pr.data)
			}
		case req := <-s.inbox:
			s.handleInboxReq(req)
		case <-idleC:
			s.idleTimer = nil
			s.cancelIdle()
		case <-noopC:
			s.noopTimer = nil
			if _, err := s.send(tagEntry{kind: AwaitGeneric}, "NOOP"); err != nil {
				s.fail("writing NOOP: " + err.Error())
			}
		}

		if s.state == stateFatal {
			return
		}
	}
}

func (s *Session) handlePacket(data []byte) {
	actions, err := imapwire.Parse(data)
	if err != nil {
		s.fail("parsing response: " + err.Error())
		return
	}
	for _, a := range actions {
		s.applyAction(a)
		if s.state == stateFatal {
			return
		}
	}
	s.scheduleNext()
}

// applyAction folds one parsed Action into session state. It is shared by
// the synchronous handshake and the steady-state loop.
func (s *Session) applyAction(a imapwire.Action) {
	switch v := a.(type) {
	case imapwire.Capabilities:
		s.caps = []string(v)
	case imapwire.ApplicableFlags:
		s.applicableFlags = []string(v)
	case imapwire.PermanentFlags:
		s.permanentFlags = []string(v)
	case imapwire.UIDNext:
		s.uidNext = uint32(v)
	case imapwire.UIDValidity:
		s.uidValidity = uint32(v)
	case imapwire.Unseen:
		s.firstUnseen = uint32(v)
	case imapwire.Exists:
		prev := s.existsCount
		s.existsCount = uint32(v)
		if s.state == stateSteady && uint32(v) > prev {
			s.startFetchForNewMessages(prev, uint32(v))
		}
	case imapwire.Recent:
		s.recentCount = uint32(v)
	case imapwire.Expunge:
		s.applyExpunge(uint32(v))
	case imapwire.ListEntry:
		s.pendingListEntries = append(s.pendingListEntries, v)
	case imapwire.CopyUID:
		// Not surfaced past this point: move/copy are Non-goals of the
		// external interface, so a COPYUID response code has nothing further
		// to drive.
	case imapwire.Bye:
		s.fail("server sent BYE: " + v.Text)
	case imapwire.Preauth:
		// The handshake ignores greeting content per spec.md §4.3 step 1; a
		// PREAUTH arriving outside the greeting has no defined meaning here.
	case imapwire.UntaggedStatus:
		// Informational OK/NO/BAD with no response code this parser maps to
		// a dedicated action; nothing further to apply.
	case imapwire.FetchFlags:
		s.applyFetchFlags(v)
	case imapwire.FetchUID:
		// UIDs are not part of the delivered-message shape (seqnum is); ignored.
	case imapwire.FetchInternalDate:
		// Not part of the delivered-message shape; ignored.
	case imapwire.FetchEnvelope:
		s.applyFetchEnvelope(v)
	case imapwire.FetchBodystructure:
		s.applyFetchBodystructure(v)
	case imapwire.FetchBodyContent:
		s.applyFetchBodyContent(v)
	case imapwire.Continuation:
		// The only continuation this session writes past is IDLE's "+ ",
		// which the parser already reports via Parse returning no error for
		// the line; no further state to update here.
	case imapwire.TaggedResponse:
		s.completeTag(v)
	case imapwire.Unparsed:
		s.log.Info("unrecognized response shape", "raw", string(v.Raw))
	}
}

func (s *Session) applyFetchFlags(v imapwire.FetchFlags) {
	pm, ok := s.index[v.Seq]
	if !ok {
		return
	}
	pm.flags = v.Flags
	pm.hasFlags = true
}

func (s *Session) applyFetchEnvelope(v imapwire.FetchEnvelope) {
	pm, ok := s.index[v.Seq]
	if !ok {
		return
	}
	e := v.Envelope
	pm.envelope = &e
}

func (s *Session) applyFetchBodystructure(v imapwire.FetchBodystructure) {
	pm, ok := s.index[v.Seq]
	if !ok {
		return
	}
	b := v.Body
	pm.body = &b
}

func (s *Session) applyFetchBodyContent(v imapwire.FetchBodyContent) {
	pm, ok := s.index[v.Seq]
	if !ok {
		return
	}
	if pm.contents == nil {
		pm.contents = map[string][]byte{}
	}
	key := message.PathKey(v.Path)
	content := v.Content
	if !v.Present {
		content = nil
	}
	pm.contents[key] = content
	delete(pm.pendingPaths, key)
}

// completeTag resolves the tag table entry matching tr.Tag, if any, and
// drives whatever lifecycle or pipeline transition that tag's kind implies.
func (s *Session) completeTag(tr imapwire.TaggedResponse) {
	entry, ok := s.tags[tr.Tag]
	if !ok {
		s.log.Info("tagged response for unknown tag", "tag", tr.Tag)
		return
	}
	delete(s.tags, tr.Tag)

	switch entry.kind {
	case AwaitCapability:
		if tr.Status != imapwire.OK {
			s.fail("CAPABILITY failed: " + tr.Text)
			return
		}
		switch s.state {
		case stateUnauthCapability:
			switch {
			case !s.cfg.TLS && imapwire.Has(s.caps, imapwire.CapStartTLS):
				s.state = stateStarttls
				if _, err := s.send(tagEntry{kind: AwaitStarttls}, "STARTTLS"); err != nil {
					s.fail("writing STARTTLS: " + err.Error())
				}
			case s.cfg.TLS:
				s.state = stateLoggingIn
				s.doLogin()
			default:
				s.fail("server does not advertise STARTTLS and connection is not already using TLS")
			}
		case statePostAuthCapability:
			s.state = stateSelecting
			s.doSelect()
		}

	case AwaitStarttls:
		if tr.Status != imapwire.OK {
			s.fail("STARTTLS failed: " + tr.Text)
			return
		}
		if err := s.upgradeTLS(); err != nil {
			s.fail(err.Error())
			return
		}
		s.state = stateLoggingIn
		s.doLogin()

	case AwaitLogin:
		if tr.Status != imapwire.OK {
			s.fail("LOGIN failed: " + tr.Text)
			return
		}
		s.phase = Authenticated
		s.state = statePostAuthCapability
		if _, err := s.send(tagEntry{kind: AwaitCapability}, "CAPABILITY"); err != nil {
			s.fail("writing post-auth CAPABILITY: " + err.Error())
		}

	case AwaitSelect:
		if tr.Status != imapwire.OK {
			s.fail("SELECT failed: " + tr.Text)
			return
		}
		s.mutability = ReadWrite
		if tr.Code == "READ-ONLY" {
			s.mutability = ReadOnly
		}
		s.phase = Selected
		s.state = stateSteady

	case AwaitFetch:
		pm, ok := s.index[entry.seq]
		sent := false
		if ok {
			if tr.Status == imapwire.OK {
				pm.stage = entry.nextStage
				sent = s.advanceFetch(pm)
			} else {
				s.log.Error("FETCH failed", nil, "seq", entry.seq, "text", tr.Text)
				delete(s.index, pm.seq)
			}
		}
		if !sent {
			s.fetchInFlight = false
		}
		s.scheduleNext()

	case AwaitIdle:
		s.idling = false
		s.idleDoneSent = false
		if tr.Status != imapwire.OK && !strings.Contains(tr.Text, "Expected DONE") {
			s.fail("IDLE failed: " + tr.Text)
			return
		}
		s.scheduleNext()

	case AwaitList:
		entries := make([]Mailbox, 0, len(s.pendingListEntries))
		for _, e := range s.pendingListEntries {
			entries = append(entries, Mailbox{Name: e.Mailbox, Delimiter: e.Delimiter, Flags: e.Flags})
		}
		s.pendingListEntries = nil
		var err error
		if tr.Status != imapwire.OK {
			err = ServerError{Status: tr.Status, Code: tr.Code, Text: tr.Text}
		}
		if s.listWaiter != nil {
			s.listWaiter <- listOutcome{entries: entries, err: err}
			s.listWaiter = nil
		}
		s.scheduleNext()

	case AwaitGeneric:
		var err error
		if tr.Status != imapwire.OK {
			err = ServerError{Status: tr.Status, Code: tr.Code, Text: tr.Text}
		}
		if s.opWaiter != nil {
			s.opWaiter <- err
			s.opWaiter = nil
		}
		s.scheduleNext()
	}
}

func (s *Session) doLogin() {
	if _, err := s.sendLogin(); err != nil {
		s.fail("writing LOGIN: " + err.Error())
	}
}

func (s *Session) doSelect() {
	mb, err := imapwire.QuoteAstring(s.cfg.Mailbox)
	if err != nil {
		s.fail("quoting mailbox name: " + err.Error())
		return
	}
	if _, err := s.send(tagEntry{kind: AwaitSelect}, "SELECT %s", mb); err != nil {
		s.fail("writing SELECT: " + err.Error())
	}
}

// upgradeTLS performs the STARTTLS handshake on the existing socket,
// splicing any plaintext bytes already buffered past the tagged STARTTLS OK
// in front of the new TLS connection before replacing the session's
// reader/writer. Called synchronously from completeTag, itself always
// called from the single goroutine currently driving the session (the
// caller's goroutine during the handshake), so there is no concurrent
// reader to race with the buffer swap.
func (s *Session) upgradeTLS() error {
	buffered, _ := s.br.Peek(s.br.Buffered())
	prefixed := &netutil.PrefixConn{PrefixReader: bytes.NewReader(buffered), Conn: s.conn}

	tlsConn := tls.Client(prefixed, tlsClientConfig(s.cfg))
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("session: tls handshake: %w", err)
	}
	version, ciphersuite := netutil.TLSInfo(tlsConn)
	s.log.Info("starttls handshake complete", "version", version, "ciphersuite", ciphersuite)
	s.conn = tlsConn
	s.tr = netutil.NewTraceReader(s.log, "CR: ", tlsConn)
	s.tw = netutil.NewTraceWriter(s.log, "CW: ", tlsConn)
	s.br = bufio.NewReader(s.tr)
	s.bw = bufio.NewWriter(s.tw)
	return nil
}

// scheduleNext is called whenever the session might be free to start new
// work: after a packet is fully processed, or after a queued operation is
// enqueued. Priority: queued user-requested operations, then the fetch
// pipeline, then idle (or NOOP polling as a fallback).
func (s *Session) scheduleNext() {
	if s.state != stateSteady {
		return
	}
	if s.idling {
		if len(s.pendingOps) > 0 || len(s.pendingFetch) > 0 {
			s.cancelIdle()
		}
		return
	}
	if len(s.tags) > 0 {
		return
	}
	if len(s.pendingOps) > 0 {
		op := s.pendingOps[0]
		s.pendingOps = s.pendingOps[1:]
		op()
		return
	}
	s.pumpFetchQueue()
	if s.fetchInFlight {
		return
	}
	if imapwire.Has(s.caps, imapwire.CapIdle) {
		s.startIdle()
	} else {
		s.startNoopTimer()
	}
}

func (s *Session) startIdle() {
	if _, err := s.send(tagEntry{kind: AwaitIdle}, "IDLE"); err != nil {
		s.fail("writing IDLE: " + err.Error())
		return
	}
	s.idling = true
	s.idleDoneSent = false
	s.idleTimer = time.NewTimer(idleDuration)
}

// cancelIdle writes the DONE line that terminates an outstanding IDLE
// command. Idempotent: the matching tagged response still has to arrive
// before the next command can be sent, so a second call before then is a
// no-op rather than writing DONE twice.
func (s *Session) cancelIdle() {
	if !s.idling || s.idleDoneSent {
		return
	}
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	s.idleDoneSent = true
	if _, err := s.bw.WriteString("DONE\r\n"); err != nil {
		s.fail("writing DONE: " + err.Error())
		return
	}
	if err := s.bw.Flush(); err != nil {
		s.fail("flushing DONE: " + err.Error())
	}
}

func (s *Session) startNoopTimer() {
	if s.noopTimer != nil {
		return
	}
	s.noopTimer = time.NewTimer(noopPollInterval)
}

func (s *Session) handleInboxReq(req any) {
	switch r := req.(type) {
	case subscribeReq:
		s.nextHandle++
		h := s.nextHandle
		entry := subscriberEntry{
			handle: h, target: r.target, filter: r.filter,
			queue: make(chan DeliveredMessage, subscriberQueueSize),
			stop:  make(chan struct{}),
		}
		startSubscriberWorker(entry.target, entry.queue, entry.stop, s.log)
		s.subscribers = append(s.subscribers, entry)
		r.result <- h

	case unsubscribeReq:
		var kept []subscriberEntry
		removed := false
		for _, e := range s.subscribers {
			if e.handle == r.handle {
				removed = true
				close(e.stop)
				continue
			}
			kept = append(kept, e)
		}
		s.subscribers = kept
		if !removed {
			r.result <- fmt.Errorf("session: unknown subscriber handle")
		} else {
			r.result <- nil
		}

	case capsReq:
		out := make([]string, len(s.caps))
		copy(out, s.caps)
		r.result <- out

	case mutabilityReq:
		r.result <- s.mutability

	case listReq:
		if s.state != stateSteady {
			r.result <- listOutcome{err: FatalError{Reason: "session not ready"}}
			return
		}
		s.issueList(r)

	case closeReq:
		s.shutdown()
		close(r.result)
	}
}

// issueList enqueues the LIST command, to run immediately if the session is
// free or once whatever is currently outstanding (a fetch, idle, or another
// queued operation) finishes.
func (s *Session) issueList(r listReq) {
	s.pendingOps = append(s.pendingOps, func() {
		ref, err := imapwire.QuoteAstring(r.reference)
		if err != nil {
			r.result <- listOutcome{err: err}
			s.scheduleNext()
			return
		}
		pat, err := imapwire.QuoteAstring(r.pattern)
		if err != nil {
			r.result <- listOutcome{err: err}
			s.scheduleNext()
			return
		}
		s.pendingListEntries = nil
		s.listWaiter = r.result
		if _, err := s.send(tagEntry{kind: AwaitList}, "LIST %s %s", ref, pat); err != nil {
			s.listWaiter = nil
			s.fail("writing LIST: " + err.Error())
		}
	})
	s.scheduleNext()
}

// shutdown implements the cooperative stop (spec.md §5 Cancellation): write
// LOGOUT if authenticated, then let the run loop exit and tear down.
// Outstanding tag callbacks are abandoned, matching the spec's "abandoned,
// not invoked" rule.
func (s *Session) shutdown() {
	if s.state == stateFatal {
		return
	}
	if s.phase != NotAuthenticated {
		tag := s.nextTag()
		s.bw.WriteString(fmt.Sprintf("%d LOGOUT\r\n", tag))
		s.bw.Flush()
	}
	s.state = stateFatal
}

func (s *Session) teardown() {
	s.conn.Close()
	for _, e := range s.subscribers {
		close(e.stop)
	}
	s.subscribers = nil
	reason := s.failReason
	if reason == "" {
		reason = "session closed"
	}
	if s.listWaiter != nil {
		s.listWaiter <- listOutcome{err: FatalError{Reason: reason}}
		s.listWaiter = nil
	}
	if s.opWaiter != nil {
		s.opWaiter <- FatalError{Reason: reason}
		s.opWaiter = nil
	}
	close(s.stopped)
}

// fail transitions the session to its terminal state. Idempotent: only the
// first reason sticks.
func (s *Session) fail(reason string) {
	if s.state == stateFatal {
		return
	}
	s.failReason = reason
	s.state = stateFatal
	s.log.Error("session failed", nil, "reason", reason)
}
