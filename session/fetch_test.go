package session

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/example/imapwatch/filter"
	"github.com/example/imapwatch/mlog"
	"github.com/example/imapwatch/netutil"
)

// newTestSession builds a Session with its writer backed by an in-memory
// buffer, for exercising the dispatcher/fetch pipeline without a real
// connection. Only the fields those code paths touch are populated.
func newTestSession() (*Session, *bytes.Buffer) {
	var buf bytes.Buffer
	log := mlog.New("test", nil)
	s := &Session{
		log:   log,
		state: stateSteady,
		phase: Selected,
		tags:  map[uint32]tagEntry{},
		index: map[uint32]*partialMessage{},
	}
	s.tw = netutil.NewTraceWriter(log, "CW: ", &buf)
	s.bw = bufio.NewWriter(s.tw)
	return s, &buf
}

func TestApplyExpungeRenumbersHigherSequences(t *testing.T) {
	s, _ := newTestSession()
	s.existsCount = 3

	pm1 := &partialMessage{seq: 1}
	pm2 := &partialMessage{seq: 2}
	pm3 := &partialMessage{seq: 3}
	s.index = map[uint32]*partialMessage{1: pm1, 2: pm2, 3: pm3}
	s.pendingFetch = []*partialMessage{pm2, pm3}

	s.applyExpunge(2)

	if s.existsCount != 2 {
		t.Fatalf("existsCount = %d, want 2", s.existsCount)
	}
	if _, ok := s.index[3]; ok {
		t.Fatalf("sequence 3 should have been renumbered away")
	}
	got, ok := s.index[2]
	if !ok || got != pm3 {
		t.Fatalf("index[2] should now hold the former sequence 3 message, got %v", got)
	}
	if pm3.seq != 2 {
		t.Fatalf("pm3.seq = %d, want 2", pm3.seq)
	}
	if pm1.seq != 1 {
		t.Fatalf("pm1.seq = %d, want unchanged 1", pm1.seq)
	}
	if len(s.pendingFetch) != 1 || s.pendingFetch[0] != pm3 {
		t.Fatalf("pendingFetch should contain only the renumbered pm3, got %v", s.pendingFetch)
	}
}

func TestApplyExpungeOfUnknownSequenceIsANoop(t *testing.T) {
	s, _ := newTestSession()
	s.existsCount = 1
	pm := &partialMessage{seq: 1}
	s.index = map[uint32]*partialMessage{1: pm}
	s.pendingFetch = []*partialMessage{pm}

	// Expunge of a sequence number this session never tracked (e.g. it was
	// already delivered and removed from the index).
	s.applyExpunge(5)

	if s.existsCount != 0 {
		t.Fatalf("existsCount = %d, want 0", s.existsCount)
	}
	if len(s.pendingFetch) != 1 || s.pendingFetch[0] != pm {
		t.Fatalf("pendingFetch should be untouched, got %v", s.pendingFetch)
	}
}

func TestAdvanceFetchSendsFlagsWhenFilterNeedsThem(t *testing.T) {
	s, buf := newTestSession()
	f, err := filter.New([]string{"Seen"}, nil, "", "")
	if err != nil {
		t.Fatalf("filter.New: %v", err)
	}
	s.subscribers = []subscriberEntry{{handle: 1, target: TargetFunc(func(DeliveredMessage) {}), filter: f}}

	pm := &partialMessage{seq: 5}
	s.index[5] = pm

	if !s.advanceFetch(pm) {
		t.Fatalf("expected stageNone to send a FETCH command")
	}
	if pm.stage != stageFilter {
		t.Fatalf("stage = %v, want stageFilter", pm.stage)
	}
	cmd := buf.String()
	if !strings.Contains(cmd, "FETCH 5 (FLAGS)") {
		t.Fatalf("unexpected command written: %q", cmd)
	}
	if _, ok := s.tags[0]; !ok {
		t.Fatalf("expected tag 0 to be registered for the outstanding FETCH")
	}
}

func TestAdvanceFetchDropsWhenNoSubscriberCouldAccept(t *testing.T) {
	s, buf := newTestSession()
	pm := &partialMessage{seq: 7, stage: stageFilter}
	s.index[7] = pm

	if s.advanceFetch(pm) {
		t.Fatalf("expected no command to be sent with zero subscribers")
	}
	if _, ok := s.index[7]; ok {
		t.Fatalf("message should have been dropped from the index")
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no bytes written, got %q", buf.String())
	}
}

func TestAdvanceFetchStageNoneSkipsToFilterWhenNoAttributesNeeded(t *testing.T) {
	s, buf := newTestSession()
	// No subscribers at all means needsFilterAttrs is (false, false), so
	// stageNone must fall through to stageFilter without writing anything,
	// then drop the message since no subscriber could accept it either.
	pm := &partialMessage{seq: 9}
	s.index[9] = pm

	if s.advanceFetch(pm) {
		t.Fatalf("expected no command sent")
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no bytes written, got %q", buf.String())
	}
	if _, ok := s.index[9]; ok {
		t.Fatalf("message should have been dropped")
	}
}

func TestPumpFetchQueueSkipsExpungedEntries(t *testing.T) {
	s, buf := newTestSession()
	pm := &partialMessage{seq: 3}
	// Queued for fetch, but no longer present in the index (as if an
	// EXPUNGE removed it before its turn came up).
	s.pendingFetch = []*partialMessage{pm}

	s.pumpFetchQueue()

	if len(s.pendingFetch) != 0 {
		t.Fatalf("expected pendingFetch to be drained, got %v", s.pendingFetch)
	}
	if s.fetchInFlight {
		t.Fatalf("expected fetchInFlight to remain false with nothing left to fetch")
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no command written for an expunged entry, got %q", buf.String())
	}
}
