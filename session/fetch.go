package session

import (
	"strconv"
	"strings"

	"github.com/example/imapwatch/filter"
	"github.com/example/imapwatch/imapwire"
	"github.com/example/imapwatch/message"
)

// fetchStage is a partial message's position in the three-stage pipeline.
type fetchStage int

const (
	stageNone fetchStage = iota
	stageFilter
	stagePreBody
	stageFull
)

// partialMessage accumulates fetch results for one sequence number across
// pipeline stages.
type partialMessage struct {
	seq      uint32
	stage    fetchStage
	flags    []string
	hasFlags bool
	envelope *imapwire.Envelope
	body     *imapwire.BodyStructure

	contents     map[string][]byte
	pendingPaths map[string]bool
}

func (pm *partialMessage) toFilterPartial() filter.Partial {
	return filter.Partial{Flags: pm.flags, Envelope: pm.envelope}
}

// needsFilterAttrs reports whether any still-registered subscriber's filter
// needs flags, and whether any needs envelope data.
func (s *Session) needsFilterAttrs() (needFlags, needEnvelope bool) {
	for _, sub := range s.subscribers {
		if sub.filter.NeedsFlags() {
			needFlags = true
		}
		if sub.filter.NeedsEnvelope() {
			needEnvelope = true
		}
	}
	return
}

// anySubscriberCouldAccept reports whether at least one subscriber's filter
// might still accept this message given what's known so far: a filter is
// excluded only once a condition it needs data for is checked and fails.
func (s *Session) anySubscriberCouldAccept(pm *partialMessage) bool {
	if len(s.subscribers) == 0 {
		return false
	}
	partial := pm.toFilterPartial()
	for _, sub := range s.subscribers {
		if sub.filter.Accepts(partial) {
			return true
		}
	}
	return false
}

// advanceFetch drives pm to its next stage, sending the FETCH command that
// stage requires, or delivers/drops the message if no further stage is
// needed. It is called once when a sequence number is first seen (EXISTS
// growth) and again each time the in-flight tag for pm's current stage
// completes. Returns true if a new FETCH command was sent (a network
// round-trip is now pending for pm), false if pm reached a terminal
// outcome (delivered or dropped) without one.
func (s *Session) advanceFetch(pm *partialMessage) bool {
	switch pm.stage {
	case stageNone:
		needFlags, needEnvelope := s.needsFilterAttrs()
		if !needFlags && !needEnvelope {
			pm.stage = stageFilter
			return s.advanceFetch(pm)
		}
		var atts []string
		if needFlags {
			atts = append(atts, "FLAGS")
		}
		if needEnvelope {
			atts = append(atts, "ENVELOPE")
		}
		return s.sendFetchSections(pm, stageFilter, atts)

	case stageFilter:
		if !s.anySubscriberCouldAccept(pm) {
			delete(s.index, pm.seq)
			return false
		}
		atts := []string{"BODY"}
		if !pm.hasFlags {
			atts = append(atts, "FLAGS")
		}
		if pm.envelope == nil {
			atts = append(atts, "ENVELOPE")
		}
		return s.sendFetchSections(pm, stagePreBody, atts)

	case stagePreBody:
		if pm.body == nil {
			s.log.Error("fetch pipeline reached PreBody without a body structure", nil, "seq", pm.seq)
			delete(s.index, pm.seq)
			return false
		}
		paths := pm.body.LeafPaths()
		if len(paths) == 0 {
			s.deliverAndRemove(pm)
			return false
		}
		pm.contents = map[string][]byte{}
		pm.pendingPaths = map[string]bool{}
		var sections []string
		for _, p := range paths {
			key := message.PathKey(p)
			pm.pendingPaths[key] = true
			sections = append(sections, "BODY.PEEK["+key+"]")
		}
		return s.sendFetchSections(pm, stageFull, sections)

	case stageFull:
		s.deliverAndRemove(pm)
		return false
	}
	return false
}

func (s *Session) sendFetchSections(pm *partialMessage, next fetchStage, atts []string) bool {
	cmd := "FETCH " + strconv.FormatUint(uint64(pm.seq), 10) + " (" + strings.Join(atts, " ") + ")"
	_, err := s.send(tagEntry{kind: AwaitFetch, seq: pm.seq, nextStage: next}, "%s", cmd)
	if err != nil {
		s.fail("writing FETCH command: " + err.Error())
		return false
	}
	pm.stage = next
	return true
}

// deliverAndRemove folds the collected body parts into the delivery shape,
// enqueues a by-value copy for every accepting subscriber's worker, and
// removes pm from the index. Enqueueing never blocks: a full subscriber
// queue just drops this message for that subscriber.
func (s *Session) deliverAndRemove(pm *partialMessage) {
	defer delete(s.index, pm.seq)

	if pm.body == nil {
		return
	}
	body, err := message.FoldBodyTree(*pm.body, pm.contents)
	if err != nil {
		s.log.Error("folding body tree", err, "seq", pm.seq)
		return
	}

	dm := DeliveredMessage{Seqnum: pm.seq, Flags: pm.flags, Body: body}
	if pm.envelope != nil {
		dm.Subject = pm.envelope.Subject
		dm.From = pm.envelope.From
		dm.Sender = pm.envelope.Sender
		dm.ReplyTo = pm.envelope.ReplyTo
		dm.To = pm.envelope.To
		dm.Cc = pm.envelope.Cc
		dm.Bcc = pm.envelope.Bcc
		dm.InReplyTo = pm.envelope.InReplyTo
		dm.MessageID = pm.envelope.MessageID
		dm.Date = pm.envelope.Date
		dm.HasDate = pm.envelope.HasDate
	}

	partial := pm.toFilterPartial()
	for _, sub := range s.subscribers {
		if sub.filter.Accepts(partial) {
			enqueueDeliver(sub, dm, s.log)
		}
	}
}

// startFetchForNewMessages begins stage None for every sequence number
// between the previous EXISTS count and the new one, in ascending order,
// per the "lowest sequence number first" ordering guarantee. Goes through
// scheduleNext rather than pumpFetchQueue directly since an IDLE command may
// currently be outstanding and needs cancelling first.
func (s *Session) startFetchForNewMessages(prevExists, newExists uint32) {
	for seq := prevExists + 1; seq <= newExists; seq++ {
		pm := &partialMessage{seq: seq}
		s.index[seq] = pm
		s.pendingFetch = append(s.pendingFetch, pm)
	}
	s.scheduleNext()
}

// applyExpunge implements the unprocessed-message index's EXPUNGE
// renumbering invariant: the entry at e is removed, entries above e shift
// down by one, and any in-flight tag awaiting the removed sequence number is
// left to return into a now-stale index lookup, discarding its result.
func (s *Session) applyExpunge(e uint32) {
	if s.existsCount > 0 {
		s.existsCount--
	}

	expunged := s.index[e]
	delete(s.index, e)

	renumbered := make(map[uint32]*partialMessage, len(s.index))
	for k, pm := range s.index {
		if k > e {
			pm.seq = k - 1
			renumbered[k-1] = pm
		} else {
			renumbered[k] = pm
		}
	}
	s.index = renumbered

	for tag, entry := range s.tags {
		if entry.kind != AwaitFetch {
			continue
		}
		switch {
		case entry.seq == e:
			entry.seq = 0 // Never an index key, so the completion finds nothing.
		case entry.seq > e:
			entry.seq--
		}
		s.tags[tag] = entry
	}

	if expunged == nil {
		return
	}
	kept := s.pendingFetch[:0:0]
	for _, pm := range s.pendingFetch {
		if pm == expunged {
			continue
		}
		kept = append(kept, pm)
	}
	s.pendingFetch = kept
}

// pumpFetchQueue starts the next queued fetch if no fetch command is
// currently in flight, preserving "at most one pipeline stage command in
// flight at a time".
func (s *Session) pumpFetchQueue() {
	if s.fetchInFlight || len(s.pendingFetch) == 0 {
		return
	}
	pm := s.pendingFetch[0]
	s.pendingFetch = s.pendingFetch[1:]
	if _, ok := s.index[pm.seq]; !ok {
		// Expunged before its turn came up.
		s.pumpFetchQueue()
		return
	}
	s.fetchInFlight = true
	if !s.advanceFetch(pm) {
		s.fetchInFlight = false
		s.pumpFetchQueue()
	}
}
