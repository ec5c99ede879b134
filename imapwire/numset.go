package imapwire

// NumRange is a single (possibly single-valued) UID or sequence-number
// range, as it appears on the wire: "N" or "N:M".
type NumRange struct {
	First uint32
	Last  uint32 // Equal to First for a single value.
}

// expand returns every value in [First,Last] ascending.
func (r NumRange) expand() []uint32 {
	if r.Last < r.First {
		r.First, r.Last = r.Last, r.First
	}
	out := make([]uint32, 0, r.Last-r.First+1)
	for v := r.First; v <= r.Last; v++ {
		out = append(out, v)
	}
	return out
}

// xuidset parses a comma-separated list of uid-range entries and expands it
// to an explicit vector, ranges in the order they appear and each range
// ascending. Per the spec's local-recovery rule, malformed input (arbitrary
// punctuation instead of a valid set) yields an empty set rather than
// aborting the packet.
func (p *parser) xuidset() (out []uint32) {
	defer func() {
		if recover() != nil || !(p.eof() || p.peek(' ') || p.peek(']')) {
			// Skip the rest of the malformed set so the response still parses.
			for !p.eof() && !p.peek(' ') && !p.peek(']') {
				p.pos++
			}
			out = nil
		}
	}()
	out = append(out, p.xuidrange().expand()...)
	for p.take(',') {
		out = append(out, p.xuidrange().expand()...)
	}
	return out
}

func (p *parser) xuidrange() NumRange {
	first := p.xnzuint32()
	last := first
	if p.take(':') {
		last = p.xnzuint32()
	}
	return NumRange{first, last}
}
