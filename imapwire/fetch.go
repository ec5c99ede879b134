package imapwire

import "strings"

// xfetch parses the parenthesized list of message-attribute pairs in an
// untagged "<n> FETCH (...)" response, returning one Action per attribute
// per the spec ("producing one Fetch action per attribute").
func (p *parser) xfetch(seq uint32) []Action {
	p.xtake("(")
	var actions []Action
	actions = append(actions, p.xmsgatt1(seq)...)
	for p.take(' ') {
		actions = append(actions, p.xmsgatt1(seq)...)
	}
	p.xtake(")")
	return actions
}

// xmsgatt1 parses a single message attribute name plus its value.
func (p *parser) xmsgatt1(seq uint32) []Action {
	start := p.pos
	for {
		b, ok := p.peekByte()
		if !ok {
			break
		}
		if b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '.' {
			p.pos++
			continue
		}
		break
	}
	name := strings.ToUpper(string(p.buf[start:p.pos]))

	switch name {
	case "FLAGS":
		p.xspace()
		flags := p.xflagList()
		return []Action{FetchFlags{Seq: seq, Flags: flags}}

	case "UID":
		p.xspace()
		return []Action{FetchUID{Seq: seq, UID: p.xuint32()}}

	case "INTERNALDATE":
		p.xspace()
		return []Action{FetchInternalDate{Seq: seq, Date: p.xquoted()}}

	case "ENVELOPE":
		p.xspace()
		return []Action{FetchEnvelope{Seq: seq, Envelope: p.xenvelope()}}

	case "BODY":
		if p.take(' ') {
			return []Action{FetchBodystructure{Seq: seq, Body: p.xbodystructure()}}
		}
		path := p.xbodySectionPath()
		if p.take('<') {
			p.xint64()
			p.xtake(">")
		}
		p.xspace()
		content, present := p.xnilString()
		return []Action{FetchBodyContent{Seq: seq, Path: path, Present: present, Content: []byte(content)}}

	case "BODYSTRUCTURE":
		p.xspace()
		return []Action{FetchBodystructure{Seq: seq, Body: p.xbodystructure()}}
	}

	p.xerrorf("unknown fetch attribute %q", name)
	panic("not reached")
}

// xbodySectionPath parses a "[1.3.2]" style section specifier and returns
// the dotted path as ints; an empty section ("[]") is the whole message,
// reported as path [1] per spec.
func (p *parser) xbodySectionPath() []int {
	p.xtake("[")
	var path []int
	for !p.peek(']') {
		if len(path) > 0 {
			p.xtake(".")
		}
		n := p.xdigits()
		if n == "" {
			// Non-numeric section specifiers (HEADER, TEXT, MIME, ...) are
			// out of scope; consume to the closing bracket.
			p.xtakeuntil(']')
			break
		}
		v := 0
		for _, c := range []byte(n) {
			v = v*10 + int(c-'0')
		}
		path = append(path, v)
	}
	p.xtake("]")
	if len(path) == 0 {
		path = []int{1}
	}
	return path
}
