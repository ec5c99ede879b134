package imapwire

import "strings"

// Parse maps one complete, already-framed response packet into its
// sequence of Actions. The parser is stateless across calls. A malformed
// shape aborts the whole packet and returns a ParseError; an unrecognized
// but well-formed shape contributes a single Unparsed action instead of
// failing, per the forward-compatibility design.
func Parse(packet []byte) (actions []Action, err error) {
	p := &parser{buf: packet}

	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(ParseError); ok {
				err = pe
				return
			}
			panic(r)
		}
	}()

	for !p.eof() {
		start := p.pos
		acts := p.xline()
		if acts == nil {
			acts = []Action{Unparsed{Raw: append([]byte{}, p.buf[start:p.pos]...)}}
		}
		actions = append(actions, acts...)
	}
	return actions, nil
}

// xline parses and consumes one top-level response line (or, for FETCH/
// literal-bearing lines, the handful of lines+literals that make up one
// logical response), returning the actions it produced. A nil result with
// no panic means the line was syntactically fine but not a shape this
// parser assigns special meaning to; the caller wraps the raw bytes in an
// Unparsed action.
func (p *parser) xline() []Action {
	switch {
	case p.take('*'):
		p.xspace()
		return p.xuntagged()
	case p.take('+'):
		// Continuation request; text is the remainder of the line.
		if p.peek(' ') {
			p.xspace()
		}
		text := p.xtakeuntil('\r')
		p.xcrlf()
		return []Action{Continuation{Text: text}}
	default:
		tag := p.xuint32()
		p.xspace()
		status := p.xstatus()
		p.xspace()
		code, codeActions, text := p.xrespText()
		p.xcrlf()
		return append(codeActions, TaggedResponse{Tag: tag, Status: status, Code: code, Text: text})
	}
}

func (p *parser) xstatus() Status {
	w := strings.ToUpper(p.xword())
	switch Status(w) {
	case OK, NO, BAD:
		return Status(w)
	}
	p.xerrorf("expected status OK/NO/BAD, got %q", w)
	panic("not reached")
}

// xrespText parses the optional bracketed response code followed by free
// text, e.g. "[PERMANENTFLAGS (\Seen \Deleted)] Limited". It returns the
// code keyword (empty if none), any Actions the code maps to, and the
// trailing free text.
func (p *parser) xrespText() (code string, actions []Action, text string) {
	if p.take('[') {
		code, actions = p.xrespCode()
		p.xtake("]")
		if p.peek(' ') {
			p.xspace()
		}
	}
	text = p.xtakeuntil('\r')
	return code, actions, text
}

var knownCodesWithArgs = map[string]bool{
	"BADCHARSET": true, "CAPABILITY": true, "PERMANENTFLAGS": true,
	"UIDNEXT": true, "UIDVALIDITY": true, "UNSEEN": true,
	"APPENDUID": true, "COPYUID": true, "HIGHESTMODSEQ": true, "MODIFIED": true,
}

// xrespCode parses one bracketed response code and, for the codes the spec
// calls out (PERMANENTFLAGS, UIDNEXT, UIDVALIDITY, UNSEEN, COPYUID,
// CAPABILITY), returns the Action(s) it produces. Codes this parser
// doesn't special-case are consumed (so the surrounding text still parses)
// but produce no action, matching "else ignored".
func (p *parser) xrespCode() (string, []Action) {
	var w strings.Builder
	for !p.peek(' ') && !p.peek(']') {
		w.WriteByte(p.xbyte())
	}
	word := strings.ToUpper(w.String())

	if !knownCodesWithArgs[word] {
		for p.take(' ') {
			for !p.peek(' ') && !p.peek(']') {
				p.xbyte()
			}
		}
		return word, nil
	}

	switch word {
	case "BADCHARSET":
		if p.take(' ') {
			p.xtake("(")
			p.xcharset()
			for p.take(' ') {
				p.xcharset()
			}
			p.xtake(")")
		}
		return word, nil
	case "CAPABILITY":
		p.xspace()
		caps := []string{p.xatom()}
		for p.take(' ') {
			caps = append(caps, p.xatom())
		}
		return word, []Action{Capabilities(NormalizeCapabilities(caps))}
	case "PERMANENTFLAGS":
		var l []string
		if p.take(' ') {
			p.xtake("(")
			if !p.peek(')') {
				l = append(l, p.xflagPerm())
				for p.take(' ') {
					l = append(l, p.xflagPerm())
				}
			}
			p.xtake(")")
		}
		return word, []Action{PermanentFlags(NormalizeCapabilities(l))}
	case "UIDNEXT":
		p.xspace()
		return word, []Action{UIDNext(p.xnzuint32())}
	case "UIDVALIDITY":
		p.xspace()
		return word, []Action{UIDValidity(p.xnzuint32())}
	case "UNSEEN":
		p.xspace()
		return word, []Action{Unseen(p.xuint32())}
	case "APPENDUID":
		p.xspace()
		p.xnzuint32()
		p.xspace()
		p.xnzuint32()
		return word, nil
	case "COPYUID":
		p.xspace()
		validity := p.xnzuint32()
		p.xspace()
		src := p.xuidset()
		p.xspace()
		dst := p.xuidset()
		return word, []Action{CopyUID{Validity: validity, Src: src, Dst: dst}}
	case "HIGHESTMODSEQ":
		p.xspace()
		p.xint64()
		return word, nil
	case "MODIFIED":
		p.xspace()
		p.xuidset()
		return word, nil
	}
	panic("not reached")
}

// xuntagged parses everything after "* ", returning the Action(s) it
// produces: one per attribute for FETCH; for OK/NO/BAD, the response code's
// action in place of UntaggedStatus when the code maps to one; nil for an
// unrecognized response; exactly one otherwise.
func (p *parser) xuntagged() []Action {
	// Numbered responses ("<n> EXISTS" etc.) start with digits; everything
	// else starts with a keyword.
	if b, ok := p.peekByte(); ok && b >= '0' && b <= '9' {
		num := p.xnzuint32()
		p.xspace()
		w := strings.ToUpper(p.xword())
		switch w {
		case "EXISTS":
			p.xcrlf()
			return []Action{Exists(num)}
		case "RECENT":
			p.xcrlf()
			return []Action{Recent(num)}
		case "EXPUNGE":
			p.xcrlf()
			return []Action{Expunge(num)}
		case "FETCH":
			p.xspace()
			acts := p.xfetch(num)
			p.xcrlf()
			return acts
		}
		// Unrecognized numbered response: consume the rest of the line and
		// report no dedicated action, as for an unrecognized keyword below.
		p.xtakeuntil('\r')
		p.xcrlf()
		return nil
	}

	w := strings.ToUpper(p.xnonspace())
	switch w {
	case "OK", "NO", "BAD":
		p.xspace()
		_, codeActions, text := p.xrespText()
		p.xcrlf()
		if len(codeActions) > 0 {
			return codeActions
		}
		return []Action{UntaggedStatus{Status: Status(w), Text: text}}

	case "PREAUTH":
		p.xspace()
		_, _, text := p.xrespText()
		p.xcrlf()
		return []Action{Preauth{Text: text}}

	case "BYE":
		p.xspace()
		_, _, text := p.xrespText()
		p.xcrlf()
		return []Action{Bye{Text: text}}

	case "CAPABILITY":
		var caps []string
		for p.take(' ') {
			caps = append(caps, p.xnonspace())
		}
		p.xcrlf()
		return []Action{Capabilities(NormalizeCapabilities(caps))}

	case "FLAGS":
		p.xspace()
		flags := p.xflagList()
		p.xcrlf()
		return []Action{ApplicableFlags(NormalizeCapabilities(flags))}

	case "LIST":
		p.xspace()
		entry := p.xmailboxList()
		p.xcrlf()
		return []Action{entry}
	}

	// Unrecognized keyword: consume the rest of the line so the caller can
	// still capture raw bytes, then report no dedicated action.
	p.xtakeuntil('\r')
	p.xcrlf()
	return nil
}
