package imapwire

import "strings"

// xbodystructure parses a BODY/BODYSTRUCTURE value. If the first token
// inside the outer parens is itself "(", this is a multipart (children
// parsed recursively, fully, including a nested multipart child); otherwise
// it's a onepart with the basic/text/message field layouts.
func (p *parser) xbodystructure() BodyStructure {
	p.xtake("(")
	if p.peek('(') {
		var children []BodyStructure
		children = append(children, p.xbodystructure())
		for p.peek('(') {
			children = append(children, p.xbodystructure())
		}
		p.xspace()
		subtype := p.xstring()
		// Optional body-ext-mpart (parameters, disposition, language,
		// location) is not modeled; skip to the closing paren.
		for p.take(' ') {
			p.xskipExtension()
		}
		p.xtake(")")
		return BodyStructure{Multipart: &Multipart{Children: children, Subtype: subtype}}
	}

	typ := p.xstring()
	p.xspace()
	subtype := p.xstring()
	p.xspace()
	params, id, hasID, descr, hasDescr, cte, octets := p.xbodyFields()

	// Whether a lines field follows body-fields is determined by type, not
	// by what the next token looks like: body-type-text and
	// body-type-msg (MESSAGE/RFC822) carry it, body-type-basic never does.
	isText := strings.EqualFold(typ, "TEXT")
	isMessageRFC822 := strings.EqualFold(typ, "MESSAGE") && strings.EqualFold(subtype, "RFC822")

	var lines int64
	hasLines := false
	if isText || isMessageRFC822 {
		p.xspace()
		if isMessageRFC822 {
			// message/rfc822: body-fields SP envelope SP body SP lines.
			p.xenvelope()
			p.xspace()
			p.xbodystructure()
			p.xspace()
		}
		lines = p.xint64()
		hasLines = true
	}
	for p.take(' ') {
		p.xskipExtension()
	}
	p.xtake(")")

	enc, other := normalizeEncoding(cte)
	o := &Onepart{
		Type: typ, Subtype: subtype, Params: params,
		ID: id, HasID: hasID, Descr: descr, HasDescr: hasDescr,
		Encoding: enc, Other: other, Octets: octets,
	}
	if hasLines {
		o.Lines = lines
	}
	return BodyStructure{Onepart: o}
}

// xskipExtension consumes one body-extension value (a string, number, NIL,
// or parenthesized list of the same) without interpreting it; extension
// data beyond what the spec's Onepart/Multipart model exposes is discarded.
func (p *parser) xskipExtension() {
	switch {
	case p.peek('('):
		p.xtake("(")
		if !p.peek(')') {
			p.xskipExtension()
			for p.take(' ') {
				p.xskipExtension()
			}
		}
		p.xtake(")")
	case p.peek('"'):
		p.xquoted()
	case p.peek('{'):
		p.xliteral()
	default:
		if b, ok := p.peekByte(); ok && b >= '0' && b <= '9' {
			p.xint64()
			return
		}
		p.xnilString()
	}
}

// xbodyFields parses the common body-fields prefix shared by onepart
// bodies: parameter list, content-id, description, content-transfer-
// encoding and octet count.
func (p *parser) xbodyFields() (params map[string]string, id string, hasID bool, descr string, hasDescr bool, cte string, octets int64) {
	params = p.xbodyFldParam()
	p.xspace()
	id, hasID = p.xnilString()
	p.xspace()
	descr, hasDescr = p.xnilString()
	p.xspace()
	cte, _ = p.xnilString()
	p.xspace()
	octets = p.xint64()
	return
}

// xbodyFldParam parses a parenthesized key/value parameter list, or NIL for
// an empty map.
func (p *parser) xbodyFldParam() map[string]string {
	if !p.take('(') {
		p.xtake("NIL")
		return nil
	}
	m := map[string]string{}
	k := p.xstring()
	p.xspace()
	v := p.xstring()
	m[k] = v
	for p.take(' ') {
		k = p.xstring()
		p.xspace()
		v = p.xstring()
		m[k] = v
	}
	p.xtake(")")
	return m
}
