package imapwire

import "strings"

// xenvelope parses the 10-field ENVELOPE grammar.
func (p *parser) xenvelope() Envelope {
	p.xtake("(")
	dateStr, hasDate := p.xnilString()
	p.xspace()
	subject, hasSubject := p.xnilString()
	p.xspace()
	from := p.xaddresses()
	p.xspace()
	sender := p.xaddresses()
	p.xspace()
	replyTo := p.xaddresses()
	p.xspace()
	to := p.xaddresses()
	p.xspace()
	cc := p.xaddresses()
	p.xspace()
	bcc := p.xaddresses()
	p.xspace()
	inReplyTo, _ := p.xnilString()
	p.xspace()
	messageID, _ := p.xnilString()
	p.xtake(")")

	env := Envelope{
		Subject: subject, HasSubject: hasSubject,
		From: from, Sender: sender, ReplyTo: replyTo, To: to, Cc: cc, Bcc: bcc,
		InReplyTo: inReplyTo, MessageID: messageID,
	}
	if hasDate {
		if t, ok := parseEnvelopeDate(dateStr); ok {
			env.Date = t
			env.HasDate = true
		}
	}
	return env
}

func (p *parser) xaddresses() []Address {
	if !p.take('(') {
		p.xtake("NIL")
		return nil
	}
	var l []Address
	l = append(l, p.xaddress())
	for !p.take(')') {
		l = append(l, p.xaddress())
	}
	return l
}

func (p *parser) xaddress() Address {
	p.xtake("(")
	name, hasName := p.xnilString()
	p.xspace()
	adl, _ := p.xnilString()
	p.xspace()
	mailbox, _ := p.xnilString()
	p.xspace()
	host, _ := p.xnilString()
	p.xtake(")")
	return Address{
		Name: name, HasName: hasName, Adl: adl,
		Mailbox: strings.ToLower(mailbox), Host: strings.ToLower(host),
	}
}
