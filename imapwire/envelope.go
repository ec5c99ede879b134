package imapwire

import (
	"strings"
	"time"
)

// Address is one ENVELOPE or address-list entry: (display-name, adl,
// mailbox, host). Mailbox and host are lower-cased by the parser per the
// spec's explicit (preserved) normalization decision.
type Address struct {
	Name    string // Empty if NIL.
	HasName bool
	Adl     string
	Mailbox string
	Host    string
}

// Addr renders the conventional "mailbox@host" form.
func (a Address) Addr() string {
	return a.Mailbox + "@" + a.Host
}

// Envelope is the parsed ENVELOPE fetch attribute.
type Envelope struct {
	Date      time.Time // Zero if NIL or unparsable.
	HasDate   bool
	Subject   string
	HasSubject bool
	From      []Address
	Sender    []Address
	ReplyTo   []Address
	To        []Address
	Cc        []Address
	Bcc       []Address
	InReplyTo string
	MessageID string
}

// parseEnvelopeDate parses an RFC5322 date-time string as found in
// ENVELOPE's date field, normalizing to UTC. Per the spec, unparsable or
// NIL dates become the zero value with ok=false rather than an error.
func parseEnvelopeDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	// RFC5322 dates sometimes carry a trailing parenthetical timezone name
	// comment, e.g. "Wed, 17 Jul 1996 02:23:25 -0700 (PDT)", which
	// time.Parse's layouts don't accept; strip it first.
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	for _, layout := range []string{
		time.RFC1123Z,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"2 Jan 2006 15:04:05 -0700",
		"2 Jan 2006 15:04:05 MST",
		time.RFC1123,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// BodyStructure is the recursive parse of a BODY/BODYSTRUCTURE fetch
// attribute. Exactly one of Onepart/Multipart is set.
type BodyStructure struct {
	Onepart   *Onepart
	Multipart *Multipart
}

// Encoding is the normalized content-transfer-encoding of a leaf body part.
type Encoding string

const (
	Encoding7Bit            Encoding = "7BIT"
	Encoding8Bit            Encoding = "8BIT"
	EncodingBinary          Encoding = "BINARY"
	EncodingBase64          Encoding = "BASE64"
	EncodingQuotedPrintable Encoding = "QUOTED-PRINTABLE"
)

// OtherEncoding wraps an encoding token the parser doesn't have a named
// constant for (e.g. a future or vendor CTE).
type OtherEncoding struct {
	Name string
}

// Onepart is a single, non-multipart body part.
type Onepart struct {
	Type     string // e.g. "TEXT"
	Subtype  string // e.g. "PLAIN"
	Params   map[string]string
	ID       string
	HasID    bool
	Descr    string
	HasDescr bool
	Encoding Encoding
	Other    OtherEncoding // Set when Encoding == "" and the token was non-standard.
	Octets   int64
	Lines    int64 // Only meaningful for text/* and message/rfc822; else 0.
}

// MimeType renders the conventional "type/subtype" form, lower-cased.
func (o Onepart) MimeType() string {
	return strings.ToLower(o.Type) + "/" + strings.ToLower(o.Subtype)
}

// Multipart is a body part composed of several children.
type Multipart struct {
	Children []BodyStructure
	Subtype  string
}

func normalizeEncoding(cte string) (Encoding, OtherEncoding) {
	switch strings.ToUpper(cte) {
	case "7BIT", "":
		return Encoding7Bit, OtherEncoding{}
	case "8BIT":
		return Encoding8Bit, OtherEncoding{}
	case "BINARY":
		return EncodingBinary, OtherEncoding{}
	case "BASE64":
		return EncodingBase64, OtherEncoding{}
	case "QUOTED-PRINTABLE":
		return EncodingQuotedPrintable, OtherEncoding{}
	default:
		return "", OtherEncoding{Name: strings.ToUpper(cte)}
	}
}

// LeafPaths enumerates the dotted-index path of every leaf (Onepart) in the
// tree, in left-to-right order, e.g. a two-part multipart whose second part
// is itself a two-part multipart yields [[1] [2 1] [2 2]].
func (b BodyStructure) LeafPaths() [][]int {
	return b.leafPaths(nil)
}

func (b BodyStructure) leafPaths(prefix []int) [][]int {
	if b.Onepart != nil {
		path := append(append([]int{}, prefix...))
		if len(path) == 0 {
			path = []int{1}
		}
		return [][]int{path}
	}
	var paths [][]int
	for i, child := range b.Multipart.Children {
		paths = append(paths, child.leafPaths(append(append([]int{}, prefix...), i+1))...)
	}
	return paths
}
