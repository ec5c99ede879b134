package imapwire

import (
	"fmt"
	"reflect"
	"testing"
)

func tcheckf(t *testing.T, err error, format string, args ...any) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %s", fmt.Sprintf(format, args...), err)
	}
}

func tcompare(t *testing.T, got, want any) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got:\n%#v\nwant:\n%#v", got, want)
	}
}

func TestParseTaggedResponse(t *testing.T) {
	acts, err := Parse([]byte("0 OK done\r\n"))
	tcheckf(t, err, "parsing tagged OK")
	tcompare(t, acts, []Action{TaggedResponse{Tag: 0, Status: OK, Text: "done"}})
}

func TestParseTaggedResponseWithCode(t *testing.T) {
	acts, err := Parse([]byte("1 NO [BADCHARSET (US-ASCII)] bad charset\r\n"))
	tcheckf(t, err, "parsing tagged NO with response code")
	tcompare(t, acts, []Action{TaggedResponse{Tag: 1, Status: NO, Code: "BADCHARSET", Text: "bad charset"}})
}

func TestParseGreetingCapabilityCode(t *testing.T) {
	// A recognized response code produces its own action in place of the
	// generic UntaggedStatus, not alongside it.
	acts, err := Parse([]byte("* OK [CAPABILITY IMAP4rev1 IDLE STARTTLS] ready\r\n"))
	tcheckf(t, err, "parsing greeting")
	tcompare(t, acts, []Action{
		Capabilities([]string{"IMAP4REV1", "IDLE", "STARTTLS"}),
	})
}

func TestParseUntaggedOKWithoutCodeKeepsUntaggedStatus(t *testing.T) {
	acts, err := Parse([]byte("* OK ready\r\n"))
	tcheckf(t, err, "parsing greeting without a code")
	tcompare(t, acts, []Action{UntaggedStatus{Status: OK, Text: "ready"}})
}

func TestParseNumberedUntagged(t *testing.T) {
	for _, tc := range []struct {
		line string
		want Action
	}{
		{"* 3 EXISTS\r\n", Exists(3)},
		{"* 1 RECENT\r\n", Recent(1)},
		{"* 5 EXPUNGE\r\n", Expunge(5)},
	} {
		acts, err := Parse([]byte(tc.line))
		tcheckf(t, err, "parsing %q", tc.line)
		tcompare(t, acts, []Action{tc.want})
	}
}

func TestParseBye(t *testing.T) {
	acts, err := Parse([]byte("* BYE logging out\r\n"))
	tcheckf(t, err, "parsing BYE")
	tcompare(t, acts, []Action{Bye{Text: "logging out"}})
}

func TestParseContinuation(t *testing.T) {
	acts, err := Parse([]byte("+ idling\r\n"))
	tcheckf(t, err, "parsing continuation")
	tcompare(t, acts, []Action{Continuation{Text: "idling"}})
}

func TestParseList(t *testing.T) {
	acts, err := Parse([]byte("* LIST (\\HasNoChildren) \"/\" INBOX\r\n"))
	tcheckf(t, err, "parsing LIST")
	tcompare(t, acts, []Action{ListEntry{
		Flags:     []string{`\HASNOCHILDREN`},
		Delimiter: '/',
		Mailbox:   "INBOX",
	}})
}

func TestParseFetchFlags(t *testing.T) {
	acts, err := Parse([]byte("* 4 FETCH (FLAGS (\\Seen \\Answered))\r\n"))
	tcheckf(t, err, "parsing FETCH FLAGS")
	tcompare(t, acts, []Action{FetchFlags{Seq: 4, Flags: []string{`\Seen`, `\Answered`}}})
}

func TestParseFetchEnvelope(t *testing.T) {
	// Adapted from the RFC 3501 §7.4.2 example envelope, with a different
	// date and a NIL cc list.
	line := "* 12 FETCH (ENVELOPE (\"Mon, 7 Feb 1994 21:52:25 -0800\" " +
		"\"IMAP4rev1 WG mtg summary and minutes\" " +
		"((\"Terry Gray\" NIL \"gray\" \"cac.washington.edu\")) " +
		"((\"Terry Gray\" NIL \"gray\" \"cac.washington.edu\")) " +
		"((\"Terry Gray\" NIL \"gray\" \"cac.washington.edu\")) " +
		"((NIL NIL \"imap\" \"cac.washington.edu\")) " +
		"NIL NIL NIL \"<B27397-0100000@cac.washington.edu>\"))\r\n"

	acts, err := Parse([]byte(line))
	tcheckf(t, err, "parsing FETCH ENVELOPE")
	if len(acts) != 1 {
		t.Fatalf("got %d actions, want 1: %#v", len(acts), acts)
	}
	fe, ok := acts[0].(FetchEnvelope)
	if !ok {
		t.Fatalf("action is %T, want FetchEnvelope", acts[0])
	}
	if fe.Seq != 12 {
		t.Fatalf("seq = %d, want 12", fe.Seq)
	}
	if fe.Envelope.Subject != "IMAP4rev1 WG mtg summary and minutes" {
		t.Fatalf("subject = %q", fe.Envelope.Subject)
	}
	want := Address{Name: "Terry Gray", HasName: true, Mailbox: "gray", Host: "cac.washington.edu"}
	tcompare(t, fe.Envelope.From, []Address{want})
	tcompare(t, fe.Envelope.Sender, []Address{want})
	tcompare(t, fe.Envelope.ReplyTo, []Address{want})
	tcompare(t, fe.Envelope.To, []Address{{HasName: false, Mailbox: "imap", Host: "cac.washington.edu"}})
	if fe.Envelope.MessageID != "<B27397-0100000@cac.washington.edu>" {
		t.Fatalf("message-id = %q", fe.Envelope.MessageID)
	}
	if !fe.Envelope.HasDate {
		t.Fatalf("expected HasDate to be true")
	}
}

func TestParseFetchBodystructure(t *testing.T) {
	line := `* 2 FETCH (BODYSTRUCTURE ("TEXT" "PLAIN" ("CHARSET" "UTF-8") NIL NIL "BASE64" 12 1))` + "\r\n"
	acts, err := Parse([]byte(line))
	tcheckf(t, err, "parsing FETCH BODYSTRUCTURE")
	tcompare(t, acts, []Action{FetchBodystructure{
		Seq: 2,
		Body: BodyStructure{
			Onepart: &Onepart{
				Type: "TEXT", Subtype: "PLAIN",
				Params:   map[string]string{"CHARSET": "UTF-8"},
				Encoding: EncodingBase64,
				Octets:   12,
				Lines:    1,
			},
		},
	}})
}

func TestParseFetchBodystructureBasicTypeWithExtensions(t *testing.T) {
	// A non-TEXT, non-MESSAGE/RFC822 part has no lines field; the first
	// optional field after body-fields is body-ext-1part's MD5 nstring.
	line := `* 3 FETCH (BODYSTRUCTURE ("APPLICATION" "PDF" ("NAME" "report.pdf") NIL NIL "BASE64" 4096 "abc123" ("ATTACHMENT" ("FILENAME" "report.pdf")) NIL NIL))` + "\r\n"
	acts, err := Parse([]byte(line))
	tcheckf(t, err, "parsing FETCH BODYSTRUCTURE for a basic-type part with extension data")
	tcompare(t, acts, []Action{FetchBodystructure{
		Seq: 3,
		Body: BodyStructure{
			Onepart: &Onepart{
				Type: "APPLICATION", Subtype: "PDF",
				Params:   map[string]string{"NAME": "report.pdf"},
				Encoding: EncodingBase64,
				Octets:   4096,
			},
		},
	}})
}

func TestParseFetchBodyContentLiteral(t *testing.T) {
	acts, err := Parse([]byte("* 5 FETCH (BODY[1] {5}\r\nhello)\r\n"))
	tcheckf(t, err, "parsing FETCH BODY content")
	tcompare(t, acts, []Action{FetchBodyContent{
		Seq: 5, Path: []int{1}, Present: true, Content: []byte("hello"),
	}})
}

func TestParseFetchBodyContentNil(t *testing.T) {
	acts, err := Parse([]byte("* 6 FETCH (BODY[2] NIL)\r\n"))
	tcheckf(t, err, "parsing FETCH BODY NIL content")
	if len(acts) != 1 {
		t.Fatalf("got %d actions, want 1: %#v", len(acts), acts)
	}
	fc, ok := acts[0].(FetchBodyContent)
	if !ok {
		t.Fatalf("action is %T, want FetchBodyContent", acts[0])
	}
	if fc.Seq != 6 || fc.Present || len(fc.Content) != 0 {
		t.Fatalf("got %#v, want Seq=6 Present=false empty Content", fc)
	}
	tcompare(t, fc.Path, []int{2})
}

func TestParseUnparsedFallback(t *testing.T) {
	line := "* SEARCH 1 2 3\r\n"
	acts, err := Parse([]byte(line))
	tcheckf(t, err, "parsing unrecognized untagged response")
	tcompare(t, acts, []Action{Unparsed{Raw: []byte(line)}})
}

func TestParseCopyUIDCode(t *testing.T) {
	acts, err := Parse([]byte("9 OK [COPYUID 1 1:3 5:7] done\r\n"))
	tcheckf(t, err, "parsing COPYUID code")
	tcompare(t, acts, []Action{
		CopyUID{Validity: 1, Src: []uint32{1, 2, 3}, Dst: []uint32{5, 6, 7}},
		TaggedResponse{Tag: 9, Status: OK, Code: "COPYUID", Text: "done"},
	})
}

func TestParseMultiplePacketsIndependent(t *testing.T) {
	// Parse is stateless across calls: parsing two packets separately must
	// give the same result as parsing either alone.
	acts1, err := Parse([]byte("* 1 EXISTS\r\n"))
	tcheckf(t, err, "parsing first packet")
	acts2, err := Parse([]byte("* 2 EXISTS\r\n"))
	tcheckf(t, err, "parsing second packet")
	tcompare(t, acts1, []Action{Exists(1)})
	tcompare(t, acts2, []Action{Exists(2)})
}

func TestParseMalformedReturnsParseError(t *testing.T) {
	_, err := Parse([]byte("not a valid imap line\r\n"))
	if err == nil {
		t.Fatalf("expected a ParseError, got nil")
	}
	if _, ok := err.(ParseError); !ok {
		t.Fatalf("error %v is not a ParseError", err)
	}
}
