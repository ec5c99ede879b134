package message

import (
	"encoding/base64"
	"testing"

	"github.com/example/imapwatch/imapwire"
)

func TestDecodeBodyBase64(t *testing.T) {
	raw := []byte(base64.StdEncoding.EncodeToString([]byte("hello world")))
	got, err := DecodeBody(imapwire.Onepart{Encoding: imapwire.EncodingBase64}, raw)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}

func TestDecodeBodyQuotedPrintable(t *testing.T) {
	raw := []byte("caf=C3=A9")
	got, err := DecodeBody(imapwire.Onepart{Encoding: imapwire.EncodingQuotedPrintable}, raw)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if string(got) != "café" {
		t.Fatalf("got %q, want %q", got, "café")
	}
}

func TestDecodeBodyIdentity(t *testing.T) {
	for _, enc := range []imapwire.Encoding{imapwire.Encoding7Bit, imapwire.Encoding8Bit, imapwire.EncodingBinary, ""} {
		raw := []byte("plain text")
		got, err := DecodeBody(imapwire.Onepart{Encoding: enc}, raw)
		if err != nil {
			t.Fatalf("DecodeBody(%v): %v", enc, err)
		}
		if string(got) != "plain text" {
			t.Fatalf("DecodeBody(%v) = %q, want unchanged", enc, got)
		}
	}
}
