// Package message turns the wire-level shapes produced by imapwire into the
// delivery-ready records subscribers receive: decoding each leaf body
// part's content per its declared transfer encoding and folding the flat
// collected (path, bytes) pairs into a tree mirroring the message's body
// structure.
package message

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime/quotedprintable"

	"github.com/example/imapwatch/imapwire"
)

// newDecoder selects the content-transfer decoder for enc, defaulting to
// the identity transform for 7BIT/8BIT/BINARY and any encoding this package
// doesn't recognize (OTHER).
func newDecoder(enc imapwire.Encoding, r io.Reader) io.Reader {
	switch enc {
	case imapwire.EncodingBase64:
		return base64.NewDecoder(base64.StdEncoding, r)
	case imapwire.EncodingQuotedPrintable:
		return quotedprintable.NewReader(r)
	}
	return r
}

// DecodeBody decodes raw (still wire-encoded) body bytes according to the
// onepart's declared Content-Transfer-Encoding.
func DecodeBody(o imapwire.Onepart, raw []byte) ([]byte, error) {
	r := newDecoder(o.Encoding, bytes.NewReader(raw))
	return io.ReadAll(r)
}
