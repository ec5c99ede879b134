package netutil

import (
	"io"
	"net"
)

// PrefixConn is a net.Conn prefixed with a reader that is drained first.
// Used for STARTTLS: bytes already buffered past the tagged OK, but before
// the TLS handshake, must still be delivered before further reads reach the
// raw socket.
type PrefixConn struct {
	PrefixReader io.Reader // Read from first; cleared once it returns io.EOF.
	net.Conn
}

func (c *PrefixConn) Read(buf []byte) (int, error) {
	if c.PrefixReader != nil {
		n, err := c.PrefixReader.Read(buf)
		if err == io.EOF {
			c.PrefixReader = nil
			err = nil
			if n == 0 {
				return c.Conn.Read(buf)
			}
		}
		return n, err
	}
	return c.Conn.Read(buf)
}
