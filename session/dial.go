package session

import (
	"context"
	"net"
)

// Dialer dials the mail server's TCP address. An interface so tests can
// inject an in-memory or fake connection without touching a real network.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

type netDialer struct {
	d net.Dialer
}

func (n netDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return n.d.DialContext(ctx, network, addr)
}
