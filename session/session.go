// Package session drives one long-lived IMAP4rev1 connection: the
// connection lifecycle state machine, the command dispatcher, and the
// per-message fetch pipeline. A Session owns its socket exclusively. The
// handshake (greeting through SELECT) runs synchronously on the caller's
// goroutine inside Start; once Steady is reached, a single run goroutine
// takes over and all exported methods communicate with it over channels
// rather than touching its state directly.
package session

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/example/imapwatch/config"
	"github.com/example/imapwatch/filter"
	"github.com/example/imapwatch/imapwire"
	"github.com/example/imapwatch/mlog"
	"github.com/example/imapwatch/netutil"
)

// Phase is the coarse authentication/selection phase from the data model.
type Phase int

const (
	NotAuthenticated Phase = iota
	Authenticated
	Selected
)

// Mutability records whether the selected mailbox was opened read-only, per
// the SELECT response code.
type Mutability int

const (
	ReadWrite Mutability = iota
	ReadOnly
)

// runState is the finer-grained connection lifecycle state, one entry per
// state in the state machine.
type runState int

const (
	stateGreeting runState = iota
	stateUnauthCapability
	stateStarttls
	stateLoggingIn
	statePostAuthCapability
	stateSelecting
	stateSteady
	stateFatal
)

// Mailbox is one entry of a LIST response.
type Mailbox struct {
	Name      string
	Delimiter byte
	Flags     []string
}

// Subscriber pairs a delivery target with the filter that gates it.
type Subscriber struct {
	Target Target
	Filter filter.Filter
}

const idleDuration = 27 * time.Minute
const noopPollInterval = 5 * time.Second

// Session is the durable record for one IMAP connection: socket, protocol
// phase, tag table, mailbox snapshot, subscriber list and in-flight fetch
// index. Every field is touched only from the goroutine that owns it: the
// caller's goroutine during the synchronous handshake in Start, and the run
// goroutine from then on.
type Session struct {
	conn   net.Conn
	br     *bufio.Reader
	bw     *bufio.Writer
	tr     *netutil.TraceReader
	tw     *netutil.TraceWriter
	log    mlog.Log
	dialer Dialer
	cfg    config.Config

	state      runState
	phase      Phase
	mutability Mutability
	failReason string

	caps            []string
	permanentFlags  []string
	applicableFlags []string
	uidValidity     uint32
	uidNext         uint32
	existsCount     uint32
	recentCount     uint32
	firstUnseen     uint32

	tags       map[uint32]tagEntry
	tagCounter uint32

	subscribers []subscriberEntry
	nextHandle  Handle

	index               map[uint32]*partialMessage
	pendingFetch        []*partialMessage
	fetchInFlight       bool
	pendingListEntries  []imapwire.ListEntry
	pendingOps          []func()
	listWaiter          chan listOutcome
	opWaiter            chan error

	idling       bool
	idleDoneSent bool
	idleTimer    *time.Timer
	noopTimer    *time.Timer

	inbox   chan any
	packets chan packetResult
	stopped chan struct{}
}

// packetResult is what the reader goroutine feeds to the run goroutine: one
// framed packet, or the error that ended the read loop.
type packetResult struct {
	data []byte
	err  error
}

// options collects the functional Option settings.
type options struct {
	dialer Dialer
	logger *slog.Logger
}

// Option configures Start.
type Option func(*options)

// WithDialer overrides the default net.Dialer, for test injection.
func WithDialer(d Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithLogger sets the slog.Logger the session's mlog.Log wraps. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Start dials cfg.Server, negotiates TLS (implicit, or via STARTTLS once
// connected), logs in, and selects cfg.Mailbox, all synchronously on the
// calling goroutine. Once the session reaches Steady it hands off to its own
// goroutine and returns.
func Start(ctx context.Context, cfg config.Config, opts ...Option) (*Session, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{dialer: netDialer{}}
	for _, opt := range opts {
		opt(&o)
	}
	log := mlog.New("session", o.logger)

	addr := net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port))
	conn, err := o.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("session: dial %s: %w", addr, err)
	}

	if cfg.TLS {
		tlsConn := tls.Client(conn, tlsClientConfig(cfg))
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("session: tls handshake: %w", err)
		}
		version, ciphersuite := netutil.TLSInfo(tlsConn)
		log.Info("tls handshake complete", "version", version, "ciphersuite", ciphersuite)
		conn = tlsConn
	}

	s := &Session{
		conn:    conn,
		log:     log,
		dialer:  o.dialer,
		cfg:     cfg,
		state:   stateGreeting,
		tags:    map[uint32]tagEntry{},
		index:   map[uint32]*partialMessage{},
		inbox:   make(chan any),
		packets: make(chan packetResult, 1),
		stopped: make(chan struct{}),
	}
	s.tr = netutil.NewTraceReader(log, "CR: ", conn)
	s.tw = netutil.NewTraceWriter(log, "CW: ", conn)
	s.br = bufio.NewReader(s.tr)
	s.bw = bufio.NewWriter(s.tw)

	if err := s.handshake(ctx); err != nil {
		s.conn.Close()
		return nil, err
	}

	go s.readLoop()
	go s.run()
	return s, nil
}

func tlsClientConfig(cfg config.Config) *tls.Config {
	c := &tls.Config{ServerName: cfg.Server}
	if config.SSLVerify(cfg.SSLVerify) == config.SSLVerifyNone {
		c.InsecureSkipVerify = true
	}
	return c
}

// readLoop is the sole reader of s.conn once the handshake has handed off to
// the run goroutine. It never touches Session state directly: framed
// packets and the terminal error are handed to run over s.packets.
func (s *Session) readLoop() {
	for {
		data, err := imapwire.ReadPacket(s.br)
		s.packets <- packetResult{data: data, err: err}
		if err != nil {
			return
		}
	}
}

// Subscribe registers sub and returns a handle for later Unsubscribe.
func (s *Session) Subscribe(sub Subscriber) (Handle, error) {
	req := subscribeReq{target: sub.Target, filter: sub.Filter, result: make(chan Handle, 1)}
	select {
	case s.inbox <- req:
		return <-req.result, nil
	case <-s.stopped:
		return 0, FatalError{Reason: "session is closed"}
	}
}

// Unsubscribe removes every subscriber entry registered under h.
func (s *Session) Unsubscribe(h Handle) error {
	req := unsubscribeReq{handle: h, result: make(chan error, 1)}
	select {
	case s.inbox <- req:
		return <-req.result
	case <-s.stopped:
		return FatalError{Reason: "session is closed"}
	}
}

// Capabilities returns the most recently observed capability set.
func (s *Session) Capabilities() []string {
	req := capsReq{result: make(chan []string, 1)}
	select {
	case s.inbox <- req:
		return <-req.result
	case <-s.stopped:
		return nil
	}
}

// Mutability reports whether the selected mailbox was opened read-only.
func (s *Session) Mutability() Mutability {
	req := mutabilityReq{result: make(chan Mutability, 1)}
	select {
	case s.inbox <- req:
		return <-req.result
	case <-s.stopped:
		return ReadOnly
	}
}

// List issues an IMAP LIST command and returns the parsed entries.
func (s *Session) List(ctx context.Context, reference, pattern string) ([]Mailbox, error) {
	req := listReq{reference: reference, pattern: pattern, result: make(chan listOutcome, 1)}
	select {
	case s.inbox <- req:
	case <-s.stopped:
		return nil, FatalError{Reason: "session is closed"}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case out := <-req.result:
		return out.entries, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.stopped:
		return nil, FatalError{Reason: "session is closed"}
	}
}

// Done returns a channel that's closed once the session's run goroutine has
// torn down, whether from a caller-requested Close or a fatal error (lost
// connection, unexpected BYE, a lifecycle command's NO/BAD).
func (s *Session) Done() <-chan struct{} {
	return s.stopped
}

// Close sends LOGOUT if still authenticated, then closes the transport.
// Cooperative: it asks the run goroutine to shut down and waits for it.
func (s *Session) Close(ctx context.Context) error {
	req := closeReq{result: make(chan struct{})}
	select {
	case s.inbox <- req:
		select {
		case <-req.result:
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-s.stopped:
	}
	<-s.stopped
	return nil
}

type capsReq struct {
	result chan []string
}

type mutabilityReq struct {
	result chan Mutability
}

type listReq struct {
	reference, pattern string
	result             chan listOutcome
}

type listOutcome struct {
	entries []Mailbox
	err     error
}

type closeReq struct {
	result chan struct{}
}
