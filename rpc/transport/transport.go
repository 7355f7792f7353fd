package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/vsign/rpc/transport/tcp"
	"github.com/ValentinKolb/vsign/rpc/transport/unix"
	"github.com/ValentinKolb/vsign/rpc/transport/vsock"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport")

// ErrUnsupported is wrapped by a TransportError when the selected kind is not
// available on this platform
var ErrUnsupported = vsock.ErrUnsupported

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options bounds a single setup attempt and tunes the resulting socket
type Options struct {
	// Timeout bounds one Dial attempt (0 means only the context bounds it)
	Timeout time.Duration

	// socket buffers (tcp and unix, 0 = OS default)
	ReadBufferSize  int
	WriteBufferSize int

	// tcp only
	TCPNoDelay   bool
	TCPKeepAlive time.Duration
	TCPLingerSec int // negative = OS default
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Timeout:      10 * time.Second,
		TCPNoDelay:   true,
		TCPLingerSec: -1,
	}
}

func (o Options) tcpTuning() tcp.Tuning {
	return tcp.Tuning{
		NoDelay:     o.TCPNoDelay,
		KeepAlive:   o.TCPKeepAlive,
		LingerSec:   o.TCPLingerSec,
		ReadBuffer:  o.ReadBufferSize,
		WriteBuffer: o.WriteBufferSize,
	}
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// Connection is an open bidirectional byte stream together with the kind of
// transport it runs on and a description of the peer. It is owned by the
// component that created it and must not be shared without hand-off.
type Connection struct {
	net.Conn
	kind      Kind
	peer      string
	closeOnce sync.Once
	closeErr  error
}

func newConnection(conn net.Conn, kind Kind, fallbackPeer string) *Connection {
	peer := fallbackPeer
	if addr := conn.RemoteAddr(); addr != nil && addr.String() != "" && addr.String() != "@" {
		peer = addr.String()
	}
	return &Connection{Conn: conn, kind: kind, peer: peer}
}

// Kind returns the transport kind of the connection
func (c *Connection) Kind() Kind { return c.kind }

// Peer describes the remote end
func (c *Connection) Peer() string { return c.peer }

// Close closes the underlying stream. Repeated calls return the first result.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}

// --------------------------------------------------------------------------
// Listener
// --------------------------------------------------------------------------

// Listener is a bound passive endpoint. Accept yields inbound connections
// until the listener is closed; a closed Listener cannot be restarted.
type Listener struct {
	listener net.Listener
	config   Config
}

// Accept waits for the next inbound connection
func (l *Listener) Accept() (*Connection, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, &TransportError{Op: "accept", Kind: l.config.kind, Address: l.config.String(), Err: err}
	}
	return newConnection(conn, l.config.kind, "local"), nil
}

// Close stops accepting. Blocked Accept calls return an error wrapping net.ErrClosed.
func (l *Listener) Close() error {
	return l.listener.Close()
}

// Addr returns the bound network address
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Config returns the address the listener is bound to. For tcp this carries
// the resolved port when the listener was bound to port 0.
func (l *Listener) Config() Config {
	return l.config
}

// --------------------------------------------------------------------------
// Factory
// --------------------------------------------------------------------------

// Dial makes exactly one attempt to connect to cfg, bounded by opts.Timeout
// and ctx. It never retries.
func Dial(ctx context.Context, cfg Config, opts Options) (*Connection, error) {
	var (
		conn net.Conn
		err  error
	)

	switch cfg.kind {
	case KindTCP:
		conn, err = tcp.Dial(ctx, cfg.String(), opts.Timeout)
		if err == nil {
			err = tcp.Upgrade(conn, opts.tcpTuning())
		}
	case KindUnix:
		conn, err = unix.Dial(ctx, cfg.path, opts.Timeout)
		if err == nil {
			err = unix.Upgrade(conn, opts.ReadBufferSize, opts.WriteBufferSize)
		}
	case KindVsock:
		conn, err = vsock.Dial(ctx, cfg.cid, cfg.port, opts.Timeout)
	default:
		return nil, &TransportError{Op: "dial", Kind: cfg.kind, Address: cfg.String(), Err: fmt.Errorf("%w: unknown transport kind", ErrUnsupported)}
	}

	if err != nil {
		if conn != nil {
			_ = conn.Close()
		}
		return nil, &TransportError{Op: "dial", Kind: cfg.kind, Address: cfg.String(), Err: err}
	}

	Logger.Debugf("connected to %s via %s", cfg, cfg.kind)
	return newConnection(conn, cfg.kind, cfg.String()), nil
}

// Listen binds a listener for cfg
func Listen(cfg Config) (*Listener, error) {
	var (
		l   net.Listener
		err error
	)

	switch cfg.kind {
	case KindTCP:
		l, err = tcp.Listen(cfg.String())
	case KindUnix:
		l, err = unix.Listen(cfg.path)
	case KindVsock:
		l, err = vsock.Listen(cfg.cid, cfg.port)
	default:
		err = fmt.Errorf("%w: unknown transport kind", ErrUnsupported)
	}

	if err != nil {
		return nil, &TransportError{Op: "listen", Kind: cfg.kind, Address: cfg.String(), Err: err}
	}

	bound := cfg
	if tcpAddr, ok := l.Addr().(*net.TCPAddr); ok && cfg.kind == KindTCP {
		bound = NewTCPConfig(cfg.host, uint16(tcpAddr.Port))
	}

	Logger.Infof("listening on %s via %s", bound, cfg.kind)
	return &Listener{listener: l, config: bound}, nil
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

// TransportError reports a failed bind, connect or accept
type TransportError struct {
	Op      string // "dial", "listen" or "accept"
	Kind    Kind
	Address string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Kind, e.Op, e.Address, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Unsupported reports whether the error was caused by a transport kind that
// is not available on this platform
func (e *TransportError) Unsupported() bool {
	return errors.Is(e.Err, ErrUnsupported)
}
