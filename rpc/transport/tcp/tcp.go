package tcp

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Tuning holds the socket options applied to an established TCP connection
type Tuning struct {
	NoDelay     bool          // disable Nagle's algorithm
	KeepAlive   time.Duration // 0 leaves keep-alive untouched
	LingerSec   int           // negative leaves the OS default
	ReadBuffer  int           // 0 leaves the OS default
	WriteBuffer int           // 0 leaves the OS default
}

// Dial opens one TCP connection to address. The attempt is bounded by timeout
// and ctx, whichever expires first.
func Dial(ctx context.Context, address string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, "tcp", address)
}

// Listen binds a TCP listener on address
func Listen(address string) (net.Listener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to create tcp socket: %w", err)
	}
	return listener, nil
}

// Upgrade applies tuning to conn. Connections that are not TCP are left as is.
func Upgrade(conn net.Conn, t Tuning) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	if err := tcpConn.SetNoDelay(t.NoDelay); err != nil {
		return err
	}

	if t.WriteBuffer > 0 {
		if err := tcpConn.SetWriteBuffer(t.WriteBuffer); err != nil {
			return err
		}
	}

	if t.ReadBuffer > 0 {
		if err := tcpConn.SetReadBuffer(t.ReadBuffer); err != nil {
			return err
		}
	}

	if t.KeepAlive > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(t.KeepAlive); err != nil {
			return err
		}
	}

	if t.LingerSec >= 0 {
		if err := tcpConn.SetLinger(t.LingerSec); err != nil {
			return err
		}
	}

	return nil
}
