package vsock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mdlayher/vsock"
)

// ErrUnsupported is returned when the platform or kernel has no AF_VSOCK support
var ErrUnsupported = errors.New("virtual sockets are not supported on this platform")

// Well-known context ids
const (
	ContextHypervisor = vsock.Hypervisor
	ContextLocal      = vsock.Local
	ContextHost       = vsock.Host
)

// Dial opens one virtual socket connection to contextID:port. The underlying
// connect call has no deadline of its own, so a connection that completes
// after ctx or timeout expired is closed in the background.
func Dial(ctx context.Context, contextID, port uint32, timeout time.Duration) (net.Conn, error) {
	if err := checkPlatform(); err != nil {
		return nil, err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)

	go func() {
		c, err := vsock.Dial(contextID, port, nil)
		if err != nil {
			resultCh <- dialResult{err: mapError(err)}
			return
		}
		resultCh <- dialResult{conn: c}
	}()

	select {
	case r := <-resultCh:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-resultCh; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Listen binds a virtual socket listener. A context id of 0 binds to the
// local context id of this machine.
func Listen(contextID, port uint32) (net.Listener, error) {
	if err := checkPlatform(); err != nil {
		return nil, err
	}

	var (
		l   *vsock.Listener
		err error
	)
	if contextID == 0 {
		l, err = vsock.Listen(port, nil)
	} else {
		l, err = vsock.ListenContextID(contextID, port, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create vsock socket: %w", mapError(err))
	}
	return l, nil
}

// LocalContextID returns the context id of this machine
func LocalContextID() (uint32, error) {
	if err := checkPlatform(); err != nil {
		return 0, err
	}
	cid, err := vsock.ContextID()
	if err != nil {
		return 0, mapError(err)
	}
	return cid, nil
}
