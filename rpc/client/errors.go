package client

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/vsign/rpc/common"
	"github.com/ValentinKolb/vsign/rpc/transport/base"
)

var (
	// ErrNotReady is wrapped by a ConnectionError when the session is not
	// Ready yet (connecting, or degraded until its retry deadline)
	ErrNotReady = errors.New("session not ready")

	// ErrDisconnected is wrapped by a ConnectionError when the session is
	// Disconnected. With Exhausted set the retry budget is used up and only
	// Reset brings the session back.
	ErrDisconnected = errors.New("session disconnected")

	// ErrClosed is wrapped by a ConnectionError after Close
	ErrClosed = errors.New("session closed")
)

// ConnectionError is returned by the lifecycle manager when a call cannot be
// served in the session's current state, or when connecting failed
type ConnectionError struct {
	Session   string
	State     ConnectionState
	Attempts  int       // consecutive failed connection attempts
	RetryAt   time.Time // set when Degraded: earliest time of the next attempt
	Exhausted bool      // the retry budget is used up
	Err       error     // ErrNotReady, ErrDisconnected or ErrClosed
	Cause     error     // last connection failure, if any
}

func (e *ConnectionError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "session %s: %v (state %s", e.Session, e.Err, e.State)
	if e.Attempts > 0 {
		fmt.Fprintf(&sb, ", %d failed attempts", e.Attempts)
	}
	if e.Exhausted {
		sb.WriteString(", retries exhausted")
	}
	if !e.RetryAt.IsZero() {
		fmt.Fprintf(&sb, ", retry in %s", time.Until(e.RetryAt).Round(time.Millisecond))
	}
	sb.WriteString(")")
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

// Unwrap exposes both the sentinel and the underlying cause, so errors.Is
// matches ErrNotReady and errors.As finds a *transport.TransportError
func (e *ConnectionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// DispatchError reports a failed in-flight call. It wraps a *common.RpcError.
type DispatchError struct {
	Session string
	Service uint64
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("session %s: %s call failed: %v", e.Session, common.ServiceName(e.Service), e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Kind returns the RpcError kind of the failure
func (e *DispatchError) Kind() common.RpcErrorKind {
	return common.RpcErrorKindOf(e.Err)
}

// ErrorKind maps an error returned by this package to the short label used in
// benchmark reports: "transport", "timeout", "rejected:<code>", "too_large",
// "not_ready", "disconnected", "closed" or "other"
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var rpcErr *common.RpcError
	if errors.As(err, &rpcErr) {
		if rpcErr.Kind == common.RpcErrRemoteRejected {
			return "rejected:" + rpcErr.Code.String()
		}
		return rpcErr.Kind.String()
	}

	switch {
	case errors.Is(err, base.ErrFrameTooLarge):
		return "too_large"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrDisconnected):
		return "disconnected"
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	default:
		return "other"
	}
}
