package common

import (
	"context"
	"errors"
	"fmt"
)

// RpcErrorKind classifies why a call on the RPC surface failed
type RpcErrorKind uint8

const (
	// RpcErrTransportFailure means the byte stream broke; the connection is unusable
	RpcErrTransportFailure RpcErrorKind = iota + 1
	// RpcErrTimeout means the call's deadline passed or it was cancelled
	RpcErrTimeout
	// RpcErrRemoteRejected means the server answered with an error code
	RpcErrRemoteRejected
)

func (k RpcErrorKind) String() string {
	switch k {
	case RpcErrTransportFailure:
		return "transport"
	case RpcErrTimeout:
		return "timeout"
	case RpcErrRemoteRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// RpcError is the error type of every failed call on the RPC surface
type RpcError struct {
	Kind RpcErrorKind
	Code ErrorCode // set for RpcErrRemoteRejected
	Msg  string
	Err  error
}

func (e *RpcError) Error() string {
	switch {
	case e.Kind == RpcErrRemoteRejected:
		return fmt.Sprintf("rpc rejected (%s): %s", e.Code, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("rpc %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("rpc %s: %s", e.Kind, e.Msg)
	}
}

func (e *RpcError) Unwrap() error { return e.Err }

// NewTransportFailure wraps err as a transport failure
func NewTransportFailure(err error) *RpcError {
	return &RpcError{Kind: RpcErrTransportFailure, Err: err}
}

// NewTimeout wraps a context error as a timeout
func NewTimeout(err error) *RpcError {
	if err == nil {
		err = context.DeadlineExceeded
	}
	return &RpcError{Kind: RpcErrTimeout, Err: err}
}

// NewRemoteRejected builds the error for a response carrying an error code
func NewRemoteRejected(code ErrorCode, msg string) *RpcError {
	return &RpcError{Kind: RpcErrRemoteRejected, Code: code, Msg: msg}
}

// RpcErrorKindOf returns the kind of the first RpcError in err's chain, or 0
func RpcErrorKindOf(err error) RpcErrorKind {
	var rpcErr *RpcError
	if errors.As(err, &rpcErr) {
		return rpcErr.Kind
	}
	return 0
}

// IsTransportFailure reports whether err is (or wraps) a transport failure
func IsTransportFailure(err error) bool {
	return RpcErrorKindOf(err) == RpcErrTransportFailure
}

// IsTimeout reports whether err is (or wraps) a call timeout
func IsTimeout(err error) bool {
	return RpcErrorKindOf(err) == RpcErrTimeout
}
