package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a backend failure for code mapping at the protocol
// boundary.
type ErrorKind int

const (
	// KindUnavailable means the launch/probe budget was exhausted without the
	// backend becoming healthy.
	KindUnavailable ErrorKind = iota
	// KindTimeout means a forwarded call exceeded its deadline.
	KindTimeout
	// KindTransport means a network-level failure or a malformed reply.
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is a classified backend failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("backend %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("backend %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// classify wraps a transport-layer err from op, separating deadline overruns
// from other network failures. A deadline overrun cancels the call; the
// caller must be able to tell it apart from a connection problem.
func classify(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindTransport, Op: op, Err: err}
}
