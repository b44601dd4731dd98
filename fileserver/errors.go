package fileserver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
)

var (
	// ErrMalformed is returned (wrapped) for messages that can't be decoded.
	ErrMalformed = errors.New("malformed message")

	errAlreadyResponded = errors.New("request already accepted or rejected")
	errNotAccepted      = errors.New("request was not accepted")
	errAlreadySent      = errors.New("payload already sent")
	errServerClosed     = errors.New("server closed")
)

// ConnectError is returned when a connection to the peer can't be established.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string { return "can't connect to " + e.Addr + ": " + e.Err.Error() }
func (e *ConnectError) Unwrap() error { return e.Err }

// RejectedError is returned when the server declines a request.
// Message is the reason sent by the server.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string { return "request rejected: " + e.Message }

// BindError is returned when the data port can't be listened on.
type BindError struct {
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return "can't listen on data port " + strconv.Itoa(e.Port) + ": " + e.Err.Error()
}
func (e *BindError) Unwrap() error { return e.Err }

// IOError is a read or write failure in the middle of a transfer.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// Category returns a short name for the kind of failure err represents.
func Category(err error) string {
	var (
		connErr *ConnectError
		rejErr  *RejectedError
		bindErr *BindError
		ioErr   *IOError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rejErr):
		return "rejected"
	case errors.Is(err, ErrMalformed):
		return "protocol error"
	case errors.As(err, &connErr):
		return "connect error"
	case errors.As(err, &bindErr):
		return "bind error"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &ioErr):
		return "I/O error"
	default:
		return "error"
	}
}
