package fileserver

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// ControlConn is the client side of a control connection.
type ControlConn struct {
	conn net.Conn
	cfg  *Config
	log  log.Logger

	closeOnce sync.Once
	closeErr  error
}

// DialControl connects to the server at addr.
func DialControl(ctx context.Context, addr string, cfg *Config) (*ControlConn, error) {
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}
	c := &ControlConn{
		conn: conn,
		cfg:  cfg,
		log:  log.New("addr", addr),
	}
	c.log.Trace("Control connection established", "local", conn.LocalAddr())
	return c, nil
}

// RemoteAddr returns the server address.
func (c *ControlConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SendRequest writes the request line.
func (c *ControlConn) SendRequest(ctx context.Context, req Request) error {
	line, err := EncodeRequest(req)
	if err != nil {
		return err
	}
	defer watchContext(ctx, c)()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.IdleTimeout))
	defer c.conn.SetWriteDeadline(time.Time{})
	if _, err := io.WriteString(c.conn, line); err != nil {
		return ioError(ctx, "send request", err)
	}
	c.log.Trace("Sent request", "line", line)
	return nil
}

// AwaitResponse blocks until the server has answered the request.
func (c *ControlConn) AwaitResponse(ctx context.Context) (Response, error) {
	defer watchContext(ctx, c)()

	deadline := time.Now().Add(c.cfg.ResponseTimeout)
	raw, err := readMessage(c.conn, deadline, c.cfg.MaxMessageSize, c.cfg.ResponseSettle)
	if err != nil {
		return Response{}, ioError(ctx, "read response", err)
	}
	resp, err := DecodeResponse(raw)
	if err != nil {
		return resp, err
	}
	c.log.Trace("Received response", "accepted", resp.Accepted, "msg", resp.Message)
	return resp, nil
}

// Close closes the connection. It can be called more than once.
func (c *ControlConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// watchContext closes c when ctx is canceled, interrupting any blocking call.
// The returned function stops watching.
func watchContext(ctx context.Context, c io.Closer) (stop func()) {
	if ctx.Done() == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// ioError creates the error for a failed read or write. When the failure was
// caused by cancellation, the context error is reported instead of the
// closed connection.
func ioError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return &IOError{Op: op, Err: err}
}
