package fileserver

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

var errNotConnected = errors.New("data connection not accepted")

// DataListener receives a single payload. The server opens the data
// connection after accepting a request, so the requesting side listens.
type DataListener struct {
	cfg  *Config
	port int
	ln   net.Listener

	mu   sync.Mutex
	conn net.Conn
}

// ListenData starts listening for the data connection on the given port.
func ListenData(ctx context.Context, host string, port int, cfg *Config) (*DataListener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, &BindError{Port: port, Err: err}
	}
	log.Trace("Listening for data connection", "addr", ln.Addr())
	return &DataListener{cfg: cfg, port: port, ln: ln}, nil
}

// Addr returns the listening address.
func (l *DataListener) Addr() net.Addr {
	return l.ln.Addr()
}

// AcceptOne waits for the data connection. Only one connection is ever
// accepted, the listener is closed once it has arrived.
func (l *DataListener) AcceptOne(ctx context.Context) (net.Conn, error) {
	defer watchContext(ctx, l.ln)()

	if dl, ok := l.ln.(interface{ SetDeadline(time.Time) error }); ok {
		dl.SetDeadline(time.Now().Add(l.cfg.AcceptTimeout))
	}
	conn, err := l.ln.Accept()
	l.ln.Close()
	if err != nil {
		return nil, ioError(ctx, "accept data connection", err)
	}
	log.Debug("Accepted data connection", "peer", conn.RemoteAddr())

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	return conn, nil
}

// Drain reads the data connection until the server closes it and returns
// everything that was received.
func (l *DataListener) Drain(ctx context.Context) ([]byte, error) {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return nil, errNotConnected
	}
	defer watchContext(ctx, conn)()

	var r io.Reader = &idleReader{conn: conn, timeout: l.cfg.IdleTimeout}
	if l.cfg.Progress != nil {
		pr := newProgressReader(r, l.cfg.Clock, l.cfg.ProgressInterval, l.cfg.Progress)
		defer pr.close()
		r = pr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ioError(ctx, "read payload", err)
	}
	log.Debug("Data connection closed by peer", "bytes", len(data))
	return data, nil
}

// Close releases the connection and the listener.
func (l *DataListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	if l.conn != nil {
		if cerr := l.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	return err
}

// idleReader fails reads that don't complete within timeout.
type idleReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *idleReader) Read(b []byte) (int, error) {
	r.conn.SetReadDeadline(time.Now().Add(r.timeout))
	return r.conn.Read(b)
}
