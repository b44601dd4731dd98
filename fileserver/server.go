package fileserver

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/p2p/netutil"
)

// Rejection messages.
const (
	RejectInvalidCommand = "INVALID COMMAND"
	RejectFileNotFound   = "FILE NOT FOUND"
	RejectServerError    = "SERVER ERROR"
)

// Time between attempts to reach the client's data port. The client starts
// listening only after it has read the acceptance.
const dataDialRetryDelay = 50 * time.Millisecond

// ServerFunc handles a transfer request. It must call Accept or Reject. When it
// returns an error before doing either, the request is rejected.
type ServerFunc func(*TransferRequest) error

// Server is the file transfer server. It handles transfer requests from clients
// and calls the configured handler function. Clients are served one at a time.
type Server struct {
	cfg *Config
	ln  net.Listener

	wg        sync.WaitGroup
	quit      chan struct{}
	closeOnce sync.Once
}

// NewServer starts serving requests received on ln.
func NewServer(ln net.Listener, cfg Config) *Server {
	cfg = cfg.withDefaults()
	if cfg.Handler == nil {
		panic("fileserver: Config.Handler is nil")
	}
	srv := &Server{cfg: &cfg, ln: ln, quit: make(chan struct{})}
	srv.wg.Add(1)
	go srv.loop()
	return srv
}

// Addr returns the control connection listening address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Close stops the server and waits for the current request to finish.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.quit)
		err = s.ln.Close()
		s.wg.Wait()
	})
	return err
}

func (s *Server) loop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn("Accept failed", "err", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	clog := log.New("peer", conn.RemoteAddr())

	deadline := time.Now().Add(s.cfg.ResponseTimeout)
	raw, err := readMessage(conn, deadline, s.cfg.MaxMessageSize, s.cfg.ResponseSettle)
	if err != nil {
		clog.Debug("Can't read request", "err", err)
		return
	}
	req, err := DecodeRequest(string(raw))
	if err != nil {
		clog.Info("Invalid request", "line", string(raw), "err", err)
		writeResponse(conn, Response{Message: RejectInvalidCommand})
		return
	}

	tr := &TransferRequest{
		Command:  req.Command,
		Filename: req.Filename,
		DataPort: req.DataPort,
		Peer:     conn.RemoteAddr(),
		server:   s,
		ctrl:     conn,
		log:      clog,
	}
	clog.Info("Transfer requested", "cmd", req.Command, "file", req.Filename, "dataport", req.DataPort)
	if err := s.cfg.Handler(tr); err != nil {
		if tr.Reject(rejectReason(err)) == nil {
			clog.Info("Rejected transfer", "err", err)
		} else {
			clog.Error("File transfer handler failed", "err", err)
		}
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrInvalid):
		return RejectFileNotFound
	default:
		return RejectServerError
	}
}

func writeResponse(conn net.Conn, resp Response) error {
	_, err := conn.Write(resp.encode())
	return err
}

// dialData opens the data connection to the client.
func (s *Server) dialData(peer net.Addr, port int) (net.Conn, error) {
	ip := netutil.AddrIP(peer)
	if ip == nil {
		return nil, &ConnectError{Addr: peer.String(), Err: errors.New("peer has no IP address")}
	}
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(port))
	deadline := time.Now().Add(s.cfg.DialTimeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, s.cfg.DialTimeout)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, &ConnectError{Addr: addr, Err: err}
		}
		select {
		case <-time.After(dataDialRetryDelay):
		case <-s.quit:
			return nil, errServerClosed
		}
	}
}

// TransferRequest is a request received by the server.
type TransferRequest struct {
	Command  Command
	Filename string // Set for CmdGet
	DataPort int
	Peer     net.Addr // Client address

	server *Server
	ctrl   net.Conn
	log    log.Logger

	mu        sync.Mutex
	responded bool
	accepted  bool
	sent      bool
}

// Accept tells the client that the payload will be sent.
func (r *TransferRequest) Accept() error {
	return r.respond(Response{Accepted: true})
}

// Reject declines the request. The reason is shown to the user.
func (r *TransferRequest) Reject(reason string) error {
	return r.respond(Response{Message: reason})
}

func (r *TransferRequest) respond(resp Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.responded {
		return errAlreadyResponded
	}
	r.responded = true
	r.accepted = resp.Accepted
	return writeResponse(r.ctrl, resp)
}

// SendListing sends a directory listing. The request must be accepted first.
func (r *TransferRequest) SendListing(entries []string) error {
	data := EncodePayload(&Payload{Command: CmdList, Entries: entries})
	return r.send(bytes.NewReader(data))
}

// SendFile sends the content of a file. The request must be accepted first.
func (r *TransferRequest) SendFile(content io.Reader) error {
	header := bytes.NewReader([]byte(CmdGet.tag() + "\n"))
	return r.send(io.MultiReader(header, content))
}

func (r *TransferRequest) send(payload io.Reader) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case !r.accepted:
		return errNotAccepted
	case r.sent:
		return errAlreadySent
	}
	r.sent = true

	conn, err := r.server.dialData(r.Peer, r.DataPort)
	if err != nil {
		return err
	}
	defer conn.Close()

	n, err := io.Copy(conn, payload)
	if err != nil {
		return &IOError{Op: "send payload", Err: err}
	}
	r.log.Debug("Payload sent", "dataport", r.DataPort, "bytes", n)
	return conn.Close()
}
