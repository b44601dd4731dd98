package fileserver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Command is a control connection command.
type Command uint8

const (
	CmdList Command = iota + 1
	CmdGet
)

func (c Command) String() string {
	switch c {
	case CmdList:
		return "LIST"
	case CmdGet:
		return "GET"
	default:
		return fmt.Sprintf("Command(%d)", uint8(c))
	}
}

// tag returns the payload tag of the command.
func (c Command) tag() string {
	switch c {
	case CmdList:
		return "list"
	case CmdGet:
		return "get"
	default:
		return ""
	}
}

// Valid data port range.
const (
	MinDataPort = 1025
	MaxDataPort = 65535
)

// acceptToken is the response sent when a request is accepted.
// The NUL is part of the token for compatibility with C servers.
const acceptToken = "OK\x00"

// Control message trailers which are not part of the content.
const messageTrailer = "\x00\r\n\t "

// Request describes a single transfer.
type Request struct {
	Command  Command
	Filename string // Set iff Command is CmdGet
	DataPort int

	// Control connection target.
	Host string
	Port int
}

// Addr returns the control connection address.
func (r Request) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// Validate checks that the request can be sent.
func (r Request) Validate() error {
	if r.Host == "" {
		return errors.New("empty host")
	}
	if r.Port < 1 || r.Port > 65535 {
		return fmt.Errorf("invalid port %d", r.Port)
	}
	return r.validateCommand()
}

// validateCommand checks the fields that are sent on the wire.
func (r Request) validateCommand() error {
	switch r.Command {
	case CmdList:
		if r.Filename != "" {
			return errors.New("LIST request with filename")
		}
	case CmdGet:
		if r.Filename == "" {
			return errors.New("GET request without filename")
		}
		if strings.IndexFunc(r.Filename, unicode.IsSpace) >= 0 {
			return fmt.Errorf("filename %q contains whitespace", r.Filename)
		}
	default:
		return fmt.Errorf("invalid command %v", r.Command)
	}
	if r.DataPort < MinDataPort || r.DataPort > MaxDataPort {
		return fmt.Errorf("data port %d out of range %d-%d", r.DataPort, MinDataPort, MaxDataPort)
	}
	return nil
}

// EncodeRequest creates the request line sent on the control connection.
func EncodeRequest(r Request) (string, error) {
	if err := r.validateCommand(); err != nil {
		return "", err
	}
	if r.Command == CmdGet {
		return fmt.Sprintf("GET %s %d", r.Filename, r.DataPort), nil
	}
	return fmt.Sprintf("LIST %d", r.DataPort), nil
}

// DecodeRequest parses a request line. The returned request has no Host/Port.
// The short forms "-l" and "-g" are accepted as well.
func DecodeRequest(line string) (Request, error) {
	var r Request
	fields := strings.Fields(strings.TrimRight(line, messageTrailer))
	if len(fields) == 0 {
		return r, malformed("empty request")
	}
	switch fields[0] {
	case "LIST", "-l":
		if len(fields) != 2 {
			return r, malformed("LIST takes one argument")
		}
		r.Command = CmdList
	case "GET", "-g":
		if len(fields) != 3 {
			return r, malformed("GET takes two arguments")
		}
		r.Command = CmdGet
		r.Filename = fields[1]
	default:
		return r, malformed("unknown command %q", fields[0])
	}
	port, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return r, malformed("invalid data port %q", fields[len(fields)-1])
	}
	r.DataPort = port
	if err := r.validateCommand(); err != nil {
		return r, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return r, nil
}

// Response is the server's decision on a request.
type Response struct {
	Accepted bool
	Message  string // Rejection reason
}

func (r Response) encode() []byte {
	if r.Accepted {
		return []byte(acceptToken)
	}
	return []byte(r.Message)
}

// DecodeResponse decodes a control connection response.
func DecodeResponse(raw []byte) (Response, error) {
	msg := strings.TrimRight(string(raw), messageTrailer)
	switch msg {
	case "":
		return Response{}, malformed("empty response")
	case strings.TrimRight(acceptToken, messageTrailer):
		return Response{Accepted: true}, nil
	default:
		return Response{Message: msg}, nil
	}
}

// Payload is the content sent on the data connection.
type Payload struct {
	Command Command  // Decoded from the tag line
	Entries []string // Listing, in server order
	Content []byte   // File content
}

// EncodePayload creates the data connection stream for p.
func EncodePayload(p *Payload) []byte {
	var buf bytes.Buffer
	buf.WriteString(p.Command.tag())
	buf.WriteByte('\n')
	switch p.Command {
	case CmdList:
		buf.WriteString(strings.Join(p.Entries, "\n"))
	case CmdGet:
		buf.Write(p.Content)
	}
	return buf.Bytes()
}

// DecodePayload decodes a complete data connection stream.
func DecodePayload(raw []byte) (*Payload, error) {
	if len(raw) == 0 {
		return nil, malformed("empty payload")
	}
	tag, body, _ := bytes.Cut(raw, []byte{'\n'})
	switch string(tag) {
	case CmdList.tag():
		p := &Payload{Command: CmdList}
		if len(body) > 0 {
			p.Entries = strings.Split(string(body), "\n")
		}
		return p, nil
	case CmdGet.tag():
		// The body is kept as sent. Nothing is appended after the last line.
		content := make([]byte, len(body))
		copy(content, body)
		return &Payload{Command: CmdGet, Content: content}, nil
	default:
		return nil, malformed("unknown payload tag %q", tag)
	}
}

// readMessage reads one control message. Control messages are not framed, so it
// blocks until the first bytes arrive and then continues reading until the message
// is NUL or newline terminated, the peer closes, limit is reached, or no more data
// arrives within settle.
func readMessage(c net.Conn, deadline time.Time, limit int, settle time.Duration) ([]byte, error) {
	defer c.SetReadDeadline(time.Time{})
	if err := c.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	var (
		buf      = make([]byte, limit)
		n        int
		settling bool
	)
	for n < limit {
		nn, err := c.Read(buf[n:])
		n += nn
		if n > 0 && (buf[n-1] == 0 || buf[n-1] == '\n') {
			break
		}
		switch {
		case errors.Is(err, io.EOF):
			return buf[:n], nil
		case settling && errors.Is(err, os.ErrDeadlineExceeded):
			return buf[:n], nil
		case err != nil:
			return buf[:n], err
		}
		if n > 0 && !settling {
			settling = true
			settleDeadline := time.Now().Add(settle)
			if !deadline.IsZero() && deadline.Before(settleDeadline) {
				settleDeadline = deadline
			}
			c.SetReadDeadline(settleDeadline)
		}
	}
	return buf[:n], nil
}
