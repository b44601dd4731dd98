package fileserver

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// URLScheme is the scheme of transfer reference URLs.
const URLScheme = "ftxfer"

// TransferRef is a reference to a file, or to the listing
// when File is empty, on a remote server.
type TransferRef struct {
	Host string
	Port int
	File string
}

// ParseURL parses a transfer reference URL, e.g. ftxfer://example.org:3000/notes.txt
func ParseURL(text string) (ref TransferRef, err error) {
	u, err := url.Parse(text)
	if err != nil {
		return ref, errors.New("invalid URL")
	}
	if u.Scheme != URLScheme {
		return ref, errors.New("missing/wrong URL scheme")
	}
	if u.Hostname() == "" {
		return ref, errors.New("missing host")
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port < 1 || port > 65535 {
		return ref, errors.New("missing/invalid port")
	}
	file := strings.TrimPrefix(u.Path, "/")
	if strings.Contains(file, "/") {
		return ref, errors.New("file path must not contain directories")
	}
	return TransferRef{Host: u.Hostname(), Port: port, File: file}, nil
}

// String encodes the transfer reference as a URL.
func (ref *TransferRef) String() string {
	u := url.URL{
		Scheme: URLScheme,
		Host:   net.JoinHostPort(ref.Host, strconv.Itoa(ref.Port)),
		Path:   "/" + ref.File,
	}
	return u.String()
}

// Request creates the request for ref.
func (ref *TransferRef) Request(dataPort int) Request {
	req := Request{
		Command:  CmdList,
		Filename: ref.File,
		DataPort: dataPort,
		Host:     ref.Host,
		Port:     ref.Port,
	}
	if ref.File != "" {
		req.Command = CmdGet
	}
	return req
}
