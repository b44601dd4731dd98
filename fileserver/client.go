package fileserver

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fjl/ftxfer/filestore"
)

// transferState is the state of a transfer.
type transferState uint8

const (
	stateIdle transferState = iota
	stateRequestSent
	stateAwaitingResponse
	stateRejected
	stateAwaitingData
	stateReceiving
	stateDispatching
	stateDone
)

var stateNames = [...]string{
	stateIdle:             "idle",
	stateRequestSent:      "request-sent",
	stateAwaitingResponse: "awaiting-response",
	stateRejected:         "rejected",
	stateAwaitingData:     "awaiting-data",
	stateReceiving:        "receiving",
	stateDispatching:      "dispatching",
	stateDone:             "done",
}

func (s transferState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("transferState(%d)", uint8(s))
}

// Client performs transfers.
type Client struct {
	cfg *Config

	// for testing
	listen func(ctx context.Context, host string, port int, cfg *Config) (*DataListener, error)
}

// Result is the outcome of a successful transfer.
type Result struct {
	Listing  []string             // LIST: entries in display order
	Saved    *filestore.SavedFile // GET: the file that was written
	Size     int                  // payload bytes received
	Duration time.Duration
}

func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{cfg: &cfg, listen: ListenData}
}

// transfer tracks a single request.
type transfer struct {
	req   Request
	state transferState
	log   log.Logger
}

func (t *transfer) setState(s transferState) {
	t.log.Trace("Transfer state changed", "from", t.state, "to", s)
	t.state = s
}

// Request performs the transfer described by req. Listings are returned sorted,
// received files are saved to the download directory.
//
// If the server declines the request, the error is a *RejectedError and
// no data connection is attempted.
func (c *Client) Request(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	var (
		start = c.cfg.Clock.Now()
		t     = &transfer{req: req, state: stateIdle, log: log.New("addr", req.Addr(), "cmd", req.Command)}
	)

	ctrl, err := DialControl(ctx, req.Addr(), c.cfg)
	if err != nil {
		return nil, err
	}
	defer ctrl.Close()

	if err := ctrl.SendRequest(ctx, req); err != nil {
		return nil, err
	}
	t.setState(stateRequestSent)

	t.setState(stateAwaitingResponse)
	resp, err := ctrl.AwaitResponse(ctx)
	if err != nil {
		return nil, err
	}
	if !resp.Accepted {
		t.setState(stateRejected)
		return nil, &RejectedError{Message: resp.Message}
	}

	t.setState(stateAwaitingData)
	data, err := c.listen(ctx, c.cfg.DataHost, req.DataPort, c.cfg)
	if err != nil {
		return nil, err
	}
	defer data.Close()
	if _, err := data.AcceptOne(ctx); err != nil {
		return nil, err
	}

	t.setState(stateReceiving)
	raw, err := data.Drain(ctx)
	if err != nil {
		return nil, err
	}

	t.setState(stateDispatching)
	payload, err := DecodePayload(raw)
	if err != nil {
		return nil, err
	}
	result, err := c.dispatch(req, payload)
	if err != nil {
		return nil, err
	}
	result.Size = len(raw)

	data.Close()
	ctrl.Close()
	t.setState(stateDone)
	result.Duration = c.cfg.Clock.Now().Sub(start)
	t.log.Debug("Transfer complete", "bytes", result.Size, "time", result.Duration)
	return result, nil
}

func (c *Client) dispatch(req Request, p *Payload) (*Result, error) {
	if p.Command != req.Command {
		return nil, malformed("%v request answered with %q payload", req.Command, p.Command.tag())
	}
	switch p.Command {
	case CmdList:
		return &Result{Listing: SortListing(p.Entries)}, nil
	case CmdGet:
		saved, err := filestore.Save(c.cfg.DownloadDir, req.Filename, p.Content)
		if err != nil {
			return nil, &IOError{Op: "save file", Err: err}
		}
		return &Result{Saved: saved}, nil
	default:
		panic("unreachable")
	}
}
