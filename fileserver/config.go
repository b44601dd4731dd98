package fileserver

import (
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
)

// Config is the configuration of Client and Server.
// Zero values are replaced by defaults.
type Config struct {
	DialTimeout     time.Duration // Connection setup timeout (control dial, server's data dial)
	ResponseTimeout time.Duration // How long to wait for the server's accept/reject response
	AcceptTimeout   time.Duration // How long to wait for the server to open the data connection
	IdleTimeout     time.Duration // Maximum silence on a connection while reading

	// ResponseSettle is how long to keep reading an unterminated control message
	// after its first bytes arrived. The control protocol has no framing.
	ResponseSettle time.Duration
	MaxMessageSize int // Control message size limit

	DataHost    string // Host the client listens on for the data connection, defaults to all interfaces
	DownloadDir string // Directory received files are saved to, defaults to "."

	Handler ServerFunc // Server only

	Progress         ProgressFunc // Optional, called periodically while receiving a payload
	ProgressInterval time.Duration

	Clock mclock.Clock
}

const (
	defaultDialTimeout      = 10 * time.Second
	defaultResponseTimeout  = 30 * time.Second
	defaultAcceptTimeout    = 30 * time.Second
	defaultIdleTimeout      = 30 * time.Second
	defaultResponseSettle   = 100 * time.Millisecond
	defaultMaxMessageSize   = 10000
	defaultProgressInterval = 1 * time.Second
)

func (cfg Config) withDefaults() Config {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.ResponseTimeout == 0 {
		cfg.ResponseTimeout = defaultResponseTimeout
	}
	if cfg.AcceptTimeout == 0 {
		cfg.AcceptTimeout = defaultAcceptTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.ResponseSettle == 0 {
		cfg.ResponseSettle = defaultResponseSettle
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "."
	}
	if cfg.ProgressInterval == 0 {
		cfg.ProgressInterval = defaultProgressInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = mclock.System{}
	}
	return cfg
}
