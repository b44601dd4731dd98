package fileserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"
	"golang.org/x/sync/errgroup"
)

func testClientConfig(t *testing.T) Config {
	return Config{
		DataHost:        "127.0.0.1",
		DownloadDir:     t.TempDir(),
		DialTimeout:     2 * time.Second,
		ResponseTimeout: 2 * time.Second,
		AcceptTimeout:   2 * time.Second,
		IdleTimeout:     2 * time.Second,
		ResponseSettle:  50 * time.Millisecond,
	}
}

// freePort returns a TCP port that is currently unused.
func freePort(t *testing.T) int {
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// startFakeServer accepts one control connection and calls handle
// with the request line.
func startFakeServer(t *testing.T, handle func(ctrl net.Conn, line string) error) (port int, g *errgroup.Group) {
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	g = new(errgroup.Group)
	g.Go(func() error {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		defer conn.Close()
		raw, err := readMessage(conn, time.Now().Add(5*time.Second), 1000, 50*time.Millisecond)
		if err != nil {
			return err
		}
		return handle(conn, string(raw))
	})
	return ln.Addr().(*net.TCPAddr).Port, g
}

// sendData connects to the client's data port and writes payload.
func sendData(port int, payload string) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	var (
		conn net.Conn
		err  error
	)
	for i := 0; i < 100; i++ {
		if conn, err = net.Dial("tcp", addr); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write([]byte(payload))
	return err
}

func acceptAndSend(payload string) func(net.Conn, string) error {
	return func(ctrl net.Conn, line string) error {
		req, err := DecodeRequest(line)
		if err != nil {
			return err
		}
		if _, err := ctrl.Write([]byte("OK\x00")); err != nil {
			return err
		}
		return sendData(req.DataPort, payload)
	}
}

func TestClientGet(t *testing.T) {
	var (
		cfg      = testClientConfig(t)
		dataPort = freePort(t)
		gotLine  string
	)
	port, g := startFakeServer(t, func(ctrl net.Conn, line string) error {
		gotLine = line
		return acceptAndSend("get\nline one\nline two")(ctrl, line)
	})

	client := NewClient(cfg)
	req := Request{Command: CmdGet, Filename: "notes.txt", DataPort: dataPort, Host: "127.0.0.1", Port: port}
	res, err := client.Request(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, g.Wait())

	assert.Equal(t, fmt.Sprintf("GET notes.txt %d", dataPort), gotLine)
	require.NotNil(t, res.Saved)
	assert.Equal(t, "notes.txt", res.Saved.Name)
	content, err := os.ReadFile(filepath.Join(cfg.DownloadDir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", string(content))
}

func TestClientGetExistingFile(t *testing.T) {
	cfg := testClientConfig(t)
	existing := filepath.Join(cfg.DownloadDir, "report.txt")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0644))

	port, g := startFakeServer(t, acceptAndSend("get\nnew"))
	client := NewClient(cfg)
	req := Request{Command: CmdGet, Filename: "report.txt", DataPort: freePort(t), Host: "127.0.0.1", Port: port}
	res, err := client.Request(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, g.Wait())

	assert.Equal(t, "report_1.txt", res.Saved.Name)
	old, _ := os.ReadFile(existing)
	assert.Equal(t, "old", string(old), "existing file was modified")
}

func TestClientList(t *testing.T) {
	port, g := startFakeServer(t, acceptAndSend("list\nbanana\nApple\ncherry"))
	client := NewClient(testClientConfig(t))
	req := Request{Command: CmdList, DataPort: freePort(t), Host: "127.0.0.1", Port: port}
	res, err := client.Request(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, g.Wait())

	assert.Equal(t, []string{"Apple", "banana", "cherry"}, res.Listing)
	assert.Nil(t, res.Saved)
}

// This test checks that a rejected request never opens the data listener.
func TestClientRejected(t *testing.T) {
	port, g := startFakeServer(t, func(ctrl net.Conn, line string) error {
		_, err := ctrl.Write([]byte("no such file"))
		return err
	})

	client := NewClient(testClientConfig(t))
	client.listen = func(context.Context, string, int, *Config) (*DataListener, error) {
		t.Error("data listener opened after rejection")
		return nil, errors.New("unexpected listen")
	}
	req := Request{Command: CmdGet, Filename: "missing", DataPort: freePort(t), Host: "127.0.0.1", Port: port}
	_, err := client.Request(context.Background(), req)
	require.NoError(t, g.Wait())

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "no such file", rejected.Message)
	assert.Equal(t, "rejected", Category(err))
}

// This test checks that an empty data stream is an error.
func TestClientEmptyPayload(t *testing.T) {
	port, g := startFakeServer(t, acceptAndSend(""))
	client := NewClient(testClientConfig(t))
	req := Request{Command: CmdList, DataPort: freePort(t), Host: "127.0.0.1", Port: port}
	_, err := client.Request(context.Background(), req)
	require.NoError(t, g.Wait())

	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, "protocol error", Category(err))
}

func TestClientPayloadMismatch(t *testing.T) {
	cfg := testClientConfig(t)
	port, g := startFakeServer(t, acceptAndSend("list\nnotes.txt"))
	client := NewClient(cfg)
	req := Request{Command: CmdGet, Filename: "notes.txt", DataPort: freePort(t), Host: "127.0.0.1", Port: port}
	_, err := client.Request(context.Background(), req)
	require.NoError(t, g.Wait())

	assert.ErrorIs(t, err, ErrMalformed)
	entries, _ := os.ReadDir(cfg.DownloadDir)
	assert.Empty(t, entries, "file saved for mismatched payload")
}

func TestClientConnectError(t *testing.T) {
	client := NewClient(testClientConfig(t))
	req := Request{Command: CmdList, DataPort: freePort(t), Host: "127.0.0.1", Port: freePort(t)}
	_, err := client.Request(context.Background(), req)

	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "connect error", Category(err))
}

func TestClientBindError(t *testing.T) {
	busy, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	defer busy.Close()
	dataPort := busy.Addr().(*net.TCPAddr).Port

	port, g := startFakeServer(t, func(ctrl net.Conn, line string) error {
		_, err := ctrl.Write([]byte("OK\x00"))
		return err
	})
	client := NewClient(testClientConfig(t))
	req := Request{Command: CmdList, DataPort: dataPort, Host: "127.0.0.1", Port: port}
	_, err = client.Request(context.Background(), req)
	require.NoError(t, g.Wait())

	var bindErr *BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, dataPort, bindErr.Port)
}

// This test checks that waiting for the data connection can be canceled.
func TestClientCancelWaitingForData(t *testing.T) {
	port, g := startFakeServer(t, func(ctrl net.Conn, line string) error {
		_, err := ctrl.Write([]byte("OK\x00"))
		return err
	})
	cfg := testClientConfig(t)
	cfg.AcceptTimeout = time.Minute
	client := NewClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	req := Request{Command: CmdList, DataPort: freePort(t), Host: "127.0.0.1", Port: port}
	start := time.Now()
	_, err := client.Request(ctx, req)
	require.NoError(t, g.Wait())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "timeout", Category(err))
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestClientInvalidRequest(t *testing.T) {
	client := NewClient(testClientConfig(t))
	_, err := client.Request(context.Background(), Request{Command: CmdGet, DataPort: 9000, Host: "127.0.0.1", Port: 1})
	assert.Error(t, err)
	_, err = client.Request(context.Background(), Request{Command: CmdList, DataPort: 80, Host: "127.0.0.1", Port: 1})
	assert.Error(t, err)
}
