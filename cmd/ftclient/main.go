// Command ftclient fetches a directory listing or a file from ftserver.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/fjl/ftxfer/cmd/utils"
	"github.com/fjl/ftxfer/fileserver"
	"github.com/urfave/cli/v2"
)

var (
	dirFlag = &cli.StringFlag{
		Name:  "dir",
		Usage: "directory received files are saved to",
		Value: ".",
	}
	listenHostFlag = &cli.StringFlag{
		Name:  "listen-host",
		Usage: "address the data connection is accepted on (default: all interfaces)",
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "time to wait for the server's response and for the data connection",
		Value: 30 * time.Second,
	}

	listCommand = &cli.Command{
		Name:      "list",
		Usage:     "print the server's directory listing",
		ArgsUsage: "<host> <port> <dataport> | <url> <dataport>",
		Action:    runList,
	}
	getCommand = &cli.Command{
		Name:      "get",
		Usage:     "download a file",
		ArgsUsage: "<host> <port> <file> <dataport> | <url> <dataport>",
		Action:    runGet,
	}
)

var app = &cli.App{
	Name:  "ftclient",
	Usage: "file transfer client",
	Flags: []cli.Flag{
		dirFlag,
		listenHostFlag,
		timeoutFlag,
		utils.DialTimeoutFlag,
		utils.IdleTimeoutFlag,
		utils.VerbosityFlag,
	},
	Before:   utils.SetupLogging,
	Commands: []*cli.Command{listCommand, getCommand},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runList(ctx *cli.Context) error {
	req, err := parseRequest(ctx, fileserver.CmdList)
	if err != nil {
		return err
	}
	res, err := doRequest(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("Receiving directory structure from %s:%d\n", req.Host, req.DataPort)
	for _, entry := range res.Listing {
		fmt.Println(entry)
	}
	return nil
}

func runGet(ctx *cli.Context) error {
	req, err := parseRequest(ctx, fileserver.CmdGet)
	if err != nil {
		return err
	}
	res, err := doRequest(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("Receiving %q from %s:%d\n", req.Filename, req.Host, req.DataPort)
	fmt.Printf("File transfer complete, saved as %s\n", res.Saved.Name)
	return nil
}

func doRequest(ctx *cli.Context, req fileserver.Request) (*fileserver.Result, error) {
	timeout := ctx.Duration(timeoutFlag.Name)
	cfg := fileserver.Config{
		DialTimeout:     ctx.Duration(utils.DialTimeoutFlag.Name),
		IdleTimeout:     ctx.Duration(utils.IdleTimeoutFlag.Name),
		ResponseTimeout: timeout,
		AcceptTimeout:   timeout,
		DataHost:        ctx.String(listenHostFlag.Name),
		DownloadDir:     ctx.String(dirFlag.Name),
		Progress: func(bytes, speed int64) {
			log.Info("Receiving payload", "size", common.StorageSize(bytes), "speed", common.StorageSize(speed).String()+"/s")
		},
	}
	client := fileserver.NewClient(cfg)
	res, err := client.Request(ctx.Context, req)

	var rejected *fileserver.RejectedError
	switch {
	case errors.As(err, &rejected):
		return nil, cli.Exit(fmt.Sprintf("%s says\n%s", req.Addr(), rejected.Message), 1)
	case err != nil:
		return nil, utils.Fatal(err)
	}
	log.Debug("Transfer finished", "size", common.StorageSize(res.Size), "time", common.PrettyDuration(res.Duration))
	return res, nil
}

// parseRequest creates the request from command line arguments.
func parseRequest(ctx *cli.Context, cmd fileserver.Command) (req fileserver.Request, err error) {
	var (
		args = ctx.Args().Slice()
		ref  fileserver.TransferRef
	)
	switch {
	case len(args) == 2 && strings.HasPrefix(args[0], fileserver.URLScheme+"://"):
		ref, err = fileserver.ParseURL(args[0])
		if err != nil {
			return req, usageError(ctx, err.Error())
		}
		if cmd == fileserver.CmdGet && ref.File == "" {
			return req, usageError(ctx, "URL has no file name")
		}
		if cmd == fileserver.CmdList && ref.File != "" {
			return req, usageError(ctx, "URL of listing must not have a file name")
		}
	case cmd == fileserver.CmdList && len(args) == 3,
		cmd == fileserver.CmdGet && len(args) == 4:
		ref.Host = args[0]
		if ref.Port, err = parsePort(args[1], 1); err != nil {
			return req, usageError(ctx, err.Error())
		}
		if cmd == fileserver.CmdGet {
			ref.File = args[2]
		}
	default:
		return req, usageError(ctx, "wrong number of arguments")
	}

	dataPort, err := parsePort(args[len(args)-1], fileserver.MinDataPort)
	if err != nil {
		return req, usageError(ctx, "data "+err.Error())
	}
	req = ref.Request(dataPort)
	if err := req.Validate(); err != nil {
		return req, usageError(ctx, err.Error())
	}
	return req, nil
}

func parsePort(s string, min int) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < min || port > 65535 {
		return 0, fmt.Errorf("port %q is not a number between %d and 65535", s, min)
	}
	return port, nil
}

func usageError(ctx *cli.Context, msg string) error {
	cli.ShowCommandHelp(ctx, ctx.Command.Name)
	return cli.Exit("invalid input: "+msg, 1)
}
