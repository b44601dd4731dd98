// Command ftserver serves the files of a directory to ftclient.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fjl/ftxfer/cmd/utils"
	"github.com/fjl/ftxfer/fileserver"
	"github.com/urfave/cli/v2"
)

var (
	configFlag = &cli.PathFlag{
		Name:  "config",
		Usage: "YAML configuration file",
	}
	dirFlag = &cli.PathFlag{
		Name:  "dir",
		Usage: "directory to serve",
		Value: ".",
	}
	hostFlag = &cli.StringFlag{
		Name:  "host",
		Usage: "listening address (default: all interfaces)",
	}
	responseTimeoutFlag = &cli.DurationFlag{
		Name:  "response-timeout",
		Usage: "time to wait for a client's request",
	}
)

var app = &cli.App{
	Name:      "ftserver",
	Usage:     "file transfer server",
	ArgsUsage: "<port>",
	Flags: []cli.Flag{
		configFlag,
		dirFlag,
		hostFlag,
		responseTimeoutFlag,
		utils.DialTimeoutFlag,
		utils.IdleTimeoutFlag,
		utils.VerbosityFlag,
	},
	Before: utils.SetupLogging,
	Action: runServer,
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return cli.Exit(err, 1)
	}

	ln, err := net.Listen("tcp", cfg.listenAddr())
	if err != nil {
		return utils.Fatal(&fileserver.BindError{Port: cfg.Port, Err: err})
	}
	srv := fileserver.NewServer(ln, cfg.fileserverConfig())
	defer srv.Close()
	log.Info("Server open", "addr", srv.Addr(), "dir", cfg.Dir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	log.Info("Shutting down", "signal", <-sig)
	return nil
}

// makeConfig merges the config file with command line flags.
func makeConfig(ctx *cli.Context) (serverConfig, error) {
	cfg := defaultServerConfig()
	if file := ctx.Path(configFlag.Name); file != "" {
		var err error
		if cfg, err = loadConfig(file); err != nil {
			return cfg, err
		}
	}

	switch ctx.NArg() {
	case 0:
	case 1:
		port, err := strconv.Atoi(ctx.Args().First())
		if err != nil {
			return cfg, fmt.Errorf("invalid port %q", ctx.Args().First())
		}
		cfg.Port = port
	default:
		return cfg, fmt.Errorf("too many arguments")
	}
	if ctx.IsSet(dirFlag.Name) {
		cfg.Dir = ctx.Path(dirFlag.Name)
	}
	if ctx.IsSet(hostFlag.Name) {
		cfg.Host = ctx.String(hostFlag.Name)
	}
	if ctx.IsSet(responseTimeoutFlag.Name) {
		cfg.ResponseTimeout = ctx.Duration(responseTimeoutFlag.Name)
	}
	if ctx.IsSet(utils.DialTimeoutFlag.Name) || cfg.DialTimeout == 0 {
		cfg.DialTimeout = ctx.Duration(utils.DialTimeoutFlag.Name)
	}
	if ctx.IsSet(utils.IdleTimeoutFlag.Name) || cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = ctx.Duration(utils.IdleTimeoutFlag.Name)
	}
	return cfg, cfg.validate()
}
