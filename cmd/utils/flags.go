// Package utils contains functionality shared by the commands.
package utils

import (
	"fmt"
	"io"
	"os"
	"time"

	ethlog "github.com/ethereum/go-ethereum/log"
	"github.com/fjl/ftxfer/fileserver"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
)

var (
	VerbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "log level (0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace)",
		Value: 3,
	}
	DialTimeoutFlag = &cli.DurationFlag{
		Name:  "dial-timeout",
		Usage: "connection setup timeout",
		Value: 10 * time.Second,
	}
	IdleTimeoutFlag = &cli.DurationFlag{
		Name:  "idle-timeout",
		Usage: "maximum time without progress while reading",
		Value: 30 * time.Second,
	}
)

// SetupLogging configures the root logger according to the verbosity flag.
func SetupLogging(ctx *cli.Context) error {
	lvl := ctx.Int(VerbosityFlag.Name)
	if lvl < 0 || lvl > int(ethlog.LvlTrace) {
		return fmt.Errorf("invalid verbosity %d", lvl)
	}
	var (
		usecolor = (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
		output   = io.Writer(os.Stderr)
	)
	if usecolor {
		output = colorable.NewColorableStderr()
	}
	h := ethlog.LvlFilterHandler(ethlog.Lvl(lvl), ethlog.StreamHandler(output, ethlog.TerminalFormat(usecolor)))
	ethlog.Root().SetHandler(h)
	return nil
}

// Fatal reports err as the result of a command.
func Fatal(err error) error {
	return cli.Exit(fmt.Sprintf("%s: %v", fileserver.Category(err), err), 1)
}
