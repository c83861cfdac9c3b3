// scrooge settles batches of UTXO transactions against a persistent pool.
//
// Usage:
//
//	scrooge [global options] <command> [command options]
//	scrooge --help
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Klingon-tech/scrooge-ledger/config"
	"github.com/Klingon-tech/scrooge-ledger/internal/log"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, config.ErrHelp) {
			return
		}
		fatal("%v", err)
	}
}

// run executes one command line and writes command output to stdout.
func run(args []string, stdout io.Writer) error {
	cfg, flags, err := config.Load(args)
	if err != nil {
		return err
	}
	if flags.Version {
		fmt.Fprintf(stdout, "scrooge %s\n", config.Version)
		return nil
	}

	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	if len(flags.Args) == 0 {
		config.PrintUsage(os.Stderr)
		return errors.New("no command given")
	}
	cmd, cmdArgs := flags.Args[0], flags.Args[1:]
	netLog := log.WithNetwork(string(cfg.Network))
	netLog.Debug().Str("command", cmd).Msg("Running command")

	switch cmd {
	case "init":
		return cmdInit(cfg, cmdArgs, stdout)
	case "apply":
		return cmdApply(cfg, cmdArgs, stdout)
	case "check":
		return cmdCheck(cfg, cmdArgs, stdout)
	case "show":
		return cmdShow(cfg, cmdArgs, stdout)
	case "keygen":
		return cmdKeygen(cfg, cmdArgs, stdout)
	case "sign":
		return cmdSign(cfg, cmdArgs, stdout)
	case "help":
		config.PrintUsage(stdout)
		return nil
	default:
		config.PrintUsage(os.Stderr)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
