package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrHelp is returned by Load when --help was requested.
var ErrHelp = errors.New("help requested")

// Version is the version string reported by --version.
const Version = "0.1.0"

// Flags holds parsed global command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string

	// Store / ledger
	Store    string
	MaxBatch int
	Metrics  bool

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args: the subcommand and its own flags.
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetMetrics bool
	SetLogJSON bool
}

// ParseFlags parses global flags from args (without the program name).
// Parsing stops at the first non-flag argument, which starts the subcommand.
func ParseFlags(args []string, output io.Writer) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("scrooge", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")

	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	fs.StringVar(&f.Store, "store", "", "UTXO store backend (badger or memory)")
	fs.IntVar(&f.MaxBatch, "max-batch", 0, "Maximum candidates per epoch")
	fs.BoolVar(&f.Metrics, "metrics", true, "Record prometheus metrics")

	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() { PrintUsage(output) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, ErrHelp
		}
		return nil, err
	}

	f.SetMetrics = isFlagSet(fs, "metrics")
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()
	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	if f.Store != "" {
		cfg.Store.Backend = StoreBackend(strings.ToLower(f.Store))
	}
	if f.MaxBatch != 0 {
		cfg.Ledger.MaxBatch = f.MaxBatch
	}
	if f.SetMetrics {
		cfg.Ledger.Metrics = f.Metrics
	}

	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// PrintUsage writes the global help text.
func PrintUsage(w io.Writer) {
	usage := `Scrooge Ledger - UTXO batch settlement

Usage:
  scrooge [global options] <command> [command options]

Commands:
  init      Seed the UTXO pool from a genesis allocation file
  apply     Settle a batch of candidate transactions
  check     Report, without applying, why each candidate would be accepted or rejected
  show      Print the current UTXO pool and its commitment
  keygen    Create a new owner key in the keystore
  sign      Sign every input of a transaction file with a keystore key

Global Options:
  --help, -h      Show this help message
  --version       Show version information
  --network       Network type: mainnet (default) or testnet
  --datadir       Data directory (default: ~/.scrooge)
  --config, -c    Config file path (default: <datadir>/scrooge.conf)
  --store         UTXO store backend: badger (default) or memory
  --max-batch     Maximum candidates per epoch (default: 10000)
  --metrics       Record prometheus metrics (default: true)
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout only)
  --log-json      Output logs as JSON

Examples:
  scrooge init --genesis genesis.json
  scrooge apply --batch epoch1.json --out accepted.json
  scrooge --network=testnet show
`
	fmt.Fprint(w, usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	if flags.Help {
		PrintUsage(os.Stdout)
		return nil, flags, ErrHelp
	}

	network := Mainnet
	if strings.ToLower(flags.Network) == string(Testnet) {
		network = Testnet
	}

	cfg := Default(network)
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	// Flags have the highest precedence.
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.ChainDataDir(),
		cfg.UTXODir(),
		cfg.KeystoreDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
