// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Ledger rules: structural limits every transaction file must respect (constants)
//   - CLI settings: runtime configuration for the scrooge command
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// StoreBackend selects where the UTXO pool is persisted between runs.
type StoreBackend string

const (
	StoreBadger StoreBackend = "badger"
	StoreMemory StoreBackend = "memory"
)

// Structural limits on a single transaction. Transactions beyond these are
// refused at decode time and never reach the ledger.
const (
	MaxTxInputs      = 2500
	MaxTxOutputs     = 2500
	MaxOwnerSize     = 256
	MaxSignatureSize = 1024
)

// DefaultMaxBatch is the default number of candidates one epoch may hold.
const DefaultMaxBatch = 10_000

// =============================================================================
// CLI Configuration (runtime settings)
// =============================================================================

// Config holds the runtime configuration of the scrooge command.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	Store  StoreConfig
	Ledger LedgerConfig
	Log    LogConfig
}

// StoreConfig holds UTXO persistence settings.
type StoreConfig struct {
	Backend StoreBackend `conf:"store.backend"`
}

// LedgerConfig holds batch processing settings.
type LedgerConfig struct {
	MaxBatch int  `conf:"ledger.maxbatch"` // Max candidates per epoch
	Metrics  bool `conf:"ledger.metrics"`  // Record prometheus metrics
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.scrooge
//	macOS:   ~/Library/Application Support/Scrooge
//	Windows: %APPDATA%\Scrooge
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".scrooge"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Scrooge")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Scrooge")
		}
		return filepath.Join(home, "AppData", "Roaming", "Scrooge")
	default:
		return filepath.Join(home, ".scrooge")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// UTXODir returns the UTXO database directory.
func (c *Config) UTXODir() string {
	return filepath.Join(c.ChainDataDir(), "utxo")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.ChainDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "scrooge.conf")
}
