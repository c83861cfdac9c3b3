package config

import "fmt"

// Validate checks the runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.DataDir == "" && cfg.Store.Backend == StoreBadger {
		return fmt.Errorf("datadir is required for the badger store")
	}
	switch cfg.Store.Backend {
	case StoreBadger, StoreMemory:
	default:
		return fmt.Errorf("store.backend must be %q or %q", StoreBadger, StoreMemory)
	}
	if cfg.Ledger.MaxBatch <= 0 {
		return fmt.Errorf("ledger.maxbatch must be positive")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error")
	}
	return nil
}
