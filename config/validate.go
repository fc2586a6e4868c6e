package config

import (
	"fmt"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.Net.Port < 0 || cfg.Net.Port > 65535 {
		return fmt.Errorf("network.port must be in range [0, 65535]")
	}
	if cfg.Net.MaxPeers < 0 {
		return fmt.Errorf("network.max_peers must be >= 0")
	}
	if cfg.Mempool.MaxMB <= 0 {
		return fmt.Errorf("mempool.max_mb must be > 0")
	}
	return nil
}
