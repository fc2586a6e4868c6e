package config

// DefaultMainnet returns the default node configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Net: NetworkConfig{
			Enabled:  true,
			Addr:     "0.0.0.0",
			Port:     7070,
			MaxPeers: 50,
		},
		Identity: IdentityConfig{
			KeyFile: "node.key",
		},
		Mempool: MempoolConfig{
			Persist: false,
			MaxMB:   300,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default node configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Net.Port = 7171
	return cfg
}

// Default returns the default node configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
