// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: Defined in genesis, immutable, must match across all nodes
//   - Node settings: Runtime configuration, can vary per node
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

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration.
// These settings can vary between nodes without breaking consensus.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Network transport (peer HTTP server, peer set, sync/gossip)
	Net NetworkConfig

	// Node identity (signing + VRF keypair)
	Identity IdentityConfig

	// Mempool
	Mempool MempoolConfig

	// Logging
	Log LogConfig

	// Maintenance (not persisted in config file)
	RebuildIndexes bool
}

// NetworkConfig holds the node's HTTP-style peer transport settings
// (spec.md §4.6/§4.7).
type NetworkConfig struct {
	Enabled bool   `conf:"network.enabled"`
	Addr    string `conf:"network.addr"`
	Port    int    `conf:"network.port"`

	// SelfURL is this node's own externally-reachable URL, advertised to
	// peers and used to reject a /pair_up attempt from itself.
	SelfURL string `conf:"network.self_url"`

	// TrustedPeersFile lists peer URLs, one per line, that are never
	// evicted by peer cycling (spec.md §4.6).
	TrustedPeersFile string `conf:"network.trusted_peers_file"`

	MaxPeers int `conf:"network.max_peers"`
}

// IdentityConfig locates the node's encrypted key file.
type IdentityConfig struct {
	KeyFile string `conf:"identity.keyfile"`
}

// MempoolConfig holds mempool settings.
type MempoolConfig struct {
	// Persist (off by default) makes start-up create MempoolDir. The pool
	// itself is held in memory only and is never written there, so its
	// contents do not survive a restart.
	Persist bool `conf:"mempool.persist"`
	MaxMB   int  `conf:"mempool.max_mb"`
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
//	Linux:   ~/.klingnet
//	macOS:   ~/Library/Application Support/Klingnet
//	Windows: %APPDATA%\Klingnet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Klingnet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Klingnet")
		}
		return filepath.Join(home, "AppData", "Roaming", "Klingnet")
	default:
		return filepath.Join(home, ".klingnet")
	}
}

// ChainDataDir returns the chain-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// BlocksDir returns the blocks storage directory.
func (c *Config) BlocksDir() string {
	return filepath.Join(c.ChainDataDir(), "blocks")
}

// UTXODir returns the UTXO database directory.
func (c *Config) UTXODir() string {
	return filepath.Join(c.ChainDataDir(), "utxo")
}

// PeersDir returns the peer-set persistence directory.
func (c *Config) PeersDir() string {
	return filepath.Join(c.ChainDataDir(), "peers")
}

// MempoolDir returns the mempool persistence directory (used only when
// Mempool.Persist is set).
func (c *Config) MempoolDir() string {
	return filepath.Join(c.ChainDataDir(), "mempool")
}

// KeystoreDir returns the directory holding the node's encrypted identity
// key file.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.ChainDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingnet.conf")
}
