// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Room terms: stake amount, kill threshold, treasury address. Every
//     peer in a room must agree on these.
//   - Node settings: endpoints, ports, paths, logging. Can vary per peer.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies the target chain environment.
type NetworkType string

const (
	// Testnet is the Somnia Shannon testnet, the default deployment target.
	Testnet NetworkType = "testnet"
	// Local is a developer chain (anvil, hardhat) on localhost.
	Local NetworkType = "local"
)

// TreasuryKeyEnv is the environment variable the custodial signing key is
// read from. The key never goes in the config file or on the command line.
const TreasuryKeyEnv = "ARENA_TREASURY_KEY"

// Config holds all runtime configuration for one peer.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Chain endpoint
	Chain ChainConfig

	// Room terms
	Game GameConfig

	// Treasury (custodial signer)
	Treasury TreasuryConfig

	// P2P room replication
	P2P P2PConfig

	// Player wallet
	Wallet WalletConfig

	// Logging
	Log LogConfig
}

// ChainConfig holds the JSON-RPC endpoint settings.
type ChainConfig struct {
	RPCURL         string `conf:"chain.rpc"`
	ChainID        int64  `conf:"chain.id"`
	ExplorerBase   string `conf:"chain.explorer"`
	ConfirmSeconds int    `conf:"chain.confirm_timeout"`
}

// GameConfig holds the room terms every peer must share. StakeEther is the
// default wager a peer posts when auto-staking; players may stake any
// positive amount.
type GameConfig struct {
	StakeEther    string `conf:"game.stake"`
	KillThreshold int    `conf:"game.kill_threshold"`
}

// TreasuryConfig holds custodial signer settings. The signing key itself
// comes from the ARENA_TREASURY_KEY environment variable.
type TreasuryConfig struct {
	// AddressOverride receives stakes instead of the key-derived address.
	AddressOverride string `conf:"treasury.address"`
	// PayoutEther is the fixed amount the winner collects.
	PayoutEther string `conf:"treasury.payout"`
}

// P2PConfig holds room replication settings.
type P2PConfig struct {
	ListenAddr string   `conf:"p2p.listen"`
	Port       int      `conf:"p2p.port"`
	Seeds      []string `conf:"p2p.seeds"`
}

// WalletConfig holds player wallet settings.
type WalletConfig struct {
	FilePath string `conf:"wallet.file"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.arena
//	macOS:   ~/Library/Application Support/Arena
//	Windows: %APPDATA%\Arena
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".arena"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Arena")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Arena")
		}
		return filepath.Join(home, "AppData", "Roaming", "Arena")
	default:
		return filepath.Join(home, ".arena")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// StateDir returns the local session state database directory.
func (c *Config) StateDir() string {
	return filepath.Join(c.NetworkDataDir(), "state")
}

// WalletFile returns the encrypted wallet file path.
func (c *Config) WalletFile() string {
	if c.Wallet.FilePath != "" {
		return c.Wallet.FilePath
	}
	return filepath.Join(c.NetworkDataDir(), "wallet", "player.wallet")
}

// P2PDir returns the directory holding the persistent peer identity.
func (c *Config) P2PDir() string {
	return filepath.Join(c.NetworkDataDir(), "p2p")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "arena.conf")
}

// TreasuryKeyFromEnv reads the custodial signing key, "" when unset.
func TreasuryKeyFromEnv() string {
	return os.Getenv(TreasuryKeyEnv)
}
