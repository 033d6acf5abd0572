package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadFile loads configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// Chain
	case "chain.rpc":
		cfg.Chain.RPCURL = value
	case "chain.id":
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Chain.ChainID = id
	case "chain.explorer":
		cfg.Chain.ExplorerBase = value
	case "chain.confirm_timeout":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Chain.ConfirmSeconds = n

	// Game
	case "game.stake", "stake":
		cfg.Game.StakeEther = value
	case "game.kill_threshold":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Game.KillThreshold = n

	// Treasury
	case "treasury.address":
		cfg.Treasury.AddressOverride = value
	case "treasury.payout":
		cfg.Treasury.PayoutEther = value

	// P2P
	case "p2p.listen":
		cfg.P2P.ListenAddr = value
	case "p2p.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.P2P.Port = port
	case "p2p.seeds":
		cfg.P2P.Seeds = parseStringList(value)

	// Wallet
	case "wallet.file":
		cfg.Wallet.FilePath = value

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	def := Default(network)
	content := `# Arena Configuration
#
# Room terms (stake, kill threshold, treasury address) must match between
# every peer of a room. Node settings are free to vary.

# Network: testnet or local
network = ` + string(network) + `

# Data directory (default: ~/.arena)
# datadir = ~/.arena

# ============================================================================
# Chain
# ============================================================================

chain.rpc = ` + def.Chain.RPCURL + `
chain.id = ` + strconv.FormatInt(def.Chain.ChainID, 10) + `
chain.explorer = ` + def.Chain.ExplorerBase + `

# Seconds to wait for a transfer to confirm
chain.confirm_timeout = ` + strconv.Itoa(def.Chain.ConfirmSeconds) + `

# ============================================================================
# Room terms
# ============================================================================

# Default stake posted when entering a room
game.stake = ` + def.Game.StakeEther + `

# Kill count that ends the game
game.kill_threshold = ` + strconv.Itoa(def.Game.KillThreshold) + `

# ============================================================================
# Treasury
# ============================================================================

# The custodial signing key comes from the ` + TreasuryKeyEnv + ` environment
# variable, never from this file.
#
# Receive stakes at a different address than the payout key controls:
# treasury.address = 0x...

# Fixed amount paid to the winner
treasury.payout = ` + def.Treasury.PayoutEther + `

# ============================================================================
# P2P
# ============================================================================

p2p.listen = ` + def.P2P.ListenAddr + `
p2p.port = ` + strconv.Itoa(def.P2P.Port) + `

# Seed peers (comma-separated multiaddrs). Usually empty: room peers find
# each other over mDNS on the local network.
# p2p.seeds =

# ============================================================================
# Wallet
# ============================================================================

# Encrypted player wallet file (default: <datadir>/<network>/wallet/player.wallet)
# wallet.file =

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
