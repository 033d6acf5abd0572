package config

import (
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethwar/arena/pkg/types"
)

var roomCodeRe = regexp.MustCompile(`^[0-9]{6}$`)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Testnet && cfg.Network != Local {
		return fmt.Errorf("network must be %q or %q", Testnet, Local)
	}
	if cfg.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc is required")
	}
	if cfg.Chain.ChainID <= 0 {
		return fmt.Errorf("chain.id must be positive")
	}
	if cfg.Chain.ConfirmSeconds < 0 {
		return fmt.Errorf("chain.confirm_timeout must not be negative")
	}

	stake, err := types.ParseEther(cfg.Game.StakeEther)
	if err != nil {
		return fmt.Errorf("game.stake: %w", err)
	}
	if stake.IsZero() {
		return fmt.Errorf("game.stake must be positive")
	}
	if cfg.Game.KillThreshold <= 0 {
		return fmt.Errorf("game.kill_threshold must be positive")
	}

	if cfg.Treasury.AddressOverride != "" && !common.IsHexAddress(cfg.Treasury.AddressOverride) {
		return fmt.Errorf("treasury.address %q is not a valid address", cfg.Treasury.AddressOverride)
	}
	payout, err := types.ParseEther(cfg.Treasury.PayoutEther)
	if err != nil {
		return fmt.Errorf("treasury.payout: %w", err)
	}
	if payout.IsZero() {
		return fmt.Errorf("treasury.payout must be positive")
	}

	if cfg.P2P.Port < 0 || cfg.P2P.Port > 65535 {
		return fmt.Errorf("p2p.port must be in range [0, 65535]")
	}

	return nil
}

// ValidateRoomCode checks a room code's shape: exactly six digits.
func ValidateRoomCode(code string) error {
	if !roomCodeRe.MatchString(code) {
		return fmt.Errorf("room code %q must be exactly 6 digits", code)
	}
	return nil
}
