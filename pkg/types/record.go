package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// StakeRecord is one wallet's entry fee into the prize pool. Records are
// immutable once appended to the shared ledger; the ledger keeps at most one
// record per wallet for its whole lifetime.
type StakeRecord struct {
	Wallet    common.Address `json:"wallet"`
	Amount    Amount         `json:"amount"`
	Timestamp int64          `json:"timestamp"` // unix milliseconds
	TxRef     common.Hash    `json:"txRef"`
}

// PlayerProfile is the identity a player publishes after a successful stake.
// It is owned by the player's client, cached locally so a restart does not
// lose identity mid-session, and replicated through presence state.
type PlayerProfile struct {
	Wallet      common.Address `json:"wallet"`
	DisplayName string         `json:"name"`
	AvatarSeed  string         `json:"avatarSeed"`
	ColorTag    string         `json:"color"`
	StakeAmount Amount         `json:"stakeAmount"`
}

// AvatarURL builds the display-only avatar image URL for the profile.
func (p PlayerProfile) AvatarURL() string {
	return "https://api.dicebear.com/7.x/thumbs/svg?seed=" + p.AvatarSeed
}

// PlayerState is the per-peer snapshot published into the replicated roster:
// identity plus live score counters. Host marks the peer that runs win
// detection; it is a capability flag supplied by the room, not elected.
type PlayerState struct {
	PeerID  string         `json:"peerId"`
	Wallet  common.Address `json:"wallet"`
	Profile *PlayerProfile `json:"profile,omitempty"`
	Kills   int            `json:"kills"`
	Deaths  int            `json:"deaths"`
	Host    bool           `json:"host"`
}
