// Package referee holds the host-side win authority. Every peer runs a
// Detector, but only the one currently holding the host capability scans;
// other peers learn the outcome from the replicated end-of-game marker.
package referee

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethwar/arena/internal/ledger"
	"github.com/ethwar/arena/internal/log"
	"github.com/ethwar/arena/internal/replica"
	"github.com/ethwar/arena/pkg/types"
)

// Default detector settings.
const (
	DefaultKillThreshold = 5
	DefaultScanInterval  = 500 * time.Millisecond
)

// ComputeWinner picks the winning player from a roster snapshot. Players
// without a wallet never staked and are not eligible. Ranking is kills
// descending, then deaths ascending, then the lexicographically smaller
// wallet address, so every host resolves the same snapshot to the same
// winner regardless of roster iteration order.
func ComputeWinner(players []types.PlayerState) (types.PlayerState, bool) {
	eligible := make([]types.PlayerState, 0, len(players))
	for _, p := range players {
		if p.Wallet != (common.Address{}) {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return types.PlayerState{}, false
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Kills != b.Kills {
			return a.Kills > b.Kills
		}
		if a.Deaths != b.Deaths {
			return a.Deaths < b.Deaths
		}
		return bytes.Compare(a.Wallet[:], b.Wallet[:]) < 0
	})
	return eligible[0], true
}

// Config holds detector settings.
type Config struct {
	// KillThreshold ends the game when any player reaches it.
	// Zero means DefaultKillThreshold.
	KillThreshold int
	// ScanInterval is the roster polling cadence. Zero means DefaultScanInterval.
	ScanInterval time.Duration
}

// Detector watches the roster and declares the winner when a player crosses
// the kill threshold. First past the post: the first crossing observed ends
// the game, and later score changes are ignored.
type Detector struct {
	cfg    Config
	store  replica.Store
	ledger *ledger.Ledger
}

// NewDetector wires a detector over a room's state.
func NewDetector(cfg Config, store replica.Store, l *ledger.Ledger) *Detector {
	if cfg.KillThreshold <= 0 {
		cfg.KillThreshold = DefaultKillThreshold
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultScanInterval
	}
	return &Detector{cfg: cfg, store: store, ledger: l}
}

// Run scans the roster until the game ends or ctx is cancelled. Win detection
// is the host's job alone, but the host capability can move while a session
// runs, so it is re-checked on every tick rather than once at entry: a peer
// that is not hosting idles, and starts scanning the moment it becomes host.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.ScanInterval)
	defer ticker.Stop()

	log.Game.Info().Int("threshold", d.cfg.KillThreshold).Msg("win detection ready")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !d.store.AmIHost() {
				continue
			}
			if d.Scan() {
				return
			}
		}
	}
}

// Scan checks the roster once. Returns true when the game is over, whether
// this scan ended it or a previous declaration already had.
func (d *Detector) Scan() bool {
	if _, over := d.ledger.GameEnded(); over {
		return true
	}

	players := d.store.Players()
	crossed := false
	for _, p := range players {
		if p.Kills >= d.cfg.KillThreshold {
			crossed = true
			break
		}
	}
	if !crossed {
		return false
	}

	winner, ok := ComputeWinner(players)
	if !ok {
		// Threshold crossed by a player that never staked. Nothing to pay.
		log.Game.Warn().Msg("threshold crossed but no eligible winner")
		return false
	}

	var name string
	if winner.Profile != nil {
		name = winner.Profile.DisplayName
	}
	if err := d.ledger.SetGameEnded(ledger.GameEnd{
		Winner:  winner.Wallet,
		Name:    name,
		EndedAt: time.Now().UnixMilli(),
	}); err != nil {
		log.Game.Error().Err(err).Msg("end-of-game declaration failed")
		return false
	}
	log.Game.Info().
		Stringer("winner", winner.Wallet).
		Int("kills", winner.Kills).
		Int("deaths", winner.Deaths).
		Msg("game over")
	return true
}
