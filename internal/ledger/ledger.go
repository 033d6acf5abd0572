// Package ledger gives the replicated stake history a typed, validated
// surface. The append-only record list is the authoritative source for the
// pool total; the running-total scalar is an advisory cache that gets
// corrected whenever it drifts from the records.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethwar/arena/internal/log"
	"github.com/ethwar/arena/internal/replica"
	"github.com/ethwar/arena/pkg/types"
)

// ErrDuplicateStake means this wallet already has a stake record in the room.
var ErrDuplicateStake = errors.New("wallet already staked in this room")

// GameEnd is the end-of-game marker written by the host.
type GameEnd struct {
	Winner  common.Address `json:"winner"`
	Name    string         `json:"name"`
	EndedAt int64          `json:"endedAt"` // unix millis
}

// RedeemClaim marks a completed payout. Advisory only; the treasury transfer
// itself is the settlement, this just tells other peers it happened.
type RedeemClaim struct {
	Wallet    common.Address `json:"wallet"`
	TxRef     common.Hash    `json:"txRef"`
	ClaimedAt int64          `json:"claimedAt"` // unix millis
}

// Ledger reads and writes stake records through a replica store.
type Ledger struct {
	store replica.Store
}

// New wraps a replica store.
func New(store replica.Store) *Ledger {
	return &Ledger{store: store}
}

// AppendRecord adds a stake record to the shared history. One record per
// wallet; a second stake by the same wallet fails with ErrDuplicateStake.
func (l *Ledger) AppendRecord(rec types.StakeRecord) error {
	for _, existing := range l.ReadAll() {
		if existing.Wallet == rec.Wallet {
			return fmt.Errorf("%w: %s", ErrDuplicateStake, rec.Wallet)
		}
	}

	data, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("encode stake record: %w", err)
	}
	if err := l.store.Append(replica.SlotStakingHistory, data); err != nil {
		return fmt.Errorf("append stake record: %w", err)
	}

	log.Ledger.Info().
		Stringer("wallet", rec.Wallet).
		Str("amount", rec.Amount.Ether()).
		Stringer("tx", rec.TxRef).
		Msg("stake recorded")

	// Refresh the advisory total. The records already carry the truth, so
	// a failure here is only a stale cache.
	l.writeTotal(l.sum(l.ReadAll()))
	return nil
}

// ReadAll returns the stake history in local arrival order. Malformed items
// are skipped; if a wallet somehow appears twice, the first record wins.
func (l *Ledger) ReadAll() []types.StakeRecord {
	items := l.store.List(replica.SlotStakingHistory)
	out := make([]types.StakeRecord, 0, len(items))
	seen := make(map[common.Address]bool, len(items))
	for _, item := range items {
		var rec types.StakeRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			log.Ledger.Warn().Err(err).Msg("skipping malformed stake record")
			continue
		}
		if seen[rec.Wallet] {
			continue
		}
		seen[rec.Wallet] = true
		out = append(out, rec)
	}
	return out
}

// HasStaked reports whether the wallet has a record in the shared history.
func (l *Ledger) HasStaked(wallet common.Address) bool {
	for _, rec := range l.ReadAll() {
		if rec.Wallet == wallet {
			return true
		}
	}
	return false
}

// Total returns the pool size. Records are authoritative; when none have
// arrived yet it falls back to the replicated total, then to summing the
// roster's profiles. A drifted total scalar gets corrected in passing.
func (l *Ledger) Total() types.Amount {
	recs := l.ReadAll()
	if len(recs) > 0 {
		total := l.sum(recs)
		if cached, ok := l.readTotal(); !ok || cached.Cmp(total) != 0 {
			l.writeTotal(total)
		}
		return total
	}

	if cached, ok := l.readTotal(); ok {
		return cached
	}

	total := types.NewAmount(nil)
	for _, p := range l.store.Players() {
		if p.Profile != nil {
			total = total.Add(p.Profile.StakeAmount)
		}
	}
	return total
}

func (l *Ledger) sum(recs []types.StakeRecord) types.Amount {
	total := types.NewAmount(nil)
	for _, rec := range recs {
		total = total.Add(rec.Amount)
	}
	return total
}

func (l *Ledger) readTotal() (types.Amount, bool) {
	data, ok := l.store.Get(replica.SlotTotalStaked)
	if !ok {
		return types.Amount{}, false
	}
	var amt types.Amount
	if err := json.Unmarshal(data, &amt); err != nil {
		return types.Amount{}, false
	}
	return amt, true
}

func (l *Ledger) writeTotal(total types.Amount) {
	data, err := json.Marshal(&total)
	if err != nil {
		return
	}
	if err := l.store.Set(replica.SlotTotalStaked, data); err != nil {
		log.Ledger.Warn().Err(err).Msg("total update failed")
	}
}

// GameEnded returns the end-of-game marker if the game has been declared over.
func (l *Ledger) GameEnded() (GameEnd, bool) {
	data, ok := l.store.Get(replica.SlotGameEnded)
	if !ok {
		return GameEnd{}, false
	}
	var end GameEnd
	if err := json.Unmarshal(data, &end); err != nil {
		return GameEnd{}, false
	}
	if end.Winner == (common.Address{}) {
		return GameEnd{}, false
	}
	return end, true
}

// SetGameEnded declares the game over. The first declaration sticks: once a
// marker is present, further calls are no-ops, so two hosts racing to declare
// the same winner converge without churn.
func (l *Ledger) SetGameEnded(end GameEnd) error {
	if existing, ok := l.GameEnded(); ok {
		if existing.Winner != end.Winner {
			log.Ledger.Warn().
				Stringer("have", existing.Winner).
				Stringer("got", end.Winner).
				Msg("conflicting end-of-game declaration ignored")
		}
		return nil
	}

	data, err := json.Marshal(&end)
	if err != nil {
		return fmt.Errorf("encode game end: %w", err)
	}
	if err := l.store.Set(replica.SlotGameEnded, data); err != nil {
		return fmt.Errorf("declare game end: %w", err)
	}
	log.Ledger.Info().Stringer("winner", end.Winner).Str("name", end.Name).Msg("game ended")
	return nil
}

// RedeemedBy returns the payout claim if any peer has published one.
func (l *Ledger) RedeemedBy() (RedeemClaim, bool) {
	data, ok := l.store.Get(replica.SlotRedeemedBy)
	if !ok {
		return RedeemClaim{}, false
	}
	var claim RedeemClaim
	if err := json.Unmarshal(data, &claim); err != nil {
		return RedeemClaim{}, false
	}
	if claim.Wallet == (common.Address{}) {
		return RedeemClaim{}, false
	}
	return claim, true
}

// SetRedeemedBy publishes a payout claim. Best-effort; a failure never blocks
// the payout that already happened.
func (l *Ledger) SetRedeemedBy(claim RedeemClaim) {
	data, err := json.Marshal(&claim)
	if err != nil {
		return
	}
	if err := l.store.Set(replica.SlotRedeemedBy, data); err != nil {
		log.Ledger.Warn().Err(err).Msg("redeem claim publish failed")
	}
}
