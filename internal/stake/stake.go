// Package stake runs the entry flow: the ordered checks, the wallet
// signature, the confirmation wait, and the ledger append that turn an
// untrusted player into a staked participant of a room.
package stake

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethwar/arena/internal/chain"
	"github.com/ethwar/arena/internal/ledger"
	"github.com/ethwar/arena/internal/localstate"
	"github.com/ethwar/arena/internal/log"
	"github.com/ethwar/arena/internal/replica"
	"github.com/ethwar/arena/pkg/types"
)

// Stake flow errors.
var (
	// ErrWalletNotConnected means no unlocked wallet is available.
	ErrWalletNotConnected = errors.New("wallet not connected")

	// ErrAlreadyStaked means this wallet already holds a stake in the room.
	ErrAlreadyStaked = errors.New("already staked")

	// ErrInvalidAmount means the offered amount is zero.
	ErrInvalidAmount = errors.New("invalid stake amount")

	// ErrInsufficientBalance means the wallet cannot cover the stake.
	ErrInsufficientBalance = errors.New("insufficient balance for stake")

	// ErrBusy means a stake attempt is already in flight.
	ErrBusy = errors.New("stake already in progress")
)

// Phase is the current state of the flow.
type Phase int

const (
	// PhaseIdle: no attempt in flight; Submit is allowed.
	PhaseIdle Phase = iota
	// PhaseChecking: running preconditions.
	PhaseChecking
	// PhaseSigning: waiting for the wallet to sign and submit.
	PhaseSigning
	// PhaseConfirming: transfer submitted, waiting for a receipt.
	PhaseConfirming
	// PhaseStaked: stake confirmed and recorded. Acknowledge returns to idle.
	PhaseStaked
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseChecking:
		return "checking"
	case PhaseSigning:
		return "signing"
	case PhaseConfirming:
		return "confirming"
	case PhaseStaked:
		return "staked"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Wallet is the signing surface the flow needs. *wallet.Wallet satisfies it;
// tests substitute fakes.
type Wallet interface {
	Address() (common.Address, bool)
	ActiveChainID(ctx context.Context) (*big.Int, error)
	Balance(ctx context.Context) (types.Amount, error)
	SendValue(ctx context.Context, to common.Address, amount types.Amount) (common.Hash, error)
}

// Config holds the room's stake terms. The wager itself is the player's
// choice; only the destination is fixed.
type Config struct {
	// Treasury is the custodial address stakes are paid to.
	Treasury common.Address
	// ExplorerBase builds display links for submitted transfers. Optional.
	ExplorerBase string
}

// Receipt describes a completed stake.
type Receipt struct {
	TxRef       common.Hash
	Amount      types.Amount
	ExplorerURL string
}

// Flow runs stake attempts for one player. One attempt at a time.
type Flow struct {
	cfg    Config
	wallet Wallet
	client *chain.Client
	ledger *ledger.Ledger
	local  *localstate.Store
	store  replica.Store

	mu    sync.Mutex
	phase Phase

	// A transfer that timed out waiting for its receipt. A retry resumes
	// waiting on it instead of signing a second transfer.
	pending       common.Hash
	pendingAmount types.Amount
}

// NewFlow wires a stake flow.
func NewFlow(cfg Config, w Wallet, client *chain.Client, l *ledger.Ledger, local *localstate.Store, store replica.Store) (*Flow, error) {
	if cfg.Treasury == (common.Address{}) {
		return nil, fmt.Errorf("treasury address required")
	}
	return &Flow{
		cfg:    cfg,
		wallet: w,
		client: client,
		ledger: l,
		local:  local,
		store:  store,
	}, nil
}

// Phase returns the flow's current phase.
func (f *Flow) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

func (f *Flow) setPhase(p Phase) {
	f.mu.Lock()
	f.phase = p
	f.mu.Unlock()
}

// Submit attempts to stake amount under the given profile. The checks run in
// a fixed order and the first failure wins: prior stake (local flag, then the
// shared ledger), wallet connectivity, amount validity, network identity,
// balance. Only after all of them pass does the wallet see a signature
// request. Any failure, including a declined signature, returns the flow to
// idle with nothing recorded — except a confirmation timeout, which leaves
// the signed transfer pending so the next Submit resumes waiting on it
// instead of paying the treasury twice.
func (f *Flow) Submit(ctx context.Context, amount types.Amount, profile types.PlayerProfile) (Receipt, error) {
	f.mu.Lock()
	if f.phase != PhaseIdle {
		f.mu.Unlock()
		return Receipt{}, fmt.Errorf("%w: %s", ErrBusy, f.phase)
	}
	f.phase = PhaseChecking
	f.mu.Unlock()

	rec, err := f.run(ctx, amount, profile)
	if err != nil {
		f.setPhase(PhaseIdle)
		return Receipt{}, err
	}
	f.setPhase(PhaseStaked)
	return rec, nil
}

func (f *Flow) run(ctx context.Context, amount types.Amount, profile types.PlayerProfile) (Receipt, error) {
	if f.local.HasStaked() {
		return Receipt{}, ErrAlreadyStaked
	}

	addr, connected := f.wallet.Address()
	if !connected {
		return Receipt{}, ErrWalletNotConnected
	}

	// The local flag can be wiped while the shared ledger still remembers.
	if f.ledger.HasStaked(addr) {
		return Receipt{}, fmt.Errorf("%w: %s", ErrAlreadyStaked, addr)
	}

	if amount.IsZero() {
		return Receipt{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	active, err := f.wallet.ActiveChainID(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("query wallet network: %w", err)
	}
	if required := f.client.RequiredChainID(); active.Cmp(required) != 0 {
		return Receipt{}, fmt.Errorf("%w: wallet is on chain %s, need chain %s",
			chain.ErrWrongNetwork, active, required)
	}

	txRef, prior := f.takePending()
	if txRef != (common.Hash{}) {
		// A signed transfer is already out there; the money left the wallet
		// once. Wait on that hash with its original amount.
		amount = prior
		log.Stake.Info().Stringer("tx", txRef).Msg("resuming pending stake transfer")
	} else {
		balance, err := f.wallet.Balance(ctx)
		if err != nil {
			return Receipt{}, fmt.Errorf("query balance: %w", err)
		}
		if balance.Cmp(amount) < 0 {
			return Receipt{}, fmt.Errorf("%w: have %s, need %s",
				ErrInsufficientBalance, balance, amount)
		}

		f.setPhase(PhaseSigning)
		txRef, err = f.wallet.SendValue(ctx, f.cfg.Treasury, amount)
		if err != nil {
			return Receipt{}, err
		}
		log.Stake.Info().Stringer("wallet", addr).Stringer("tx", txRef).Msg("stake submitted")
	}

	f.setPhase(PhaseConfirming)
	if _, err := f.client.AwaitConfirmation(ctx, txRef); err != nil {
		if errors.Is(err, chain.ErrConfirmationTimeout) {
			f.rememberPending(txRef, amount)
		}
		return Receipt{}, err
	}

	now := time.Now().UnixMilli()
	if err := f.ledger.AppendRecord(types.StakeRecord{
		Wallet:    addr,
		Amount:    amount,
		Timestamp: now,
		TxRef:     txRef,
	}); err != nil {
		// The transfer is on chain but the record write raced another one
		// for the same wallet. Surface it; the money is in the pool either way.
		return Receipt{}, err
	}

	if err := f.local.SetStaked(); err != nil {
		log.Stake.Warn().Err(err).Msg("staked flag not persisted")
	}
	profile.Wallet = addr
	profile.StakeAmount = amount
	if err := f.local.SaveProfile(&profile); err != nil {
		log.Stake.Warn().Err(err).Msg("profile not persisted")
	}
	if err := f.store.PublishState(types.PlayerState{
		Wallet:  addr,
		Profile: &profile,
	}); err != nil {
		log.Stake.Warn().Err(err).Msg("state announce failed")
	}

	rec := Receipt{TxRef: txRef, Amount: amount}
	if f.cfg.ExplorerBase != "" {
		rec.ExplorerURL = chain.ExplorerTxURL(f.cfg.ExplorerBase, txRef)
	}
	log.Stake.Info().
		Stringer("wallet", addr).
		Str("amount", amount.Ether()).
		Stringer("tx", txRef).
		Msg("stake confirmed")
	return rec, nil
}

func (f *Flow) takePending() (common.Hash, types.Amount) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, amt := f.pending, f.pendingAmount
	f.pending = common.Hash{}
	f.pendingAmount = types.Amount{}
	return h, amt
}

func (f *Flow) rememberPending(h common.Hash, amt types.Amount) {
	f.mu.Lock()
	f.pending = h
	f.pendingAmount = amt
	f.mu.Unlock()
}

// Acknowledge dismisses a completed stake, returning the flow to idle.
func (f *Flow) Acknowledge() {
	f.mu.Lock()
	if f.phase == PhaseStaked {
		f.phase = PhaseIdle
	}
	f.mu.Unlock()
}

// NewRoomCode generates a 6-digit room code.
func NewRoomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate room code: %w", err)
	}
	return fmt.Sprintf("%06d", n), nil
}
