// Package redeem runs the settlement flow: after the host declares a winner,
// the winner's peer asks the treasury for the room's fixed payout and waits
// for the transfer to confirm.
package redeem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethwar/arena/internal/chain"
	"github.com/ethwar/arena/internal/ledger"
	"github.com/ethwar/arena/internal/log"
	"github.com/ethwar/arena/internal/treasury"
	"github.com/ethwar/arena/pkg/types"
)

// Redeem flow errors.
var (
	// ErrGameNotOver means no end-of-game marker has replicated yet.
	ErrGameNotOver = errors.New("game is not over")

	// ErrNotWinner means this peer's wallet is not the declared winner.
	ErrNotWinner = errors.New("wallet is not the declared winner")

	// ErrNoPayout means no payout amount is configured.
	ErrNoPayout = errors.New("no payout configured")

	// ErrBusy means a redeem attempt is already in flight.
	ErrBusy = errors.New("redeem already in progress")

	// ErrAlreadyRedeemed means this flow already completed a payout.
	ErrAlreadyRedeemed = errors.New("pool already redeemed")
)

// Phase is the current state of the flow.
type Phase int

const (
	// PhaseIdle: no attempt in flight; Redeem is allowed.
	PhaseIdle Phase = iota
	// PhasePaying: asking the treasury for the payout transfer.
	PhasePaying
	// PhaseConfirming: payout submitted, waiting for a receipt.
	PhaseConfirming
	// PhaseRedeemed: payout confirmed.
	PhaseRedeemed
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePaying:
		return "paying"
	case PhaseConfirming:
		return "confirming"
	case PhaseRedeemed:
		return "redeemed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Result describes a confirmed payout.
type Result struct {
	TxRef       common.Hash
	Amount      types.Amount
	ExplorerURL string
}

// Flow runs redeem attempts for one peer's wallet.
type Flow struct {
	wallet       common.Address
	signer       *treasury.Signer
	client       *chain.Client
	ledger       *ledger.Ledger
	payout       types.Amount
	explorerBase string

	mu      sync.Mutex
	phase   Phase
	pending common.Hash // payout awaiting confirmation after a timeout
}

// NewFlow wires a redeem flow for the given wallet. payout is the fixed
// amount the winner collects; the pool total stays on display only.
func NewFlow(wallet common.Address, signer *treasury.Signer, client *chain.Client, l *ledger.Ledger, payout types.Amount, explorerBase string) *Flow {
	return &Flow{
		wallet:       wallet,
		signer:       signer,
		client:       client,
		ledger:       l,
		payout:       payout,
		explorerBase: explorerBase,
	}
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

// Redeem pays the fixed payout to this peer's wallet. Eligibility comes from
// the replicated end-of-game marker, never from local score. A shortfall in
// the treasury fails with *treasury.InsufficientError before anything is
// submitted. A confirmation timeout leaves the submitted transfer pending:
// the next Redeem call resumes waiting on it instead of paying twice.
func (f *Flow) Redeem(ctx context.Context) (Result, error) {
	f.mu.Lock()
	switch f.phase {
	case PhaseIdle:
	case PhaseRedeemed:
		f.mu.Unlock()
		return Result{}, ErrAlreadyRedeemed
	default:
		phase := f.phase
		f.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %s", ErrBusy, phase)
	}
	f.phase = PhasePaying
	f.mu.Unlock()

	res, err := f.run(ctx)
	if err != nil {
		f.setPhase(PhaseIdle)
		return Result{}, err
	}
	f.setPhase(PhaseRedeemed)
	return res, nil
}

func (f *Flow) run(ctx context.Context) (Result, error) {
	end, over := f.ledger.GameEnded()
	if !over {
		return Result{}, ErrGameNotOver
	}
	if end.Winner != f.wallet {
		return Result{}, fmt.Errorf("%w: winner is %s", ErrNotWinner, end.Winner)
	}

	if f.payout.IsZero() {
		return Result{}, ErrNoPayout
	}

	txRef := f.takePending()
	if txRef == (common.Hash{}) {
		var err error
		txRef, err = f.signer.Pay(ctx, f.wallet, f.payout)
		if err != nil {
			return Result{}, err
		}
	} else {
		log.Game.Info().Stringer("tx", txRef).Msg("resuming pending payout")
	}

	f.setPhase(PhaseConfirming)
	if _, err := f.client.AwaitConfirmation(ctx, txRef); err != nil {
		if errors.Is(err, chain.ErrConfirmationTimeout) {
			// The transfer may still land. Remember it so a retry waits on
			// this hash instead of paying the winner a second time.
			f.rememberPending(txRef)
		}
		return Result{}, err
	}

	f.ledger.SetRedeemedBy(ledger.RedeemClaim{
		Wallet:    f.wallet,
		TxRef:     txRef,
		ClaimedAt: time.Now().UnixMilli(),
	})

	res := Result{TxRef: txRef, Amount: f.payout}
	if f.explorerBase != "" {
		res.ExplorerURL = chain.ExplorerTxURL(f.explorerBase, txRef)
	}
	log.Game.Info().
		Stringer("wallet", f.wallet).
		Str("amount", f.payout.Ether()).
		Stringer("tx", txRef).
		Msg("payout redeemed")
	return res, nil
}

func (f *Flow) takePending() common.Hash {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.pending
	f.pending = common.Hash{}
	return h
}

func (f *Flow) rememberPending(h common.Hash) {
	f.mu.Lock()
	f.pending = h
	f.mu.Unlock()
}
