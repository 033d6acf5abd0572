// Package session ties a room together for one peer: it restores local state
// after a restart, keeps the peer's replicated score current, runs win
// detection when this peer hosts, and hands the winner a ready redeem flow
// when the end-of-game marker arrives.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethwar/arena/internal/chain"
	"github.com/ethwar/arena/internal/ledger"
	"github.com/ethwar/arena/internal/localstate"
	"github.com/ethwar/arena/internal/log"
	"github.com/ethwar/arena/internal/redeem"
	"github.com/ethwar/arena/internal/referee"
	"github.com/ethwar/arena/internal/replica"
	"github.com/ethwar/arena/internal/stake"
	"github.com/ethwar/arena/internal/treasury"
	"github.com/ethwar/arena/pkg/types"
)

// Config holds session settings.
type Config struct {
	// Room is the 6-digit room code this session runs in.
	Room string
	// Payout is the fixed amount the winner redeems.
	Payout types.Amount
	// ExplorerBase builds display links. Optional.
	ExplorerBase string
	// Referee configures win detection on the hosting peer.
	Referee referee.Config
	// OnGameEnd, when set, fires once when the end-of-game marker arrives
	// (whether declared locally or replicated from the host).
	OnGameEnd func(ledger.GameEnd)
}

// Session is one peer's view of a running room.
type Session struct {
	cfg    Config
	store  replica.Store
	ledger *ledger.Ledger
	local  *localstate.Store
	wallet stake.Wallet
	signer *treasury.Signer
	client *chain.Client

	mu       sync.Mutex
	self     types.PlayerState
	redeem   *redeem.Flow
	endFired bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a session. Start must be called before use.
func New(cfg Config, store replica.Store, l *ledger.Ledger, local *localstate.Store,
	w stake.Wallet, signer *treasury.Signer, client *chain.Client) *Session {
	return &Session{
		cfg:    cfg,
		store:  store,
		ledger: l,
		local:  local,
		wallet: w,
		signer: signer,
		client: client,
	}
}

// Start restores persisted state, announces this peer, and begins the watch
// and detection loops. It returns immediately; the loops stop when ctx is
// cancelled or Stop is called.
func (s *Session) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if err := s.restore(); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.watchLoop(ctx)

	// Every peer runs the detector; it only scans on ticks where this peer
	// holds the host capability, so a host change mid-session is picked up.
	detector := referee.NewDetector(s.cfg.Referee, s.store, s.ledger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		detector.Run(ctx)
	}()

	log.Game.Info().
		Str("room", s.cfg.Room).
		Bool("host", s.store.AmIHost()).
		Msg("session started")
	return nil
}

// restore reloads the profile and staked flag persisted before a restart and
// re-announces them, so a reload does not lose identity mid-session.
func (s *Session) restore() error {
	profile, err := s.local.Profile()
	if err != nil {
		return fmt.Errorf("restore profile: %w", err)
	}

	addr, _ := s.wallet.Address()
	s.mu.Lock()
	s.self = types.PlayerState{Wallet: addr, Profile: profile}
	st := s.self
	s.mu.Unlock()

	if s.local.HasStaked() && profile != nil {
		if err := s.store.PublishState(st); err != nil {
			return fmt.Errorf("announce restored state: %w", err)
		}
		log.Game.Info().Str("name", profile.DisplayName).Msg("restored staked session")
	}
	return nil
}

// watchLoop reacts to replicated changes: it fires OnGameEnd exactly once
// when the end-of-game marker lands.
func (s *Session) watchLoop(ctx context.Context) {
	defer s.wg.Done()
	events := s.store.Watch()

	// The marker may have arrived before the loop started.
	s.checkGameEnd()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev.Kind == replica.SlotChanged && ev.Slot == replica.SlotGameEnded {
				s.checkGameEnd()
			}
		}
	}
}

func (s *Session) checkGameEnd() {
	end, over := s.ledger.GameEnded()
	if !over {
		return
	}

	s.mu.Lock()
	fired := s.endFired
	s.endFired = true
	s.mu.Unlock()
	if fired {
		return
	}

	log.Game.Info().Stringer("winner", end.Winner).Msg("game over")
	if s.cfg.OnGameEnd != nil {
		s.cfg.OnGameEnd(end)
	}
}

// ReportKill increments this peer's kill count and announces it.
func (s *Session) ReportKill() error {
	return s.updateScore(func(st *types.PlayerState) { st.Kills++ })
}

// ReportDeath increments this peer's death count and announces it.
func (s *Session) ReportDeath() error {
	return s.updateScore(func(st *types.PlayerState) { st.Deaths++ })
}

func (s *Session) updateScore(apply func(*types.PlayerState)) error {
	if _, over := s.ledger.GameEnded(); over {
		// Scores are frozen once the winner is declared.
		return nil
	}

	s.mu.Lock()
	apply(&s.self)
	st := s.self
	s.mu.Unlock()
	return s.store.PublishState(st)
}

// Score returns this peer's current kill and death counts.
func (s *Session) Score() (kills, deaths int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self.Kills, s.self.Deaths
}

// RedeemFlow returns the payout flow for this peer's wallet, building it on
// first use. The flow itself re-verifies eligibility against the replicated
// marker on every attempt.
func (s *Session) RedeemFlow() *redeem.Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.redeem == nil {
		addr, _ := s.wallet.Address()
		s.redeem = redeem.NewFlow(addr, s.signer, s.client, s.ledger, s.cfg.Payout, s.cfg.ExplorerBase)
	}
	return s.redeem
}

// GoHome wipes the local session state so the player can stake into a new
// room. The shared ledger of the old room is untouched.
func (s *Session) GoHome() error {
	if err := s.local.Reset(); err != nil {
		return err
	}
	s.mu.Lock()
	s.self = types.PlayerState{}
	s.redeem = nil
	s.endFired = false
	s.mu.Unlock()
	log.Game.Info().Msg("local session state cleared")
	return nil
}

// Stop ends the session's loops and leaves the room.
func (s *Session) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return s.store.Close()
}
