// Package node assembles a full arena peer that can be embedded in any
// binary: storage, chain client, treasury, wallet, room replication, and the
// stake/game/redeem session on top.
package node

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/ethwar/arena/config"
	"github.com/ethwar/arena/internal/chain"
	"github.com/ethwar/arena/internal/ledger"
	"github.com/ethwar/arena/internal/localstate"
	alog "github.com/ethwar/arena/internal/log"
	"github.com/ethwar/arena/internal/redeem"
	"github.com/ethwar/arena/internal/referee"
	"github.com/ethwar/arena/internal/replica"
	"github.com/ethwar/arena/internal/session"
	"github.com/ethwar/arena/internal/stake"
	"github.com/ethwar/arena/internal/storage"
	"github.com/ethwar/arena/internal/treasury"
	"github.com/ethwar/arena/internal/wallet"
	"github.com/ethwar/arena/pkg/types"
)

// Options are the per-invocation settings that don't belong in the config
// file: which room to join and who the player is.
type Options struct {
	// Room is the 6-digit code to join. Empty means create a new room and
	// act as its host.
	Room string
	// Name is the display name announced to the room.
	Name string
	// WalletPassword unlocks (or creates) the encrypted player wallet.
	WalletPassword []byte
	// AutoStake submits the stake on Start when this peer has not staked yet.
	AutoStake bool
}

// Node is a fully-initialized arena peer.
type Node struct {
	cfg    *config.Config
	opts   Options
	logger zerolog.Logger

	// Core
	db     storage.DB
	local  *localstate.Store
	client *chain.Client
	signer *treasury.Signer
	wallet *wallet.Wallet

	// Room
	room      string
	creator   bool
	replica   *replica.Node
	ledger    *ledger.Ledger
	stakeFlow *stake.Flow
	session   *session.Session

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a Node. It performs all setup steps (logger,
// storage, chain client, treasury, wallet) but joins no room and starts no
// background work. Call Start for that.
func New(cfg *config.Config, opts Options) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = logsDir + "/arena.log"
	}
	if err := alog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := alog.WithComponent("node")

	logger.Info().
		Str("network", string(cfg.Network)).
		Int64("chain_id", cfg.Chain.ChainID).
		Str("rpc", cfg.Chain.RPCURL).
		Msg("Starting arena peer")

	// ── 2. Open storage ─────────────────────────────────────────────
	db, err := storage.NewBadger(cfg.StateDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.StateDir(), err)
	}
	local := localstate.New(storage.NewPrefixDB(db, []byte("session/")))
	logger.Info().Str("path", cfg.StateDir()).Msg("Database opened")

	// ── 3. Chain client ─────────────────────────────────────────────
	client, err := chain.Dial(cfg.Chain.RPCURL, chain.Config{
		RequiredChainID: big.NewInt(cfg.Chain.ChainID),
		ConfirmTimeout:  time.Duration(cfg.Chain.ConfirmSeconds) * time.Second,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("chain client: %w", err)
	}

	// ── 4. Treasury ─────────────────────────────────────────────────
	var override common.Address
	if cfg.Treasury.AddressOverride != "" {
		override = common.HexToAddress(cfg.Treasury.AddressOverride)
	}
	signer, err := treasury.New(treasury.Config{
		PrivateKeyHex:   config.TreasuryKeyFromEnv(),
		AddressOverride: override,
	}, client)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("treasury: %w", err)
	}

	// ── 5. Player wallet ────────────────────────────────────────────
	w, err := openWallet(cfg, opts.WalletPassword, client, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Node{
		cfg:    cfg,
		opts:   opts,
		logger: logger,
		db:     db,
		local:  local,
		client: client,
		signer: signer,
		wallet: w,
	}, nil
}

// openWallet unlocks the player wallet, creating it on first run.
func openWallet(cfg *config.Config, password []byte, client *chain.Client, logger zerolog.Logger) (*wallet.Wallet, error) {
	ks, err := wallet.NewKeystore(cfg.WalletFile())
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}

	if !ks.Exists() {
		mnemonic, err := wallet.GenerateMnemonic()
		if err != nil {
			return nil, fmt.Errorf("generate mnemonic: %w", err)
		}
		seed, err := wallet.SeedFromMnemonic(mnemonic, "")
		if err != nil {
			return nil, fmt.Errorf("derive seed: %w", err)
		}
		if err := ks.Create(seed, password, wallet.DefaultParams()); err != nil {
			return nil, fmt.Errorf("create wallet: %w", err)
		}
		logger.Info().Str("address", ks.Address()).Msg("New wallet created")
		// The recovery phrase is shown once and never stored in clear.
		fmt.Printf("\nRecovery phrase (write it down, it will not be shown again):\n\n  %s\n\n", mnemonic)
	}

	w, err := wallet.Open(ks, password, client, nil)
	if err != nil {
		return nil, fmt.Errorf("unlock wallet: %w", err)
	}
	addr, _ := w.Address()
	logger.Info().Stringer("address", addr).Msg("Wallet unlocked")
	return w, nil
}

// Start verifies the chain, joins (or creates) the room, and brings up the
// session. Background work stops when Stop is called.
func (n *Node) Start() error {
	n.ctx, n.cancel = context.WithCancel(context.Background())

	// ── 1. Verify network ───────────────────────────────────────────
	verifyCtx, cancel := context.WithTimeout(n.ctx, 30*time.Second)
	err := n.client.VerifyNetwork(verifyCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("verify network: %w", err)
	}

	// ── 2. Resolve the room ─────────────────────────────────────────
	n.room = n.opts.Room
	n.creator = false
	if n.room == "" {
		// Rejoin the room a restarted stake belongs to before minting
		// a fresh one.
		if saved := n.local.RoomCode(); saved != "" {
			n.room = saved
			n.logger.Info().Str("room", n.room).Msg("Rejoining saved room")
		} else {
			code, err := stake.NewRoomCode()
			if err != nil {
				return err
			}
			n.room = code
			n.creator = true
			n.logger.Info().Str("room", n.room).Msg("Created room")
		}
	}
	if err := n.local.SaveRoomCode(n.room); err != nil {
		n.logger.Warn().Err(err).Msg("room code not persisted")
	}

	// ── 3. Join the replication mesh ────────────────────────────────
	n.replica = replica.NewNode(replica.Config{
		ListenAddr: n.cfg.P2P.ListenAddr,
		Port:       n.cfg.P2P.Port,
		Room:       n.room,
		Creator:    n.creator,
		Seeds:      n.cfg.P2P.Seeds,
		DataDir:    n.cfg.P2PDir(),
	})
	if err := n.replica.Start(); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	n.ledger = ledger.New(n.replica)

	// ── 4. Stake flow ───────────────────────────────────────────────
	treasuryAddr, known := n.signer.Address()
	if !known {
		n.replica.Close()
		return fmt.Errorf("no treasury address configured: set %s or treasury.address", config.TreasuryKeyEnv)
	}
	n.stakeFlow, err = stake.NewFlow(stake.Config{
		Treasury:     treasuryAddr,
		ExplorerBase: n.cfg.Chain.ExplorerBase,
	}, n.wallet, n.client, n.ledger, n.local, n.replica)
	if err != nil {
		n.replica.Close()
		return err
	}

	// ── 5. Session ──────────────────────────────────────────────────
	payout, err := types.ParseEther(n.cfg.Treasury.PayoutEther)
	if err != nil {
		n.replica.Close()
		return fmt.Errorf("payout amount: %w", err)
	}
	n.session = session.New(session.Config{
		Room:         n.room,
		Payout:       payout,
		ExplorerBase: n.cfg.Chain.ExplorerBase,
		Referee:      referee.Config{KillThreshold: n.cfg.Game.KillThreshold},
		OnGameEnd:    n.onGameEnd,
	}, n.replica, n.ledger, n.local, n.wallet, n.signer, n.client)
	if err := n.session.Start(n.ctx); err != nil {
		n.replica.Close()
		return fmt.Errorf("session: %w", err)
	}

	// ── 6. Stake in, if asked ───────────────────────────────────────
	if n.opts.AutoStake && !n.local.HasStaked() {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.autoStake()
		}()
	}

	n.logger.Info().
		Str("room", n.room).
		Bool("host", n.creator).
		Str("peer", n.replica.ID()).
		Msg("Arena peer running")
	return nil
}

func (n *Node) autoStake() {
	amount, err := types.ParseEther(n.cfg.Game.StakeEther)
	if err != nil {
		n.logger.Error().Err(err).Msg("stake amount")
		return
	}
	rec, err := n.stakeFlow.Submit(n.ctx, amount, types.PlayerProfile{
		DisplayName: n.opts.Name,
	})
	if err != nil {
		n.logger.Error().Err(err).Msg("stake failed")
		return
	}
	n.logger.Info().
		Stringer("tx", rec.TxRef).
		Str("amount", rec.Amount.Ether()).
		Str("explorer", rec.ExplorerURL).
		Msg("Staked into room")
	n.stakeFlow.Acknowledge()
}

// onGameEnd redeems the payout when this peer's wallet won.
func (n *Node) onGameEnd(end ledger.GameEnd) {
	addr, _ := n.wallet.Address()
	if end.Winner != addr {
		n.logger.Info().Stringer("winner", end.Winner).Msg("Game over; another player won")
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		res, err := n.session.RedeemFlow().Redeem(n.ctx)
		if err != nil {
			n.logger.Error().Err(err).Msg("redeem failed")
			return
		}
		n.logger.Info().
			Str("amount", res.Amount.Ether()).
			Stringer("tx", res.TxRef).
			Str("explorer", res.ExplorerURL).
			Msg("Payout redeemed")
	}()
}

// Session returns the running session (nil before Start).
func (n *Node) Session() *session.Session {
	return n.session
}

// StakeFlow returns the stake flow (nil before Start).
func (n *Node) StakeFlow() *stake.Flow {
	return n.stakeFlow
}

// RedeemFlow returns the redeem flow for this peer's wallet.
func (n *Node) RedeemFlow() *redeem.Flow {
	return n.session.RedeemFlow()
}

// Treasury returns the custodial signer.
func (n *Node) Treasury() *treasury.Signer {
	return n.signer
}

// Room returns the joined room code ("" before Start).
func (n *Node) Room() string {
	return n.room
}

// Stop shuts the peer down: session first, then the mesh, then storage.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
	if n.session != nil {
		if err := n.session.Stop(); err != nil {
			n.logger.Warn().Err(err).Msg("session stop")
		}
	}
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			n.logger.Warn().Err(err).Msg("database close")
		}
	}
	n.logger.Info().Msg("Arena peer stopped")
}
