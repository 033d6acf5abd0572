// Package chain wraps an EVM JSON-RPC endpoint behind the small surface the
// arena protocol needs: balance reads, value-transfer submission, and polling
// a submitted transaction to a terminal outcome. Every operation is scoped to
// a required chain ID so nothing is ever submitted to the wrong network.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ethwar/arena/internal/log"
	"github.com/ethwar/arena/pkg/types"
)

// Backend is the JSON-RPC surface the adapter consumes. *ethclient.Client
// satisfies it; tests substitute fakes.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}

// Terminal is the final outcome of a confirmation wait.
type Terminal int

const (
	// TerminalSuccess: the transaction confirmed successfully.
	TerminalSuccess Terminal = iota
	// TerminalReverted: the transaction confirmed but failed.
	TerminalReverted
	// TerminalTimedOut: no terminal state within the adapter's window.
	TerminalTimedOut
)

// String implements fmt.Stringer.
func (t Terminal) String() string {
	switch t {
	case TerminalSuccess:
		return "success"
	case TerminalReverted:
		return "reverted"
	case TerminalTimedOut:
		return "timed-out"
	default:
		return fmt.Sprintf("terminal(%d)", int(t))
	}
}

// Default adapter timings.
const (
	DefaultConfirmTimeout = 2 * time.Minute
	DefaultPollInterval   = 2 * time.Second
)

// Config holds adapter settings.
type Config struct {
	// RequiredChainID scopes every operation to one network.
	RequiredChainID *big.Int
	// ConfirmTimeout bounds AwaitConfirmation. Zero means DefaultConfirmTimeout.
	ConfirmTimeout time.Duration
	// PollInterval is the receipt polling cadence. Zero means DefaultPollInterval.
	PollInterval time.Duration
}

// Client is the chain client adapter.
type Client struct {
	backend        Backend
	chainID        *big.Int
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// NewClient creates an adapter over an existing backend.
func NewClient(backend Backend, cfg Config) (*Client, error) {
	if cfg.RequiredChainID == nil || cfg.RequiredChainID.Sign() <= 0 {
		return nil, fmt.Errorf("required chain ID must be positive")
	}
	c := &Client{
		backend:        backend,
		chainID:        new(big.Int).Set(cfg.RequiredChainID),
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
	}
	if c.confirmTimeout <= 0 {
		c.confirmTimeout = DefaultConfirmTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	return c, nil
}

// Dial connects to an RPC endpoint and wraps it in an adapter.
func Dial(rpcURL string, cfg Config) (*Client, error) {
	ec, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return NewClient(ec, cfg)
}

// Backend exposes the underlying JSON-RPC surface for components that build
// and sign their own transactions (treasury signer, player wallet).
func (c *Client) Backend() Backend {
	return c.backend
}

// RequiredChainID returns a copy of the network this adapter is scoped to.
func (c *Client) RequiredChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// VerifyNetwork checks that the endpoint answers for the required chain.
// Returns ErrWrongNetwork (with both IDs) on mismatch.
func (c *Client) VerifyNetwork(ctx context.Context) error {
	active, err := c.backend.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("query chain ID: %w", err)
	}
	if active.Cmp(c.chainID) != 0 {
		return fmt.Errorf("%w: endpoint is chain %s, need chain %s", ErrWrongNetwork, active, c.chainID)
	}
	return nil
}

// BalanceOf reads the current balance of an address.
func (c *Client) BalanceOf(ctx context.Context, addr common.Address) (types.Amount, error) {
	wei, err := c.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		return types.Amount{}, fmt.Errorf("balance of %s: %w", addr, err)
	}
	return types.NewAmount(wei), nil
}

// AwaitConfirmation polls the transaction until it reaches a terminal chain
// state or the adapter's confirmation window elapses. A timed-out wait
// returns (TerminalTimedOut, ErrConfirmationTimeout); the caller may retry by
// calling AwaitConfirmation again with the same hash.
func (c *Client) AwaitConfirmation(ctx context.Context, txRef common.Hash) (Terminal, error) {
	deadline := time.NewTimer(c.confirmTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.pollInterval)
	defer tick.Stop()

	logger := log.Chain.With().Stringer("tx", txRef).Logger()
	logger.Debug().Dur("timeout", c.confirmTimeout).Msg("awaiting confirmation")

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txRef)
		switch {
		case err == nil:
			if receipt.Status == ethtypes.ReceiptStatusSuccessful {
				logger.Info().Uint64("block", receipt.BlockNumber.Uint64()).Msg("transaction confirmed")
				return TerminalSuccess, nil
			}
			logger.Warn().Msg("transaction reverted")
			return TerminalReverted, fmt.Errorf("tx %s: %w", txRef, ErrTxReverted)
		case errors.Is(err, ethereum.NotFound):
			// Not mined yet; keep polling.
		default:
			// Transient RPC failure: keep polling until the window closes.
			logger.Debug().Err(err).Msg("receipt query failed")
		}

		select {
		case <-ctx.Done():
			return TerminalTimedOut, ctx.Err()
		case <-deadline.C:
			logger.Warn().Msg("confirmation window elapsed")
			return TerminalTimedOut, fmt.Errorf("tx %s: %w", txRef, ErrConfirmationTimeout)
		case <-tick.C:
		}
	}
}

// Transfer fetches a transaction by hash and returns its recipient and value.
// Returns ErrTxNotFound when the node does not know the hash.
func (c *Client) Transfer(ctx context.Context, txRef common.Hash) (to *common.Address, value types.Amount, err error) {
	tx, _, err := c.backend.TransactionByHash(ctx, txRef)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, types.Amount{}, fmt.Errorf("tx %s: %w", txRef, ErrTxNotFound)
		}
		return nil, types.Amount{}, fmt.Errorf("fetch tx %s: %w", txRef, err)
	}
	return tx.To(), types.NewAmount(tx.Value()), nil
}

// ExplorerTxURL builds the display-only explorer link for a transaction.
// Not part of the protocol's correctness.
func ExplorerTxURL(explorerBase string, txRef common.Hash) string {
	for len(explorerBase) > 0 && explorerBase[len(explorerBase)-1] == '/' {
		explorerBase = explorerBase[:len(explorerBase)-1]
	}
	return explorerBase + "/tx/" + txRef.Hex()
}
