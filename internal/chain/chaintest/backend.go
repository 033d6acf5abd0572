// Package chaintest provides an in-memory chain.Backend fake for tests.
package chaintest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Backend is a configurable in-memory chain.Backend. All methods are safe for
// concurrent use.
type Backend struct {
	mu sync.Mutex

	// ChainIDValue is returned by ChainID.
	ChainIDValue *big.Int
	// Balances maps address to wei balance.
	Balances map[common.Address]*big.Int
	// Nonces maps address to pending nonce.
	Nonces map[common.Address]uint64
	// GasPrice is returned by SuggestGasPrice.
	GasPrice *big.Int

	// Sent records every transaction passed to SendTransaction.
	Sent []*ethtypes.Transaction
	// SendErr, when non-nil, is returned by SendTransaction.
	SendErr error

	// Receipts maps tx hash to a prepared receipt. Hashes not present return
	// ethereum.NotFound (still pending).
	Receipts map[common.Hash]*ethtypes.Receipt
	// MineAfter delays receipt visibility: the receipt for a hash becomes
	// visible only after MineAfter[hash] queries have been made.
	MineAfter map[common.Hash]int

	// Txs maps hash to a transaction for TransactionByHash.
	Txs map[common.Hash]*ethtypes.Transaction

	queries map[common.Hash]int
}

// New creates a fake backend for the given chain ID.
func New(chainID int64) *Backend {
	return &Backend{
		ChainIDValue: big.NewInt(chainID),
		Balances:     make(map[common.Address]*big.Int),
		Nonces:       make(map[common.Address]uint64),
		GasPrice:     big.NewInt(1_000_000_000), // 1 gwei
		Receipts:     make(map[common.Hash]*ethtypes.Receipt),
		MineAfter:    make(map[common.Hash]int),
		Txs:          make(map[common.Hash]*ethtypes.Transaction),
		queries:      make(map[common.Hash]int),
	}
}

// SetBalance sets an address's balance in wei.
func (b *Backend) SetBalance(addr common.Address, wei *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Balances[addr] = new(big.Int).Set(wei)
}

// Confirm registers a successful receipt for the given hash.
func (b *Backend) Confirm(hash common.Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Receipts[hash] = &ethtypes.Receipt{
		Status:      ethtypes.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: big.NewInt(1),
	}
}

// Revert registers a failed receipt for the given hash.
func (b *Backend) Revert(hash common.Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Receipts[hash] = &ethtypes.Receipt{
		Status:      ethtypes.ReceiptStatusFailed,
		TxHash:      hash,
		BlockNumber: big.NewInt(1),
	}
}

// SentCount returns how many transactions were submitted.
func (b *Backend) SentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Sent)
}

// LastSent returns the most recently submitted transaction, or nil.
func (b *Backend) LastSent() *ethtypes.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Sent) == 0 {
		return nil
	}
	return b.Sent[len(b.Sent)-1]
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.ChainIDValue), nil
}

func (b *Backend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.Balances[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Nonces[account], nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.GasPrice), nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SendErr != nil {
		return b.SendErr
	}
	b.Sent = append(b.Sent, tx)
	b.Txs[tx.Hash()] = tx
	return nil
}

func (b *Backend) TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tx, ok := b.Txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	_, mined := b.Receipts[hash]
	return tx, !mined, nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries[hash]++
	if wait, ok := b.MineAfter[hash]; ok && b.queries[hash] <= wait {
		return nil, ethereum.NotFound
	}
	r, ok := b.Receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}
