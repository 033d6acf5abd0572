package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ethwar/arena/internal/chain"
	"github.com/ethwar/arena/internal/log"
	"github.com/ethwar/arena/pkg/types"
)

// gasLimitTransfer is the fixed gas cost of a plain value transfer.
const gasLimitTransfer = 21000

// ErrRejected means the player explicitly declined the signature request.
// Flows must treat it as a clean cancel: immediate return to idle, no side
// effects, and a distinct user-facing message.
var ErrRejected = errors.New("signature request declined")

// ConfirmFunc asks the player to approve a pending transfer before signing.
// Returning false declines. A nil ConfirmFunc auto-approves (headless mode).
type ConfirmFunc func(to common.Address, amount types.Amount) bool

// Wallet is the local signing wallet for one player.
type Wallet struct {
	key     *ecdsa.PrivateKey
	addr    common.Address
	client  *chain.Client
	confirm ConfirmFunc
}

// NewWallet creates a wallet around an unlocked key.
func NewWallet(key *ecdsa.PrivateKey, client *chain.Client, confirm ConfirmFunc) *Wallet {
	return &Wallet{
		key:     key,
		addr:    AddressOf(key),
		client:  client,
		confirm: confirm,
	}
}

// Open unlocks the keystore with the password and returns a ready wallet.
func Open(ks *Keystore, password []byte, client *chain.Client, confirm ConfirmFunc) (*Wallet, error) {
	seed, err := ks.Load(password)
	if err != nil {
		return nil, err
	}
	key, err := DeriveKey(seed, 0, 0)
	if err != nil {
		return nil, err
	}
	return NewWallet(key, client, confirm), nil
}

// Address returns the wallet address and whether the wallet is connected
// (a nil key models a disconnected wallet).
func (w *Wallet) Address() (common.Address, bool) {
	if w.key == nil {
		return common.Address{}, false
	}
	return w.addr, true
}

// ActiveChainID reports the chain the wallet's endpoint is connected to.
func (w *Wallet) ActiveChainID(ctx context.Context) (*big.Int, error) {
	return w.client.Backend().ChainID(ctx)
}

// Balance reads the wallet's current balance.
func (w *Wallet) Balance(ctx context.Context) (types.Amount, error) {
	return w.client.BalanceOf(ctx, w.addr)
}

// SendValue signs and submits a plain value transfer, returning the hash
// before confirmation. The confirm hook runs before signing; a decline
// returns ErrRejected without touching the chain.
func (w *Wallet) SendValue(ctx context.Context, to common.Address, amount types.Amount) (common.Hash, error) {
	if w.key == nil {
		return common.Hash{}, fmt.Errorf("wallet not connected")
	}
	if w.confirm != nil && !w.confirm(to, amount) {
		return common.Hash{}, ErrRejected
	}

	backend := w.client.Backend()
	nonce, err := backend.PendingNonceAt(ctx, w.addr)
	if err != nil {
		return common.Hash{}, fmt.Errorf("wallet nonce: %w", err)
	}
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, to, amount.Wei(), gasLimitTransfer, gasPrice, nil)
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(w.client.RequiredChainID()), w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transfer: %w", err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("submit transfer: %w", err)
	}

	log.Wallet.Info().
		Stringer("to", to).
		Str("amount", amount.Ether()).
		Stringer("tx", signed.Hash()).
		Msg("transfer submitted")
	return signed.Hash(), nil
}
