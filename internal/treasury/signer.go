// Package treasury implements the custodial signer that holds staked funds
// and pays out the winner. The signer is an explicitly constructed service —
// there is no process-wide instance — so flows receive it by injection and
// tests substitute a signer built over a fake backend.
package treasury

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ethwar/arena/internal/chain"
	"github.com/ethwar/arena/internal/log"
	"github.com/ethwar/arena/pkg/types"
)

// gasLimitTransfer is the fixed gas cost of a plain value transfer.
const gasLimitTransfer = 21000

// ErrUnavailable means the treasury has no signing key configured. This is a
// permanent configuration error for the current process: payouts must never
// silently proceed without a custodial key.
var ErrUnavailable = errors.New("treasury not configured")

// ErrInsufficient is the sentinel matched by errors.Is for balance failures.
// The concrete error is an *InsufficientError carrying both figures.
var ErrInsufficient = errors.New("insufficient treasury balance")

// InsufficientError reports a payout that exceeds the treasury balance.
type InsufficientError struct {
	Have types.Amount
	Need types.Amount
}

// Error implements the error interface.
func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient treasury balance: have %s, need %s", e.Have, e.Need)
}

// Is makes errors.Is(err, ErrInsufficient) match.
func (e *InsufficientError) Is(target error) bool {
	return target == ErrInsufficient
}

// Config holds treasury settings.
type Config struct {
	// PrivateKeyHex is the custodial signing key (hex, with or without 0x).
	// Empty means the treasury runs unconfigured: status and address reads
	// still work where possible, but every payout fails with ErrUnavailable.
	PrivateKeyHex string

	// AddressOverride, when non-zero, is reported as the staking destination
	// instead of the address derived from the key. Lets a deployment receive
	// stakes at a cold address while a hot key pays out.
	AddressOverride common.Address
}

// Status is the derived health snapshot of the treasury. It is recomputed on
// demand, never stored.
type Status struct {
	Initialized bool
	Funded      bool
	Balance     types.Amount
	Address     common.Address
	Err         string
}

// Signer is the custodial treasury service.
type Signer struct {
	key      *ecdsa.PrivateKey // nil when unconfigured
	derived  common.Address
	override common.Address
	client   *chain.Client
}

// New constructs a treasury signer. A present-but-invalid key is a hard
// configuration error; an absent key yields an unconfigured signer.
func New(cfg Config, client *chain.Client) (*Signer, error) {
	s := &Signer{override: cfg.AddressOverride, client: client}

	if cfg.PrivateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse treasury key: %w", err)
		}
		s.key = key
		s.derived = crypto.PubkeyToAddress(key.PublicKey)
	} else {
		log.Treasury.Warn().Msg("no treasury key configured; payouts disabled")
	}
	return s, nil
}

// Address returns the address players stake to, and whether one is known.
// The override wins over the derived address.
func (s *Signer) Address() (common.Address, bool) {
	if s.override != (common.Address{}) {
		return s.override, true
	}
	if s.key != nil {
		return s.derived, true
	}
	return common.Address{}, false
}

// payoutAddress is the account the signing key controls. Distinct from
// Address() when an override is set.
func (s *Signer) payoutAddress() (common.Address, error) {
	if s.key == nil {
		return common.Address{}, ErrUnavailable
	}
	return s.derived, nil
}

// Balance reads the payout account's balance.
func (s *Signer) Balance(ctx context.Context) (types.Amount, error) {
	from, err := s.payoutAddress()
	if err != nil {
		return types.Amount{}, err
	}
	return s.client.BalanceOf(ctx, from)
}

// Pay submits a value transfer from the treasury to the recipient and returns
// the transaction hash before confirmation. The balance is checked
// immediately before submission; a shortfall returns *InsufficientError with
// both figures and nothing is submitted.
func (s *Signer) Pay(ctx context.Context, to common.Address, amount types.Amount) (common.Hash, error) {
	from, err := s.payoutAddress()
	if err != nil {
		return common.Hash{}, err
	}
	if err := s.client.VerifyNetwork(ctx); err != nil {
		return common.Hash{}, err
	}

	balance, err := s.client.BalanceOf(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("treasury balance: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return common.Hash{}, &InsufficientError{Have: balance, Need: amount}
	}

	backend := s.client.Backend()
	nonce, err := backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("treasury nonce: %w", err)
	}
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, to, amount.Wei(), gasLimitTransfer, gasPrice, nil)
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(s.client.RequiredChainID()), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign payout: %w", err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("submit payout: %w", err)
	}

	log.Treasury.Info().
		Stringer("to", to).
		Str("amount", amount.Ether()).
		Stringer("tx", signed.Hash()).
		Msg("payout submitted")
	return signed.Hash(), nil
}

// Status computes the treasury health snapshot.
func (s *Signer) Status(ctx context.Context) Status {
	addr, known := s.Address()
	st := Status{Initialized: s.key != nil, Address: addr}
	if !known && !st.Initialized {
		st.Err = ErrUnavailable.Error()
		return st
	}
	if !st.Initialized {
		st.Err = "address known but signing key missing"
		return st
	}

	balance, err := s.Balance(ctx)
	if err != nil {
		st.Err = err.Error()
		return st
	}
	st.Balance = balance
	st.Funded = !balance.IsZero()
	return st
}

// VerifyStake checks that a claimed staking transaction exists, paid the
// treasury, and carried the expected amount.
func (s *Signer) VerifyStake(ctx context.Context, txRef common.Hash, want types.Amount) error {
	addr, known := s.Address()
	if !known {
		return ErrUnavailable
	}
	to, value, err := s.client.Transfer(ctx, txRef)
	if err != nil {
		return err
	}
	if to == nil || *to != addr {
		return fmt.Errorf("stake tx %s does not pay the treasury", txRef)
	}
	if value.Cmp(want) != 0 {
		return fmt.Errorf("stake tx %s amount mismatch: got %s, want %s", txRef, value, want)
	}
	return nil
}
