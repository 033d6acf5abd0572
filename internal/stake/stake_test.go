package stake

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethwar/arena/internal/chain"
	"github.com/ethwar/arena/internal/chain/chaintest"
	"github.com/ethwar/arena/internal/ledger"
	"github.com/ethwar/arena/internal/localstate"
	"github.com/ethwar/arena/internal/replica"
	"github.com/ethwar/arena/internal/storage"
	"github.com/ethwar/arena/internal/wallet"
	"github.com/ethwar/arena/pkg/types"
)

const testChainID = 50312

var (
	treasuryAddr = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	playerAddr   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	stakeTxRef   = common.HexToHash("0xabcd")
)

// fakeWallet satisfies Wallet without real keys.
type fakeWallet struct {
	addr      common.Address
	connected bool
	chainID   *big.Int
	balance   types.Amount
	sendErr   error

	sent       int
	sentTo     common.Address
	sentAmount types.Amount
}

func (w *fakeWallet) Address() (common.Address, bool) {
	return w.addr, w.connected
}

func (w *fakeWallet) ActiveChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(w.chainID), nil
}

func (w *fakeWallet) Balance(ctx context.Context) (types.Amount, error) {
	return w.balance, nil
}

func (w *fakeWallet) SendValue(ctx context.Context, to common.Address, amount types.Amount) (common.Hash, error) {
	if w.sendErr != nil {
		return common.Hash{}, w.sendErr
	}
	w.sent++
	w.sentTo = to
	w.sentAmount = amount
	return stakeTxRef, nil
}

type flowEnv struct {
	flow    *Flow
	wallet  *fakeWallet
	backend *chaintest.Backend
	ledger  *ledger.Ledger
	local   *localstate.Store
	store   *replica.Memory
}

func setupFlow(t *testing.T) *flowEnv {
	t.Helper()

	backend := chaintest.New(testChainID)
	client, err := chain.NewClient(backend, chain.Config{
		RequiredChainID: big.NewInt(testChainID),
		ConfirmTimeout:  200 * time.Millisecond,
		PollInterval:    5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("chain.NewClient: %v", err)
	}

	store := replica.NewMemory("peer-a", true)
	led := ledger.New(store)
	local := localstate.New(storage.NewMemory())
	fw := &fakeWallet{
		addr:      playerAddr,
		connected: true,
		chainID:   big.NewInt(testChainID),
		balance:   types.MustParseEther("1"),
	}

	flow, err := NewFlow(Config{
		Treasury:     treasuryAddr,
		ExplorerBase: "https://shannon-explorer.somnia.network",
	}, fw, client, led, local, store)
	if err != nil {
		t.Fatalf("NewFlow: %v", err)
	}

	return &flowEnv{flow: flow, wallet: fw, backend: backend, ledger: led, local: local, store: store}
}

func submit(env *flowEnv) (Receipt, error) {
	return env.flow.Submit(context.Background(), types.MustParseEther("0.04"),
		types.PlayerProfile{DisplayName: "ace"})
}

func TestSubmitSuccess(t *testing.T) {
	env := setupFlow(t)
	env.backend.Confirm(stakeTxRef)

	rec, err := submit(env)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.TxRef != stakeTxRef {
		t.Errorf("receipt tx = %s", rec.TxRef)
	}
	if rec.ExplorerURL != "https://shannon-explorer.somnia.network/tx/"+stakeTxRef.Hex() {
		t.Errorf("explorer url = %q", rec.ExplorerURL)
	}
	if env.wallet.sentTo != treasuryAddr {
		t.Errorf("transfer went to %s, want treasury", env.wallet.sentTo)
	}

	if !env.ledger.HasStaked(playerAddr) {
		t.Error("ledger has no record after confirmed stake")
	}
	if !env.local.HasStaked() {
		t.Error("local staked flag not set")
	}

	players := env.store.Players()
	if len(players) != 1 || players[0].Profile == nil {
		t.Fatalf("roster after stake: %+v", players)
	}
	if players[0].Profile.StakeAmount.Ether() != "0.04" {
		t.Errorf("announced stake = %s", players[0].Profile.StakeAmount)
	}

	if got := env.flow.Phase(); got != PhaseStaked {
		t.Errorf("phase = %s, want staked", got)
	}
	env.flow.Acknowledge()
	if got := env.flow.Phase(); got != PhaseIdle {
		t.Errorf("phase after acknowledge = %s, want idle", got)
	}
}

func TestSubmitWalletNotConnected(t *testing.T) {
	env := setupFlow(t)
	env.wallet.connected = false

	_, err := submit(env)
	if !errors.Is(err, ErrWalletNotConnected) {
		t.Errorf("Submit = %v, want ErrWalletNotConnected", err)
	}
}

func TestSubmitWrongNetworkBeforeSigning(t *testing.T) {
	env := setupFlow(t)
	env.wallet.chainID = big.NewInt(1)

	_, err := submit(env)
	if !errors.Is(err, chain.ErrWrongNetwork) {
		t.Fatalf("Submit = %v, want ErrWrongNetwork", err)
	}
	if env.wallet.sent != 0 {
		t.Error("wallet saw a signature request despite wrong network")
	}
	if got := env.flow.Phase(); got != PhaseIdle {
		t.Errorf("phase after failure = %s, want idle", got)
	}
}

func TestSubmitAlreadyStakedLocalFlag(t *testing.T) {
	env := setupFlow(t)
	if err := env.local.SetStaked(); err != nil {
		t.Fatalf("SetStaked: %v", err)
	}

	_, err := submit(env)
	if !errors.Is(err, ErrAlreadyStaked) {
		t.Errorf("Submit = %v, want ErrAlreadyStaked", err)
	}
	if env.wallet.sent != 0 {
		t.Error("wallet saw a signature request despite prior stake")
	}

	// The prior-stake check comes before every wallet interaction, so it wins
	// even with the wallet disconnected.
	env.wallet.connected = false
	if _, err := submit(env); !errors.Is(err, ErrAlreadyStaked) {
		t.Errorf("Submit with wallet disconnected = %v, want ErrAlreadyStaked", err)
	}
}

func TestSubmitAlreadyStakedInLedger(t *testing.T) {
	env := setupFlow(t)
	// Another device staked with the same wallet; only the ledger knows.
	if err := env.ledger.AppendRecord(types.StakeRecord{
		Wallet: playerAddr,
		Amount: types.MustParseEther("0.04"),
		TxRef:  common.HexToHash("0x01"),
	}); err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}

	_, err := submit(env)
	if !errors.Is(err, ErrAlreadyStaked) {
		t.Errorf("Submit = %v, want ErrAlreadyStaked", err)
	}
}

func TestSubmitZeroAmount(t *testing.T) {
	env := setupFlow(t)

	_, err := env.flow.Submit(context.Background(), types.Amount{}, types.PlayerProfile{})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Submit(0) = %v, want ErrInvalidAmount", err)
	}
	if env.wallet.sent != 0 {
		t.Error("wallet saw a signature request despite zero amount")
	}
}

func TestSubmitPlayerChosenAmount(t *testing.T) {
	env := setupFlow(t)
	env.backend.Confirm(stakeTxRef)

	// The wager is the player's call, not a fixed room constant.
	rec, err := env.flow.Submit(context.Background(), types.MustParseEther("0.1"),
		types.PlayerProfile{DisplayName: "whale"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.Amount.Ether() != "0.1" {
		t.Errorf("receipt amount = %s, want 0.1", rec.Amount)
	}
	if env.wallet.sentAmount.Ether() != "0.1" {
		t.Errorf("transfer amount = %s, want 0.1", env.wallet.sentAmount)
	}
	if env.ledger.Total().Ether() != "0.1" {
		t.Errorf("pool total = %s, want 0.1", env.ledger.Total())
	}
}

func TestSubmitInsufficientBalance(t *testing.T) {
	env := setupFlow(t)
	env.wallet.balance = types.MustParseEther("0.03")

	_, err := submit(env)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Submit = %v, want ErrInsufficientBalance", err)
	}
	if env.wallet.sent != 0 {
		t.Error("wallet saw a signature request despite low balance")
	}
}

func TestSubmitDeclinedReturnsToIdle(t *testing.T) {
	env := setupFlow(t)
	env.wallet.sendErr = wallet.ErrRejected

	_, err := submit(env)
	if !errors.Is(err, wallet.ErrRejected) {
		t.Fatalf("Submit = %v, want ErrRejected", err)
	}
	if got := env.flow.Phase(); got != PhaseIdle {
		t.Errorf("phase after decline = %s, want idle", got)
	}
	if env.ledger.HasStaked(playerAddr) || env.local.HasStaked() {
		t.Error("declined stake left state behind")
	}

	// The player can retry right away.
	env.wallet.sendErr = nil
	env.backend.Confirm(stakeTxRef)
	if _, err := submit(env); err != nil {
		t.Errorf("retry after decline: %v", err)
	}
}

func TestSubmitTimeoutLeavesNoRecord(t *testing.T) {
	env := setupFlow(t)
	// No receipt ever appears for the transfer.

	_, err := submit(env)
	if !errors.Is(err, chain.ErrConfirmationTimeout) {
		t.Fatalf("Submit = %v, want ErrConfirmationTimeout", err)
	}
	if env.ledger.HasStaked(playerAddr) {
		t.Error("unconfirmed stake was recorded")
	}
	if got := env.flow.Phase(); got != PhaseIdle {
		t.Errorf("phase after timeout = %s, want idle", got)
	}
}

func TestSubmitTimeoutThenRetryResumesSameTransfer(t *testing.T) {
	env := setupFlow(t)
	// No receipt appears, so the first attempt times out after signing.
	_, err := submit(env)
	if !errors.Is(err, chain.ErrConfirmationTimeout) {
		t.Fatalf("Submit = %v, want ErrConfirmationTimeout", err)
	}
	if env.wallet.sent != 1 {
		t.Fatalf("transfers signed = %d, want 1", env.wallet.sent)
	}

	// The transfer lands late. A retry must wait on the original hash, never
	// sign a second transfer for the same stake.
	env.backend.Confirm(stakeTxRef)
	rec, err := submit(env)
	if err != nil {
		t.Fatalf("retry after timeout: %v", err)
	}
	if env.wallet.sent != 1 {
		t.Errorf("transfers signed after retry = %d, want 1", env.wallet.sent)
	}
	if rec.TxRef != stakeTxRef {
		t.Errorf("receipt tx = %s, want the original transfer", rec.TxRef)
	}
	if !env.ledger.HasStaked(playerAddr) {
		t.Error("ledger has no record after the resumed stake")
	}
}

func TestSubmitWhileBusy(t *testing.T) {
	env := setupFlow(t)
	env.flow.phase = PhaseConfirming

	_, err := submit(env)
	if !errors.Is(err, ErrBusy) {
		t.Errorf("Submit = %v, want ErrBusy", err)
	}
}

func TestNewRoomCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := NewRoomCode()
		if err != nil {
			t.Fatalf("NewRoomCode: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("code %q is not 6 digits", code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("code %q has non-digit", code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Error("50 generated codes were all identical")
	}
}
