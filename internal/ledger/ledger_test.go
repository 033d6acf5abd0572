package ledger

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethwar/arena/internal/replica"
	"github.com/ethwar/arena/pkg/types"
)

var (
	walletA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	walletB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func record(wallet common.Address, ether string, millis int64) types.StakeRecord {
	return types.StakeRecord{
		Wallet:    wallet,
		Amount:    types.MustParseEther(ether),
		Timestamp: millis,
		TxRef:     common.HexToHash("0x01"),
	}
}

func setupLedger(t *testing.T) (*Ledger, *replica.Memory) {
	t.Helper()
	store := replica.NewMemory("peer-a", true)
	return New(store), store
}

func TestAppendAndReadAll(t *testing.T) {
	l, _ := setupLedger(t)

	if err := l.AppendRecord(record(walletA, "0.04", 100)); err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}
	if err := l.AppendRecord(record(walletB, "0.04", 200)); err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}

	recs := l.ReadAll()
	if len(recs) != 2 {
		t.Fatalf("ReadAll = %d records, want 2", len(recs))
	}
	if recs[0].Wallet != walletA || recs[1].Wallet != walletB {
		t.Errorf("records out of order: %+v", recs)
	}

	if !l.HasStaked(walletA) {
		t.Error("HasStaked(walletA) = false")
	}
	if l.HasStaked(common.HexToAddress("0xcc")) {
		t.Error("HasStaked reported a wallet that never staked")
	}
}

func TestDuplicateStakeRejected(t *testing.T) {
	l, _ := setupLedger(t)

	if err := l.AppendRecord(record(walletA, "0.04", 100)); err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}
	err := l.AppendRecord(record(walletA, "0.04", 200))
	if !errors.Is(err, ErrDuplicateStake) {
		t.Errorf("second stake = %v, want ErrDuplicateStake", err)
	}
	if got := len(l.ReadAll()); got != 1 {
		t.Errorf("ReadAll = %d records after rejected duplicate, want 1", got)
	}
}

func TestReadAllSkipsMalformed(t *testing.T) {
	l, store := setupLedger(t)

	store.ApplyRemoteAppend(replica.SlotStakingHistory, []byte("not json"))
	if err := l.AppendRecord(record(walletA, "0.04", 100)); err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}

	recs := l.ReadAll()
	if len(recs) != 1 || recs[0].Wallet != walletA {
		t.Errorf("ReadAll = %+v", recs)
	}
}

func TestReadAllFirstRecordWinsPerWallet(t *testing.T) {
	l, store := setupLedger(t)

	// A replayed record for the same wallet can slip in via another peer.
	first, _ := json.Marshal(record(walletA, "0.04", 100))
	second, _ := json.Marshal(record(walletA, "0.08", 200))
	store.ApplyRemoteAppend(replica.SlotStakingHistory, first)
	store.ApplyRemoteAppend(replica.SlotStakingHistory, second)

	recs := l.ReadAll()
	if len(recs) != 1 {
		t.Fatalf("ReadAll = %d records, want 1", len(recs))
	}
	if recs[0].Amount.Ether() != "0.04" {
		t.Errorf("kept record amount = %s, want the first one", recs[0].Amount)
	}
}

func TestTotalFromRecords(t *testing.T) {
	l, store := setupLedger(t)

	if err := l.AppendRecord(record(walletA, "0.04", 100)); err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}
	if err := l.AppendRecord(record(walletB, "0.04", 200)); err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}
	if got := l.Total(); got.Ether() != "0.08" {
		t.Errorf("Total = %s, want 0.08", got)
	}

	// A drifted replicated total must be corrected from the records.
	stale, _ := json.Marshal(types.MustParseEther("1"))
	store.ApplyRemoteSet(replica.SlotTotalStaked, stale, 1<<60, "peer-z")
	if got := l.Total(); got.Ether() != "0.08" {
		t.Errorf("Total with drifted scalar = %s, want 0.08", got)
	}
}

func TestTotalFallsBackToScalarThenProfiles(t *testing.T) {
	l, store := setupLedger(t)

	// No records yet, but a replicated total arrived.
	cached, _ := json.Marshal(types.MustParseEther("0.12"))
	store.ApplyRemoteSet(replica.SlotTotalStaked, cached, 100, "peer-b")
	if got := l.Total(); got.Ether() != "0.12" {
		t.Errorf("Total from scalar = %s, want 0.12", got)
	}

	// Nothing replicated at all: sum the roster's profiles.
	l2, store2 := setupLedger(t)
	store2.ApplyRemoteState(types.PlayerState{
		PeerID:  "peer-b",
		Profile: &types.PlayerProfile{StakeAmount: types.MustParseEther("0.04")},
	})
	store2.ApplyRemoteState(types.PlayerState{
		PeerID:  "peer-c",
		Profile: &types.PlayerProfile{StakeAmount: types.MustParseEther("0.04")},
	})
	if got := l2.Total(); got.Ether() != "0.08" {
		t.Errorf("Total from profiles = %s, want 0.08", got)
	}
}

func TestGameEndedFirstDeclarationSticks(t *testing.T) {
	l, _ := setupLedger(t)

	if _, ok := l.GameEnded(); ok {
		t.Fatal("GameEnded before any declaration")
	}

	end := GameEnd{Winner: walletA, Name: "ace", EndedAt: 100}
	if err := l.SetGameEnded(end); err != nil {
		t.Fatalf("SetGameEnded: %v", err)
	}
	got, ok := l.GameEnded()
	if !ok || got.Winner != walletA {
		t.Fatalf("GameEnded = %+v, %v", got, ok)
	}

	// Re-declaring, even with a different winner, changes nothing.
	if err := l.SetGameEnded(GameEnd{Winner: walletB, EndedAt: 200}); err != nil {
		t.Fatalf("SetGameEnded again: %v", err)
	}
	got, _ = l.GameEnded()
	if got.Winner != walletA {
		t.Errorf("winner changed after re-declaration: %s", got.Winner)
	}
}

func TestRedeemClaim(t *testing.T) {
	l, _ := setupLedger(t)

	if _, ok := l.RedeemedBy(); ok {
		t.Fatal("RedeemedBy before any claim")
	}

	l.SetRedeemedBy(RedeemClaim{Wallet: walletA, TxRef: common.HexToHash("0x02"), ClaimedAt: 100})
	claim, ok := l.RedeemedBy()
	if !ok || claim.Wallet != walletA {
		t.Errorf("RedeemedBy = %+v, %v", claim, ok)
	}
}
