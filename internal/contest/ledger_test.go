package contest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"contest-miniapp-backend/internal/contest"
	"contest-miniapp-backend/internal/models"
)

func TestLedgerStartingBalance(t *testing.T) {
	ledger := contest.NewLedger(decimal.RequireFromString("0.05"))

	w := ledger.Wallet("user_1")
	if w.UserID != "user_1" || !w.Balance.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("Unexpected new wallet: %+v", w)
	}
}

func TestLedgerSeed(t *testing.T) {
	ledger := contest.NewLedger(decimal.RequireFromString("0.05"))

	if !ledger.Seed(models.Wallet{UserID: "user_1", Balance: decimal.RequireFromString("1.5"), Wins: 3}) {
		t.Fatal("Seeding an unknown wallet should succeed")
	}
	if ledger.Seed(models.Wallet{UserID: "user_1", Balance: decimal.Zero}) {
		t.Error("Seeding must not overwrite live state")
	}
	if w := ledger.Wallet("user_1"); !w.Balance.Equal(decimal.RequireFromString("1.5")) || w.Wins != 3 {
		t.Errorf("Seeded wallet lost: %+v", w)
	}

	ledger.Seed(models.Wallet{UserID: "user_2", Balance: decimal.RequireFromString("-1")})
	if !ledger.Balance("user_2").IsZero() {
		t.Errorf("Negative persisted balance should clamp to zero, got %s", ledger.Balance("user_2"))
	}
}

func TestLedgerTopUp(t *testing.T) {
	ledger := contest.NewLedger(decimal.Zero)

	balance, err := ledger.TopUp("user_1", decimal.RequireFromString("0.25"))
	if err != nil || !balance.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("TopUp: balance %s err %v", balance, err)
	}

	for _, amount := range []string{"0", "-0.1"} {
		if _, err := ledger.TopUp("user_1", decimal.RequireFromString(amount)); !errors.Is(err, contest.ErrInvalidAmount) {
			t.Errorf("TopUp %s: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if !ledger.Balance("user_1").Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("Rejected top up changed balance: %s", ledger.Balance("user_1"))
	}
}

func TestLedgerPeekDoesNotCreate(t *testing.T) {
	ledger := contest.NewLedger(decimal.RequireFromString("0.05"))

	w := ledger.Peek("user_9")
	if !w.Balance.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("Peek should report the starting balance, got %s", w.Balance)
	}

	ledger.Seed(models.Wallet{UserID: "user_9", Balance: decimal.RequireFromString("2")})
	if w := ledger.Peek("user_9"); !w.Balance.Equal(decimal.RequireFromString("2")) {
		t.Errorf("Peek after seed: got %s", w.Balance)
	}
}

type memoryWallets struct {
	wallets map[string]*models.Wallet
	err     error
	calls   int
}

func (m *memoryWallets) GetWallet(_ context.Context, userID string) (*models.Wallet, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.wallets[userID], nil
}

func TestLedgerLoadsPersistedWallet(t *testing.T) {
	store := &memoryWallets{wallets: map[string]*models.Wallet{
		"user_7": {UserID: "user_7", Balance: decimal.RequireFromString("5"), Wins: 3},
	}}
	ledger := contest.NewLedger(decimal.RequireFromString("0.05"), contest.WithWalletLoader(store))

	if w := ledger.Wallet("user_7"); !w.Balance.Equal(decimal.RequireFromString("5")) || w.Wins != 3 {
		t.Errorf("Expected the persisted wallet, got %+v", w)
	}
	if w := ledger.Wallet("user_8"); !w.Balance.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("Unknown users start at the default balance, got %s", w.Balance)
	}

	calls := store.calls
	ledger.Wallet("user_7")
	if store.calls != calls {
		t.Errorf("A loaded wallet should not be fetched again")
	}
}

func TestLedgerLoadFailureStoresNothing(t *testing.T) {
	store := &memoryWallets{err: errors.New("redis down")}
	ledger := contest.NewLedger(decimal.RequireFromString("0.05"), contest.WithWalletLoader(store))

	if err := ledger.Load(context.Background(), "user_1"); err == nil {
		t.Fatal("Expected the load error")
	}

	store.err = nil
	store.wallets = map[string]*models.Wallet{
		"user_1": {UserID: "user_1", Balance: decimal.RequireFromString("2")},
	}
	if err := ledger.Load(context.Background(), "user_1"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := ledger.Balance("user_1"); !got.Equal(decimal.RequireFromString("2")) {
		t.Errorf("A failed load must not leave a default wallet behind, got %s", got)
	}
}

func TestLedgerPeekUsesLoaderWithoutStoring(t *testing.T) {
	store := &memoryWallets{wallets: map[string]*models.Wallet{
		"user_3": {UserID: "user_3", Balance: decimal.RequireFromString("1"), Wins: 2, ContestsPlayed: 4},
	}}
	ledger := contest.NewLedger(decimal.RequireFromString("0.05"), contest.WithWalletLoader(store))

	if w := ledger.Peek("user_3"); w.Wins != 2 {
		t.Errorf("Peek should report persisted stats, got %+v", w)
	}

	store.wallets["user_3"].Wins = 5
	if w := ledger.Peek("user_3"); w.Wins != 5 {
		t.Errorf("Peek should not cache the persisted wallet, got %+v", w)
	}
}
