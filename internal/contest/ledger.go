package contest

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"contest-miniapp-backend/internal/models"
)

// WalletLoader fetches a persisted wallet. A nil wallet with a nil error
// means the user has none yet. RedisService implements it.
type WalletLoader interface {
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)
}

type LedgerOption func(*Ledger)

// WithWalletLoader makes the ledger pull a user's persisted wallet the
// first time it is touched instead of starting them at the default balance.
func WithWalletLoader(loader WalletLoader) LedgerOption {
	return func(l *Ledger) {
		l.loader = loader
	}
}

// Ledger is the authoritative in-process wallet store. All balance changes
// are local and synchronous; persistence happens elsewhere from events.
type Ledger struct {
	mu              sync.Mutex
	startingBalance decimal.Decimal
	wallets         map[string]*models.Wallet
	loader          WalletLoader
}

func NewLedger(startingBalance decimal.Decimal, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		startingBalance: startingBalance,
		wallets:         make(map[string]*models.Wallet),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load makes sure the wallet is in memory, reading the persisted copy
// through the loader when there is one. The loader runs without the ledger
// lock held. On error nothing is installed, so a default wallet can never
// shadow the stored one.
func (l *Ledger) Load(ctx context.Context, userID string) error {
	if l.loader == nil || l.has(userID) {
		return nil
	}

	persisted, err := l.loader.GetWallet(ctx, userID)
	if err != nil {
		return fmt.Errorf("load wallet %s: %w", userID, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.wallets[userID]; ok {
		return nil
	}
	if persisted != nil {
		w := *persisted
		w.UserID = userID
		if w.Balance.IsNegative() {
			w.Balance = decimal.Zero
		}
		l.wallets[userID] = &w
		return nil
	}
	l.wallets[userID] = models.NewWallet(userID, l.startingBalance)
	return nil
}

func (l *Ledger) has(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.wallets[userID]
	return ok
}

// Seed installs a persisted wallet unless the ledger already tracks one for
// that user, in which case the in-process state wins.
func (l *Ledger) Seed(w models.Wallet) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.wallets[w.UserID]; ok {
		return false
	}
	if w.Balance.IsNegative() {
		w.Balance = decimal.Zero
	}
	l.wallets[w.UserID] = &w
	return true
}

// Wallet returns the user's wallet, loading it first when needed. If the
// load fails the caller gets Peek's answer and nothing is stored.
func (l *Ledger) Wallet(userID string) models.Wallet {
	if err := l.Load(context.Background(), userID); err != nil {
		log.Warn().Err(err).Str("participant_id", userID).Msg("wallet load failed")
		return l.Peek(userID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.get(userID)
}

// Peek returns the wallet without creating it. Unknown users get their
// persisted wallet when the loader has one, otherwise a fresh wallet at the
// starting balance. Neither is stored.
func (l *Ledger) Peek(userID string) models.Wallet {
	l.mu.Lock()
	if w, ok := l.wallets[userID]; ok {
		defer l.mu.Unlock()
		return *w
	}
	l.mu.Unlock()

	if l.loader != nil {
		if persisted, err := l.loader.GetWallet(context.Background(), userID); err == nil && persisted != nil {
			return *persisted
		}
	}
	return *models.NewWallet(userID, l.startingBalance)
}

func (l *Ledger) Balance(userID string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(userID).Balance
}

func (l *Ledger) TopUp(userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("top up %s: %w", amount, ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.get(userID)
	w.Balance = w.Balance.Add(amount)
	return w.Balance, nil
}

func (l *Ledger) debit(userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.get(userID)
	if w.Balance.LessThan(amount) {
		return w.Balance, ErrInsufficientBalance
	}
	w.Balance = w.Balance.Sub(amount)
	w.TotalWagered = w.TotalWagered.Add(amount)
	return w.Balance, nil
}

func (l *Ledger) refund(userID string, amount decimal.Decimal) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.get(userID)
	w.Balance = w.Balance.Add(amount)
	w.TotalWagered = w.TotalWagered.Sub(amount)
	if w.TotalWagered.IsNegative() {
		w.TotalWagered = decimal.Zero
	}
	return w.Balance
}

// settle counts the contest for every participant and credits the payout
// to each winner.
func (l *Ledger) settle(participants []models.Participant, s *models.Settlement) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range participants {
		l.get(p.ID).ContestsPlayed++
	}
	for _, winner := range s.Winners {
		w := l.get(winner.ID)
		w.Balance = w.Balance.Add(s.PayoutPerWinner)
		w.TotalEarnings = w.TotalEarnings.Add(s.PayoutPerWinner)
		w.Wins++
	}
}

func (l *Ledger) get(userID string) *models.Wallet {
	w, ok := l.wallets[userID]
	if !ok {
		w = models.NewWallet(userID, l.startingBalance)
		l.wallets[userID] = w
	}
	return w
}
