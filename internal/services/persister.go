package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"contest-miniapp-backend/internal/contest"
	"contest-miniapp-backend/internal/models"
)

// ContestStore is the persistence the EventPersister writes through.
// RedisService implements it.
type ContestStore interface {
	SaveSnapshot(ctx context.Context, snap models.ContestSnapshot) (bool, error)
	SaveSettlement(ctx context.Context, settlement *models.Settlement) error
	SaveWallet(ctx context.Context, wallet models.Wallet) error
	SaveTransaction(ctx context.Context, tx *models.Transaction) error
}

type SnapshotExporter interface {
	Export() models.ContestSnapshot
}

type WalletReader interface {
	Wallet(userID string) models.Wallet
}

// EventPersister mirrors contest events into durable storage. It runs on
// its own goroutine, off the contest lock; failures are logged and skipped.
type EventPersister struct {
	store        ContestStore
	contest      SnapshotExporter
	wallets      WalletReader
	snapshotFile string
}

func NewEventPersister(store ContestStore, contest SnapshotExporter, wallets WalletReader, snapshotFile string) *EventPersister {
	return &EventPersister{
		store:        store,
		contest:      contest,
		wallets:      wallets,
		snapshotFile: snapshotFile,
	}
}

// Run consumes events until ctx is done or the channel is closed.
func (p *EventPersister) Run(ctx context.Context, events <-chan contest.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := p.Handle(ctx, ev); err != nil {
				log.Error().
					Err(err).
					Str("event_type", string(ev.Type)).
					Int64("contest_id", ev.ContestID).
					Msg("failed to persist event")
			}
		}
	}
}

func (p *EventPersister) Handle(ctx context.Context, ev contest.Event) error {
	if ev.Type != contest.EventWalletUpdated {
		if err := p.saveSnapshot(ctx); err != nil {
			return err
		}
	}

	if ev.Type == contest.EventSettled && ev.Settlement != nil {
		if err := p.store.SaveSettlement(ctx, ev.Settlement); err != nil {
			return err
		}
	}

	for _, change := range ev.Wallets {
		tx := &models.Transaction{
			ID:           models.GenerateTransactionID(),
			UserID:       change.UserID,
			Type:         change.Kind,
			Amount:       change.Amount,
			BalanceAfter: change.Balance,
			ContestID:    ev.ContestID,
			Description:  describe(change.Kind, ev.ContestID),
			CreatedAt:    ev.At,
		}
		if err := p.store.SaveTransaction(ctx, tx); err != nil {
			return err
		}
	}

	for _, userID := range touchedWallets(ev) {
		if _, ok := models.TelegramIDFromParticipant(userID); !ok {
			continue
		}
		if err := p.store.SaveWallet(ctx, p.wallets.Wallet(userID)); err != nil {
			return err
		}
	}
	return nil
}

func (p *EventPersister) saveSnapshot(ctx context.Context) error {
	snap := p.contest.Export()

	written, err := p.store.SaveSnapshot(ctx, snap)
	if err != nil {
		return err
	}
	if !written {
		log.Warn().Int64("contest_id", snap.ID).Msg("newer snapshot already stored")
		return nil
	}

	if p.snapshotFile == "" {
		return nil
	}
	return writeSnapshotFile(p.snapshotFile, snap)
}

// writeSnapshotFile replaces path atomically so readers never see a
// partial document.
func writeSnapshotFile(path string, snap models.ContestSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".contest-state-*")
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func touchedWallets(ev contest.Event) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, change := range ev.Wallets {
		add(change.UserID)
	}
	// settled rounds also bump contests played for the losers
	if ev.Type == contest.EventSettled {
		for _, p := range ev.Participants {
			add(p.ID)
		}
	}
	return ids
}

func describe(kind models.TransactionType, contestID int64) string {
	switch kind {
	case models.TransactionTypeEntry:
		return fmt.Sprintf("Entry fee for contest #%d", contestID)
	case models.TransactionTypeWin:
		return fmt.Sprintf("Prize from contest #%d", contestID)
	case models.TransactionTypeRefund:
		return fmt.Sprintf("Refund for contest #%d", contestID)
	case models.TransactionTypeDeposit:
		return "Wallet top-up"
	default:
		return string(kind)
	}
}
