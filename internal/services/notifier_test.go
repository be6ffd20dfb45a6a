package services_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/shopspring/decimal"

	"contest-miniapp-backend/internal/contest"
	"contest-miniapp-backend/internal/models"
	"contest-miniapp-backend/internal/services"
)

type recordingBot struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	fail bool
}

func (b *recordingBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return tgbotapi.Message{}, errors.New("telegram unavailable")
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func TestWinnerNotifier(t *testing.T) {
	bot := &recordingBot{}
	notifier := services.NewWinnerNotifier(bot)

	settled := contest.Event{
		Type:      contest.EventSettled,
		ContestID: 7,
		Wallets: []contest.WalletChange{
			{UserID: "user_42", Kind: models.TransactionTypeWin, Amount: decimal.RequireFromString("0.01225"), Balance: decimal.RequireFromString("0.05225")},
			{UserID: "player_2", Kind: models.TransactionTypeWin, Amount: decimal.RequireFromString("0.01225")},
		},
	}
	if sent := notifier.Handle(settled); sent != 1 {
		t.Fatalf("Expected one message, sent %d", sent)
	}
	if bot.sent[0].ChatID != 42 || !strings.Contains(bot.sent[0].Text, "#7") {
		t.Errorf("Unexpected message: %+v", bot.sent[0])
	}

	voided := contest.Event{
		Type:      contest.EventRoundVoided,
		ContestID: 8,
		Wallets: []contest.WalletChange{
			{UserID: "user_42", Kind: models.TransactionTypeRefund, Amount: decimal.RequireFromString("0.01")},
		},
	}
	if sent := notifier.Handle(voided); sent != 1 {
		t.Errorf("Expected refund notice, sent %d", sent)
	}

	joined := contest.Event{
		Type:    contest.EventParticipantJoined,
		Wallets: []contest.WalletChange{{UserID: "user_42", Kind: models.TransactionTypeEntry}},
	}
	if sent := notifier.Handle(joined); sent != 0 {
		t.Errorf("Joins should not notify, sent %d", sent)
	}
}

func TestWinnerNotifierSendFailure(t *testing.T) {
	notifier := services.NewWinnerNotifier(&recordingBot{fail: true})

	ev := contest.Event{
		Type:    contest.EventSettled,
		Wallets: []contest.WalletChange{{UserID: "user_1", Kind: models.TransactionTypeWin}},
	}
	if sent := notifier.Handle(ev); sent != 0 {
		t.Errorf("Failed sends must not count, got %d", sent)
	}
}

func TestBroadcasterAttach(t *testing.T) {
	bus := contest.NewEventBus(8)
	broadcaster := services.NewBroadcaster(bus)
	bot := &recordingBot{}

	ctx, cancel := context.WithCancel(context.Background())
	broadcaster.Attach(ctx, "notifier", services.NewWinnerNotifier(bot))

	// Attach subscribes synchronously, so this event is not missed
	bus.Publish(contest.Event{
		Type:    contest.EventSettled,
		Wallets: []contest.WalletChange{{UserID: "user_5", Kind: models.TransactionTypeWin}},
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		bot.mu.Lock()
		n := len(bot.sent)
		bot.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	broadcaster.Wait()

	if len(bot.sent) != 1 {
		t.Errorf("Expected the attached consumer to receive the event, sent %d", len(bot.sent))
	}
}
