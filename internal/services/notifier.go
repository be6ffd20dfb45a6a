package services

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/rs/zerolog/log"

	"contest-miniapp-backend/internal/contest"
	"contest-miniapp-backend/internal/models"
)

// MessageSender is the part of the bot API the notifier needs.
// *tgbotapi.BotAPI satisfies it.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// WinnerNotifier sends a private Telegram message to real users when they
// win a contest or get refunded from a voided one.
type WinnerNotifier struct {
	bot MessageSender
}

func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	log.Info().Str("bot", bot.Self.UserName).Msg("telegram bot authorized")
	return bot, nil
}

func NewWinnerNotifier(bot MessageSender) *WinnerNotifier {
	return &WinnerNotifier{bot: bot}
}

func (n *WinnerNotifier) Run(ctx context.Context, events <-chan contest.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			n.Handle(ev)
		}
	}
}

// Handle sends one message per affected Telegram user. Simulated players
// are skipped.
func (n *WinnerNotifier) Handle(ev contest.Event) int {
	var sent int
	for _, change := range ev.Wallets {
		chatID, ok := models.TelegramIDFromParticipant(change.UserID)
		if !ok {
			continue
		}

		var text string
		switch {
		case ev.Type == contest.EventSettled && change.Kind == models.TransactionTypeWin:
			text = fmt.Sprintf("🏆 You won *%s* in contest #%d!\nBalance: %s",
				models.FormatSOL(change.Amount), ev.ContestID, models.FormatSOL(change.Balance))
		case ev.Type == contest.EventRoundVoided && change.Kind == models.TransactionTypeRefund:
			text = fmt.Sprintf("Contest #%d did not get enough players. Your %s entry was refunded.",
				ev.ContestID, models.FormatSOL(change.Amount))
		default:
			continue
		}

		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := n.bot.Send(msg); err != nil {
			log.Warn().Err(err).Int64("chat_id", chatID).Int64("contest_id", ev.ContestID).Msg("failed to notify user")
			continue
		}
		sent++
	}
	return sent
}
