package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var avatars = []string{"🎮", "🤖", "👾", "🎯", "🚀", "⭐", "🔥", "💎"}

func GenerateTransactionID() string {
	return fmt.Sprintf("tx_%s_%d",
		time.Now().Format("20060102"),
		uuid.New().ID())
}

func GenerateSessionID() string {
	return uuid.New().String()
}

// UserParticipantID maps a Telegram user id to its contest identity.
func UserParticipantID(telegramID int64) string {
	return "user_" + strconv.FormatInt(telegramID, 10)
}

// TelegramIDFromParticipant is the inverse of UserParticipantID. It returns
// false for simulated players.
func TelegramIDFromParticipant(participantID string) (int64, bool) {
	raw, ok := strings.CutPrefix(participantID, "user_")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// AvatarFor picks a stable avatar for a participant slot.
func AvatarFor(index int) string {
	if index < 0 {
		index = -index
	}
	return avatars[index%len(avatars)]
}

func NewParticipant(id, name, avatar string) Participant {
	if name == "" {
		name = id
	}
	if avatar == "" {
		avatar = AvatarFor(len(id))
	}
	return Participant{ID: id, DisplayName: name, AvatarToken: avatar}
}

func (r *TopUpRequest) Validate(max decimal.Decimal) error {
	if !r.Amount.IsPositive() {
		return fmt.Errorf("top-up amount must be positive")
	}
	if r.Amount.GreaterThan(max) {
		return fmt.Errorf("maximum top-up is %s SOL", max.String())
	}
	if r.Amount.Exponent() < -9 {
		return fmt.Errorf("amount has more than 9 decimal places")
	}
	return nil
}

func FormatSOL(amount decimal.Decimal) string {
	return amount.StringFixed(4) + " SOL"
}

func NewWallet(userID string, startingBalance decimal.Decimal) *Wallet {
	return &Wallet{
		UserID:        userID,
		Balance:       startingBalance,
		TotalEarnings: decimal.Zero,
		TotalWagered:  decimal.Zero,
	}
}
