package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Phase string

const (
	PhaseWaiting    Phase = "waiting"
	PhaseActive     Phase = "active"
	PhaseFinalizing Phase = "finalizing"
	PhaseSettled    Phase = "settled"
)

// AcceptsEntries reports whether participants may join during the phase.
func (p Phase) AcceptsEntries() bool {
	return p == PhaseWaiting || p == PhaseActive
}

type TierID string

const (
	TierRookie TierID = "rookie"
	TierPro    TierID = "pro"
	TierElite  TierID = "elite"
)

type Tier struct {
	ID               TierID          `json:"id"`
	Name             string          `json:"name"`
	Amount           decimal.Decimal `json:"amount"`
	RewardMultiplier int             `json:"reward_multiplier"`
}

// DefaultTiers is the tier catalogue offered to players.
func DefaultTiers() map[TierID]Tier {
	return map[TierID]Tier{
		TierRookie: {ID: TierRookie, Name: "ROOKIE", Amount: decimal.RequireFromString("0.01"), RewardMultiplier: 1},
		TierPro:    {ID: TierPro, Name: "PRO", Amount: decimal.RequireFromString("0.05"), RewardMultiplier: 5},
		TierElite:  {ID: TierElite, Name: "ELITE", Amount: decimal.RequireFromString("0.1"), RewardMultiplier: 10},
	}
}

type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	AvatarToken string `json:"avatar"`
}

// ContestView is the read-only picture of the live contest handed to
// pollers and subscribers. It is never mutated after publication.
type ContestView struct {
	ID               int64           `json:"id"`
	Phase            Phase           `json:"phase"`
	Tier             TierID          `json:"tier"`
	EntryFee         decimal.Decimal `json:"entry_fee"`
	StartedAt        time.Time       `json:"started_at"`
	SecondsRemaining int             `json:"time_left"`
	CountdownSeconds int             `json:"countdown"`
	Participants     []Participant   `json:"participants"`
	MaxParticipants  int             `json:"max_participants"`
	PrizePool        decimal.Decimal `json:"prize_pool"`
	WinnerCount      int             `json:"winner_count"`
	Settlement       *Settlement     `json:"settlement,omitempty"`
}

type Settlement struct {
	ContestID       int64           `json:"contest_id"`
	Tier            TierID          `json:"tier"`
	EntryFee        decimal.Decimal `json:"entry_fee"`
	Participants    int             `json:"participants"`
	Winners         []Participant   `json:"winners"`
	PrizePool       decimal.Decimal `json:"prize_pool"`
	PayoutPerWinner decimal.Decimal `json:"payout_per_winner"`
	Dust            decimal.Decimal `json:"dust"`
	Seed            int64           `json:"seed"`
	SettledAt       time.Time       `json:"settled_at"`
}

// HasWinner reports whether the participant is among the settlement winners.
func (s *Settlement) HasWinner(participantID string) bool {
	for _, w := range s.Winners {
		if w.ID == participantID {
			return true
		}
	}
	return false
}

// ContestSnapshot is the handoff record written by whichever process owns the
// contest and read back on startup.
type ContestSnapshot struct {
	ID           int64           `json:"id"`
	StartTime    int64           `json:"startTime"` // unix millis
	Participants []Participant   `json:"participants"`
	EntryFee     decimal.Decimal `json:"entryFee"`
	Tier         TierID          `json:"tier,omitempty"`
}

func (s *ContestSnapshot) StartedAt() time.Time {
	return time.UnixMilli(s.StartTime)
}
