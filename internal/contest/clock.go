package contest

import (
	"time"

	"contest-miniapp-backend/internal/models"
)

const (
	DefaultRoundDuration     = 60 * time.Second
	DefaultCountdownDuration = 30 * time.Second
	DefaultSettlementWindow  = 5 * time.Second
	MinParticipants          = 2
	MaxCapacity              = 30
)

// Clock derives the phase of a round from its start time. It holds no
// state and is safe for concurrent use.
type Clock struct {
	RoundDuration     time.Duration
	CountdownDuration time.Duration
	SettlementWindow  time.Duration
	MinParticipants   int
}

func NewClock(round, countdown, window time.Duration) Clock {
	return Clock{
		RoundDuration:     round,
		CountdownDuration: countdown,
		SettlementWindow:  window,
		MinParticipants:   MinParticipants,
	}
}

func DefaultClock() Clock {
	return NewClock(DefaultRoundDuration, DefaultCountdownDuration, DefaultSettlementWindow)
}

type Tick struct {
	Phase            models.Phase
	SecondsRemaining int
}

// Tick never returns PhaseSettled; that phase is set by the orchestrator.
func (c Clock) Tick(startedAt, now time.Time, participants int) Tick {
	remaining := c.remaining(startedAt, now, c.RoundDuration)

	tick := Tick{SecondsRemaining: ceilSeconds(remaining)}
	switch {
	case participants < c.MinParticipants:
		tick.Phase = models.PhaseWaiting
	case remaining > c.SettlementWindow:
		tick.Phase = models.PhaseActive
	default:
		tick.Phase = models.PhaseFinalizing
	}
	return tick
}

// Countdown is the faster display countdown for the interactive view. It
// does not affect settlement.
func (c Clock) Countdown(startedAt, now time.Time) int {
	if c.CountdownDuration <= 0 {
		return 0
	}
	return ceilSeconds(c.remaining(startedAt, now, c.CountdownDuration))
}

// InWindow reports whether the round has reached its settlement window,
// independent of how many participants it has.
func (c Clock) InWindow(startedAt, now time.Time) bool {
	return c.Overdue(startedAt, now) || c.remaining(startedAt, now, c.RoundDuration) <= c.SettlementWindow
}

// Overdue reports whether a full round has elapsed since startedAt, which
// means the caller missed the window and the modular clock has wrapped.
func (c Clock) Overdue(startedAt, now time.Time) bool {
	return now.Sub(startedAt) >= c.RoundDuration
}

func (c Clock) remaining(startedAt, now time.Time, period time.Duration) time.Duration {
	elapsed := now.Sub(startedAt)
	if elapsed < 0 {
		// start in the future: the round has not begun, full period left
		return period
	}
	remaining := period - elapsed%period
	if remaining < 0 {
		return 0
	}
	return remaining
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
