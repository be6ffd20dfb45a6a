package contest

import "errors"

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyJoined       = errors.New("already joined this contest")
	ErrFull                = errors.New("contest is full")
	ErrWrongPhase          = errors.New("contest is not accepting entries")

	// ErrRoundVoided is informational: the round closed without enough
	// participants and was discarded.
	ErrRoundVoided = errors.New("round voided")

	// ErrClockDesync marks a persisted snapshot that cannot be trusted.
	ErrClockDesync = errors.New("contest snapshot out of sync")

	ErrUnknownTier   = errors.New("unknown tier")
	ErrTierLocked    = errors.New("tier can only change before anyone joins")
	ErrInvalidAmount = errors.New("invalid amount")
)

// JoinMessage is the user-facing text for a join rejection.
func JoinMessage(err error) string {
	switch {
	case err == nil:
		return "Successfully joined contest!"
	case errors.Is(err, ErrInsufficientBalance):
		return "Insufficient balance for the entry fee"
	case errors.Is(err, ErrAlreadyJoined):
		return "You are already in this contest!"
	case errors.Is(err, ErrFull):
		return "Contest is full, wait for the next round"
	case errors.Is(err, ErrWrongPhase):
		return "Entries are closed, the round is finishing"
	default:
		return "Failed to join contest"
	}
}
