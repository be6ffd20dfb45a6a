package contest

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"contest-miniapp-backend/internal/models"
)

type EventType string

const (
	EventContestStarted    EventType = "contest_started"
	EventPhaseChanged      EventType = "phase_changed"
	EventParticipantJoined EventType = "participant_joined"
	EventCapacityThreshold EventType = "capacity_threshold"
	EventTierChanged       EventType = "tier_changed"
	EventSettled           EventType = "settled"
	EventRoundVoided       EventType = "round_voided"
	EventWalletUpdated     EventType = "wallet_updated"
)

// Event is an outbound notification. Only the fields relevant to Type are
// set.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	ContestID int64           `json:"contest_id"`
	Phase     models.Phase    `json:"phase,omitempty"`
	Previous  models.Phase    `json:"previous_phase,omitempty"`
	At        time.Time       `json:"at"`
	Count     int             `json:"count,omitempty"`
	Threshold int             `json:"threshold,omitempty"`
	Tier      models.TierID   `json:"tier,omitempty"`
	EntryFee  decimal.Decimal `json:"entry_fee,omitempty"`

	Participant  *models.Participant  `json:"participant,omitempty"`
	Participants []models.Participant `json:"participants,omitempty"`
	Settlement   *models.Settlement   `json:"settlement,omitempty"`

	// Wallets lists participants whose balance changed with this event, with
	// the reason recorded in the ledger history.
	Wallets []WalletChange `json:"wallets,omitempty"`
}

type WalletChange struct {
	UserID  string                 `json:"user_id"`
	Kind    models.TransactionType `json:"kind"`
	Amount  decimal.Decimal        `json:"amount"`
	Balance decimal.Decimal        `json:"balance"`
}

func newEvent(t EventType, contestID int64, at time.Time) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		ContestID: contestID,
		At:        at,
	}
}

// EventBus fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	buffer int
}

func NewEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &EventBus{
		subs:   make(map[int]chan Event),
		buffer: buffer,
	}
}

// Subscribe returns a channel of events and a function that closes it.
func (b *EventBus) Subscribe(name string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	log.Debug().Str("subscriber", name).Int("id", id).Msg("event subscriber added")

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *EventBus) Publish(events ...Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ev := range events {
		for id, ch := range b.subs {
			select {
			case ch <- ev:
			default:
				log.Warn().
					Int("subscriber", id).
					Str("event_type", string(ev.Type)).
					Int64("contest_id", ev.ContestID).
					Msg("subscriber buffer full, dropping event")
			}
		}
	}
}
