package services

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"contest-miniapp-backend/internal/contest"
)

// EventConsumer is anything that drains contest events: persistence, NATS,
// Telegram notifications, websocket clients.
type EventConsumer interface {
	Run(ctx context.Context, events <-chan contest.Event)
}

// Broadcaster attaches consumers to the event bus, each on its own
// goroutine and subscription.
type Broadcaster struct {
	bus *contest.EventBus
	wg  sync.WaitGroup
}

func NewBroadcaster(bus *contest.EventBus) *Broadcaster {
	return &Broadcaster{bus: bus}
}

func (b *Broadcaster) Attach(ctx context.Context, name string, consumer EventConsumer) {
	events, cancel := b.bus.Subscribe(name)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer cancel()

		log.Info().Str("consumer", name).Msg("event consumer started")
		consumer.Run(ctx, events)
		log.Info().Str("consumer", name).Msg("event consumer stopped")
	}()
}

// Wait blocks until every attached consumer has returned.
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}
