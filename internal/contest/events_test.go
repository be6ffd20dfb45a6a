package contest_test

import (
	"testing"

	"contest-miniapp-backend/internal/contest"
)

func TestEventBusFanOut(t *testing.T) {
	bus := contest.NewEventBus(4)
	a, cancelA := bus.Subscribe("a")
	b, cancelB := bus.Subscribe("b")
	defer cancelA()
	defer cancelB()

	bus.Publish(contest.Event{Type: contest.EventContestStarted, ContestID: 1})

	for name, ch := range map[string]<-chan contest.Event{"a": a, "b": b} {
		select {
		case ev := <-ch:
			if ev.ContestID != 1 {
				t.Errorf("%s: unexpected event %+v", name, ev)
			}
		default:
			t.Errorf("%s: event not delivered", name)
		}
	}
}

func TestEventBusDropsWhenFull(t *testing.T) {
	bus := contest.NewEventBus(2)
	ch, cancel := bus.Subscribe("slow")
	defer cancel()

	for i := int64(1); i <= 5; i++ {
		bus.Publish(contest.Event{Type: contest.EventPhaseChanged, ContestID: i})
	}

	if len(ch) != 2 {
		t.Fatalf("Expected 2 buffered events, got %d", len(ch))
	}
	if ev := <-ch; ev.ContestID != 1 {
		t.Errorf("Expected oldest event kept, got %d", ev.ContestID)
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := contest.NewEventBus(1)
	ch, cancel := bus.Subscribe("gone")

	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("Channel should be closed after cancel")
	}
	// must not panic on a closed subscriber
	bus.Publish(contest.Event{Type: contest.EventSettled})
}
