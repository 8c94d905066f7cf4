package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"salesbot_backend/platform/logger"
)

type pingEvent struct {
	BaseEvent
}

func (pingEvent) EventName() string { return "test.ping" }

func TestInMemoryBusPublishReachesAllHandlers(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))
	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		bus.Subscribe("test.ping", HandlerFunc(func(context.Context, Event) error {
			calls.Add(1)
			return nil
		}))
	}

	bus.Publish(context.Background(), pingEvent{BaseEvent: NewBaseEvent()})
	bus.Wait()

	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 handler calls, got %d", got)
	}
}

func TestInMemoryBusPublishSyncJoinsErrors(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))
	boom := errors.New("boom")
	bus.Subscribe("test.ping", HandlerFunc(func(context.Context, Event) error { return boom }))
	bus.Subscribe("test.ping", HandlerFunc(func(context.Context, Event) error { return nil }))

	err := bus.PublishSync(context.Background(), pingEvent{BaseEvent: NewBaseEvent()})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to contain boom, got %v", err)
	}
}

func TestInMemoryBusIgnoresUnknownEvents(t *testing.T) {
	bus := NewInMemoryBus(nil)
	if err := bus.PublishSync(context.Background(), pingEvent{BaseEvent: NewBaseEvent()}); err != nil {
		t.Fatalf("expected no error without handlers, got %v", err)
	}
	bus.Publish(context.Background(), pingEvent{BaseEvent: NewBaseEvent()})
	bus.Wait()
}
