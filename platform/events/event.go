// Package events is an in-process publish/subscribe bus. Event types live
// with the modules that publish them.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is anything published on the bus. Embed BaseEvent to satisfy it.
type Event interface {
	EventName() string
	EventID() uuid.UUID
	OccurredAt() time.Time
}

// BaseEvent stamps an event with an id and a time.
type BaseEvent struct {
	ID        uuid.UUID `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) EventID() uuid.UUID    { return e.ID }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewBaseEvent stamps the current time.
func NewBaseEvent() BaseEvent {
	return NewBaseEventAt(time.Now())
}

// NewBaseEventAt stamps at, for publishers that run on an injected clock.
func NewBaseEventAt(at time.Time) BaseEvent {
	return BaseEvent{ID: uuid.New(), Timestamp: at.UTC()}
}

// Handler reacts to one event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus routes events by EventName.
type Bus interface {
	// Publish runs handlers asynchronously, detached from ctx cancellation.
	Publish(ctx context.Context, event Event)
	// PublishSync runs handlers in order and joins their errors.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
