package conversation

import (
	"context"
	"errors"
	"time"

	"salesbot_backend/platform/logger"
)

// ErrNotFound is returned by Backend.Load for an unknown key.
var ErrNotFound = errors.New("conversation not found")

// ErrNoChange may be returned from an Update mutation to skip the write.
var ErrNoChange = errors.New("conversation unchanged")

// Backend is the persistence port. Update must be atomic per key: the
// mutation sees the latest committed record (or a fresh default) and its
// result is written before any other Update for the same key observes it.
type Backend interface {
	Load(ctx context.Context, key Key) (*Conversation, error)
	Update(ctx context.Context, key Key, mutate func(c *Conversation) error) (*Conversation, error)
	List(ctx context.Context, channel string) ([]*Conversation, error)
}

// Store applies the read/write error policy on top of a Backend.
type Store struct {
	backend      Backend
	log          *logger.Logger
	historyLimit int
	now          func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithHistoryLimit bounds the stored history.
func WithHistoryLimit(limit int) Option {
	return func(s *Store) {
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

// NewStore wraps backend.
func NewStore(backend Backend, log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		backend:      backend,
		log:          log,
		historyLimit: 40,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HistoryLimit returns the configured history bound.
func (s *Store) HistoryLimit() int { return s.historyLimit }

// Get returns the record for key, creating and persisting a default one when
// absent. Storage failures degrade to an unpersisted default record.
func (s *Store) Get(ctx context.Context, key Key) *Conversation {
	conv, err := s.backend.Load(ctx, key)
	if err == nil {
		return conv
	}
	if !errors.Is(err, ErrNotFound) {
		s.log.StoreDegraded("get", key.String(), err)
		return New(key, s.now())
	}

	created, err := s.backend.Update(ctx, key, func(*Conversation) error { return nil })
	if err != nil {
		s.log.StoreDegraded("create", key.String(), err)
		return New(key, s.now())
	}
	return created
}

// Merge applies patch atomically. A failed write is retried once; if it fails
// again the locally merged record is returned alongside the error.
func (s *Store) Merge(ctx context.Context, key Key, patch Patch) (*Conversation, error) {
	return s.Update(ctx, key, func(c *Conversation) error {
		patch.Apply(c, s.historyLimit, s.now())
		return nil
	})
}

// Update runs mutate inside the backend's per-key critical section. An error
// from mutate aborts the write and is returned as is; ErrNoChange signals a
// deliberate no-op. Backend failures follow the same policy as Merge.
func (s *Store) Update(ctx context.Context, key Key, mutate func(c *Conversation) error) (*Conversation, error) {
	var mutateErr error
	wrapped := func(c *Conversation) error {
		mutateErr = mutate(c)
		if mutateErr != nil {
			return mutateErr
		}
		if s.historyLimit > 0 && len(c.History) > s.historyLimit {
			c.History = append([]Message(nil), c.History[len(c.History)-s.historyLimit:]...)
		}
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		mutateErr = nil
		conv, err := s.backend.Update(ctx, key, wrapped)
		if mutateErr != nil {
			return conv, mutateErr
		}
		if err == nil {
			return conv, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	s.log.StoreDegraded("update", key.String(), lastErr)
	local := s.Get(ctx, key).Clone()
	if err := mutate(local); err != nil {
		return local, err
	}
	return local, lastErr
}

// ListAll returns every record, optionally filtered to one channel.
func (s *Store) ListAll(ctx context.Context, channel string) ([]*Conversation, error) {
	return s.backend.List(ctx, channel)
}

// MarkLeadCaptured records that a lead was stored for key.
func (s *Store) MarkLeadCaptured(ctx context.Context, key Key, at time.Time) error {
	_, err := s.Merge(ctx, key, Patch{LeadCapturedAt: &at})
	return err
}

// Reset replaces the record for key with a fresh default.
func (s *Store) Reset(ctx context.Context, key Key) (*Conversation, error) {
	return s.Update(ctx, key, func(c *Conversation) error {
		*c = *New(key, s.now())
		return nil
	})
}
