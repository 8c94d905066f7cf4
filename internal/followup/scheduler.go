package followup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"salesbot_backend/internal/conversation"
	"salesbot_backend/internal/events"
	"salesbot_backend/internal/guard"
	"salesbot_backend/platform/logger"
	"salesbot_backend/platform/metrics"

	"golang.org/x/sync/errgroup"
)

const (
	defaultInterval    = 5 * time.Minute
	defaultParallelism = 4
)

// Sender delivers one outbound message with the channel's retry policy.
type Sender interface {
	Deliver(ctx context.Context, key conversation.Key, text string) error
}

// KeyLocker serializes work per conversation key with in-flight inbound turns.
type KeyLocker interface {
	Lock(key string) func()
}

// TickLock is a lease that lets only one process run a channel's tick.
type TickLock interface {
	Acquire(ctx context.Context, channel string, ttl time.Duration) (bool, error)
}

type Config struct {
	Channel     string
	Interval    time.Duration
	Parallelism int
	Policy      Policy
}

type Deps struct {
	Store  *conversation.Store
	Sender Sender
	Copy   *guard.Copy
	// Locks and TickLock are optional.
	Locks    KeyLocker
	TickLock TickLock
	Bus      events.Bus
	Log      *logger.Logger
}

// Scheduler runs the periodic follow-up pass for one channel.
type Scheduler struct {
	channel     string
	interval    time.Duration
	parallelism int
	policy      Policy

	store    *conversation.Store
	sender   Sender
	copy     *guard.Copy
	locks    KeyLocker
	tickLock TickLock
	bus      events.Bus
	log      *logger.Logger
	now      func() time.Time
}

func New(deps Deps, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}
	if deps.Copy == nil {
		deps.Copy = guard.DefaultCopy()
	}

	return &Scheduler{
		channel:     cfg.Channel,
		interval:    cfg.Interval,
		parallelism: cfg.Parallelism,
		policy:      cfg.Policy,
		store:       deps.Store,
		sender:      deps.Sender,
		copy:        deps.Copy,
		locks:       deps.Locks,
		tickLock:    deps.TickLock,
		bus:         deps.Bus,
		log:         deps.Log.WithChannel(cfg.Channel),
		now:         time.Now,
	}
}

// Channel returns the channel this scheduler serves.
func (s *Scheduler) Channel() string { return s.channel }

// Run ticks once immediately and then on every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	if s == nil || s.store == nil || s.sender == nil {
		return
	}

	s.runTick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.runTick(ctx)
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	sent, err := s.Tick(ctx)
	if err != nil {
		s.log.Warn("follow-up tick failed", "error", err)
		return
	}
	if sent > 0 {
		s.log.Info("follow-up tick complete", "sent", sent)
	}
}

// Tick sends a nudge to every eligible conversation and returns how many were
// delivered. Each conversation is claimed inside the store's critical section
// before sending, so overlapping ticks cannot nudge twice.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	if s.tickLock != nil {
		ok, err := s.tickLock.Acquire(ctx, s.channel, s.leaseTTL())
		switch {
		case err != nil:
			s.log.Warn("follow-up tick lease unavailable, continuing", "error", err)
		case !ok:
			return 0, nil
		}
	}

	convs, err := s.store.ListAll(ctx, s.channel)
	if err != nil {
		return 0, fmt.Errorf("list conversations: %w", err)
	}

	now := s.now()
	var sent atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	for _, conv := range convs {
		if ok, _ := Eligible(conv, now, s.policy); !ok {
			continue
		}
		key := conv.Key
		g.Go(func() error {
			if s.nudge(gctx, key) {
				sent.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(sent.Load()), nil
}

func (s *Scheduler) nudge(ctx context.Context, key conversation.Key) bool {
	if s.locks != nil {
		unlock := s.locks.Lock(key.String())
		defer unlock()
	}

	claimedAt := s.now()
	var text, lang string
	_, err := s.store.Update(ctx, key, func(c *conversation.Conversation) error {
		if ok, _ := Eligible(c, claimedAt, s.policy); !ok {
			return conversation.ErrNoChange
		}
		text = NudgeText(s.copy, c)
		lang = c.Language
		c.FollowUpSentAt = claimedAt
		return nil
	})
	if errors.Is(err, conversation.ErrNoChange) {
		return false
	}
	if err != nil {
		s.log.Warn("follow-up claim failed", "conversation_key", key.String(), "error", err)
		return false
	}

	if err := s.sender.Deliver(ctx, key, text); err != nil {
		s.release(ctx, key, claimedAt)
		return false
	}

	sentAt := s.now()
	if _, err := s.store.Merge(ctx, key, conversation.Patch{
		Append:         []conversation.Message{{Role: conversation.RoleOutbound, Text: text, At: sentAt}},
		LastOutboundAt: &sentAt,
	}); err != nil {
		s.log.StoreDegraded("followup_append", key.String(), err)
	}

	metrics.FollowUpsSent.WithLabelValues(s.channel).Inc()
	s.log.Info("follow-up sent", "conversation_key", key.String(), "language", lang)
	if s.bus != nil {
		s.bus.Publish(ctx, events.FollowUpSent{
			BaseEvent:       events.NewBaseEventAt(sentAt),
			ConversationKey: key.String(),
			Channel:         s.channel,
		})
	}
	return true
}

// release undoes a claim whose send failed so a later tick can retry.
func (s *Scheduler) release(ctx context.Context, key conversation.Key, claimedAt time.Time) {
	_, err := s.store.Update(ctx, key, func(c *conversation.Conversation) error {
		if !c.FollowUpSentAt.Equal(claimedAt) {
			return conversation.ErrNoChange
		}
		c.FollowUpSentAt = time.Time{}
		return nil
	})
	if err != nil && !errors.Is(err, conversation.ErrNoChange) {
		s.log.StoreDegraded("followup_release", key.String(), err)
	}
}

// leaseTTL keeps the lease a little shorter than the interval so the holder's
// next tick never races its own expiry.
func (s *Scheduler) leaseTTL() time.Duration {
	return s.interval * 9 / 10
}

// Registry starts at most one scheduler per channel for the life of the process.
type Registry struct {
	mu      sync.Mutex
	started map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{started: make(map[string]bool)}
}

// StartOnce launches s in the background unless a scheduler for its channel
// was already started. It reports whether s was launched.
func (r *Registry) StartOnce(ctx context.Context, s *Scheduler) bool {
	r.mu.Lock()
	if r.started[s.channel] {
		r.mu.Unlock()
		return false
	}
	r.started[s.channel] = true
	r.mu.Unlock()

	go s.Run(ctx)
	return true
}

// Started reports whether a scheduler for channel is running.
func (r *Registry) Started(channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started[channel]
}
