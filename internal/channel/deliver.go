package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"salesbot_backend/internal/conversation"
	"salesbot_backend/platform/apperr"
	"salesbot_backend/platform/logger"
	"salesbot_backend/platform/metrics"
)

// DeliveryConfig is the subset of channel config the Deliverer needs.
type DeliveryConfig interface {
	GetSendMaxAttempts() int
	GetSendBaseBackoff() time.Duration
	GetSendRatePerSecond() float64
}

// Deliverer sends through the registry with a per-channel rate limit and
// bounded retry of transient failures. Backoff grows quadratically.
type Deliverer struct {
	registry    *Registry
	log         *logger.Logger
	maxAttempts int
	baseBackoff time.Duration
	rps         float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	sleep func(ctx context.Context, d time.Duration) error
}

// NewDeliverer creates a Deliverer.
func NewDeliverer(registry *Registry, cfg DeliveryConfig, log *logger.Logger) *Deliverer {
	attempts := cfg.GetSendMaxAttempts()
	if attempts < 1 {
		attempts = 1
	}
	return &Deliverer{
		registry:    registry,
		log:         log,
		maxAttempts: attempts,
		baseBackoff: cfg.GetSendBaseBackoff(),
		rps:         cfg.GetSendRatePerSecond(),
		limiters:    make(map[string]*rate.Limiter),
		sleep:       sleepContext,
	}
}

// Registry returns the adapters the Deliverer sends through.
func (d *Deliverer) Registry() *Registry { return d.registry }

// Deliver sends text to the conversation behind key. Permanent failures are
// returned after one attempt; transient ones after maxAttempts.
func (d *Deliverer) Deliver(ctx context.Context, key conversation.Key, text string) error {
	adapter, ok := d.registry.Get(key.Channel)
	if !ok {
		return apperr.NotFound(fmt.Sprintf("channel %q is not enabled", key.Channel))
	}
	limiter := d.limiter(key.Channel)

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("send rate limit wait: %w", err)
		}

		err := adapter.Send(ctx, key, text)
		if err == nil {
			metrics.RecordSend(key.Channel, "ok")
			return nil
		}
		lastErr = err
		transient := apperr.IsTransient(err)
		d.log.DeliveryFailed(key.Channel, key.ExternalID, attempt, transient, err)

		if !transient {
			metrics.RecordSend(key.Channel, "permanent")
			return err
		}
		metrics.RecordSend(key.Channel, "transient")
		if attempt == d.maxAttempts {
			break
		}
		if err := d.sleep(ctx, d.backoff(attempt)); err != nil {
			return fmt.Errorf("send retry interrupted: %w", lastErr)
		}
	}
	metrics.RecordSend(key.Channel, "exhausted")
	return fmt.Errorf("send to %s exhausted %d attempts: %w", key.Channel, d.maxAttempts, lastErr)
}

func (d *Deliverer) backoff(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * d.baseBackoff
}

func (d *Deliverer) limiter(channel string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.limiters[channel]; ok {
		return l
	}
	limit := rate.Inf
	burst := 1
	if d.rps > 0 {
		limit = rate.Limit(d.rps)
		burst = int(d.rps)
		if burst < 1 {
			burst = 1
		}
	}
	l := rate.NewLimiter(limit, burst)
	d.limiters[channel] = l
	return l
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
