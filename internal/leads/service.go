// Package leads turns a captured contact into a stored, deduplicated lead and
// tells the rest of the system about it.
package leads

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"salesbot_backend/internal/contact"
	"salesbot_backend/internal/conversation"
	"salesbot_backend/internal/events"
	"salesbot_backend/internal/leads/repository"
	"salesbot_backend/platform/apperr"
	"salesbot_backend/platform/logger"
	"salesbot_backend/platform/metrics"
	"salesbot_backend/platform/sanitize"
)

// DefaultDedupWindow applies when no window is configured.
const DefaultDedupWindow = 24 * time.Hour

const maxSnapshotRunes = 1200

// ConversationMarker records the capture on the conversation.
type ConversationMarker interface {
	MarkLeadCaptured(ctx context.Context, key conversation.Key, at time.Time) error
}

// CaptureRequest carries one contact and the conversation it came from.
type CaptureRequest struct {
	Key      conversation.Key
	Contact  contact.Contact
	Language string
	Snapshot string
	Facts    map[string]string
}

// CaptureResult reports what Capture did.
type CaptureResult struct {
	Lead     repository.Lead
	Created  bool
	Notified bool
}

// Service captures leads.
type Service struct {
	repo   repository.LeadRepository
	bus    events.Bus
	marker ConversationMarker
	window time.Duration
	log    *logger.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo repository.LeadRepository, bus events.Bus, marker ConversationMarker, window time.Duration, log *logger.Logger, opts ...Option) *Service {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	s := &Service{
		repo:   repo,
		bus:    bus,
		marker: marker,
		window: window,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capture stores the lead unless the same contact was captured on the same
// channel within the dedup window. A duplicate that brings facts the stored
// lead lacks updates it and notifies again; a plain duplicate is silent.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	value := strings.TrimSpace(req.Contact.Value)
	if value == "" || !req.Key.Valid() {
		return CaptureResult{}, apperr.Validation("lead requires a contact and a conversation key")
	}

	now := s.now()
	candidate := repository.Lead{
		ID:              uuid.New(),
		ContactValue:    value,
		ContactKind:     string(req.Contact.Kind),
		Channel:         req.Key.Channel,
		Snapshot:        sanitize.Truncate(strings.TrimSpace(req.Snapshot), maxSnapshotRunes),
		Language:        req.Language,
		ConversationKey: req.Key.String(),
		Facts:           copyFacts(req.Facts),
		CreatedAt:       now,
	}

	stored, created, err := s.repo.CreateIfAbsent(ctx, candidate, now.Add(-s.window))
	if err != nil {
		return CaptureResult{}, err
	}
	result := CaptureResult{Lead: stored, Created: created}

	reason := events.LeadReasonNew
	if !created {
		fresh := newFacts(stored.Facts, candidate.Facts)
		if len(fresh) == 0 {
			metrics.Leads.WithLabelValues(req.Key.Channel, "duplicate").Inc()
			s.mark(ctx, req.Key, now)
			return result, nil
		}
		if err := s.repo.MergeFacts(ctx, stored.ID, fresh); err != nil {
			return result, err
		}
		if result.Lead.Facts == nil {
			result.Lead.Facts = map[string]string{}
		}
		maps.Copy(result.Lead.Facts, fresh)
		reason = events.LeadReasonUpdated
	}

	metrics.Leads.WithLabelValues(req.Key.Channel, reason).Inc()
	s.log.Info("lead captured",
		"lead_id", result.Lead.ID,
		"channel", req.Key.Channel,
		"kind", candidate.ContactKind,
		"reason", reason,
	)

	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadCaptured{
			BaseEvent:       events.NewBaseEventAt(s.now()),
			LeadID:          result.Lead.ID,
			Reason:          reason,
			ContactValue:    result.Lead.ContactValue,
			ContactKind:     result.Lead.ContactKind,
			Channel:         result.Lead.Channel,
			Language:        req.Language,
			ConversationKey: result.Lead.ConversationKey,
			Snapshot:        candidate.Snapshot,
			Facts:           copyFacts(result.Lead.Facts),
			CapturedAt:      now,
		})
		result.Notified = true
	}

	s.mark(ctx, req.Key, now)
	return result, nil
}

// ListSince returns leads captured at or after since.
func (s *Service) ListSince(ctx context.Context, since time.Time) ([]repository.Lead, error) {
	return s.repo.ListSince(ctx, since)
}

func (s *Service) mark(ctx context.Context, key conversation.Key, at time.Time) {
	if s.marker == nil {
		return
	}
	if err := s.marker.MarkLeadCaptured(ctx, key, at); err != nil {
		s.log.StoreDegraded("mark_lead_captured", key.String(), err)
	}
}

// newFacts returns the entries of incoming whose key is missing or empty in stored.
func newFacts(stored, incoming map[string]string) map[string]string {
	fresh := map[string]string{}
	for k, v := range incoming {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if strings.TrimSpace(stored[k]) == "" {
			fresh[k] = v
		}
	}
	return fresh
}

func copyFacts(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	maps.Copy(out, in)
	return out
}
