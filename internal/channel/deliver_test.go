package channel

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"salesbot_backend/internal/conversation"
	"salesbot_backend/platform/apperr"
	"salesbot_backend/platform/logger"
)

type fakeDeliveryConfig struct{}

func (fakeDeliveryConfig) GetSendMaxAttempts() int           { return 3 }
func (fakeDeliveryConfig) GetSendBaseBackoff() time.Duration { return 100 * time.Millisecond }
func (fakeDeliveryConfig) GetSendRatePerSecond() float64     { return 0 }

type scriptedAdapter struct {
	name  string
	errs  []error
	calls int
	sent  []string
}

func (s *scriptedAdapter) Name() string                        { return s.name }
func (s *scriptedAdapter) Verify(http.Header, []byte) error    { return nil }
func (s *scriptedAdapter) Normalize([]byte) ([]Inbound, error) { return nil, nil }
func (s *scriptedAdapter) Send(_ context.Context, _ conversation.Key, text string) error {
	s.calls++
	if s.calls <= len(s.errs) && s.errs[s.calls-1] != nil {
		return s.errs[s.calls-1]
	}
	s.sent = append(s.sent, text)
	return nil
}

func newTestDeliverer(a Adapter) (*Deliverer, *[]time.Duration) {
	d := NewDeliverer(NewRegistry(a), fakeDeliveryConfig{}, logger.New("development"))
	var waits []time.Duration
	d.sleep = func(_ context.Context, dur time.Duration) error {
		waits = append(waits, dur)
		return nil
	}
	return d, &waits
}

func TestDeliverRetriesTransientFailures(t *testing.T) {
	adapter := &scriptedAdapter{name: "telegram", errs: []error{
		apperr.Transient("telegram sendMessage failed", errors.New("502")),
		apperr.Transient("telegram sendMessage failed", errors.New("502")),
	}}
	d, waits := newTestDeliverer(adapter)

	err := d.Deliver(context.Background(), conversation.NewKey("telegram", "bot", "1"), "hello")
	if err != nil {
		t.Fatalf("expected delivery to succeed on third attempt, got %v", err)
	}
	if adapter.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", adapter.calls)
	}
	if len(*waits) != 2 || (*waits)[0] != 100*time.Millisecond || (*waits)[1] != 400*time.Millisecond {
		t.Fatalf("expected increasing backoff [100ms 400ms], got %v", *waits)
	}
}

func TestDeliverDoesNotRetryPermanentFailures(t *testing.T) {
	adapter := &scriptedAdapter{name: "instagram", errs: []error{
		apperr.BadRequest("invalid recipient"),
	}}
	d, waits := newTestDeliverer(adapter)

	err := d.Deliver(context.Background(), conversation.NewKey("instagram", "page", "u"), "hello")
	if err == nil {
		t.Fatalf("expected permanent failure to be returned")
	}
	if adapter.calls != 1 || len(*waits) != 0 {
		t.Fatalf("expected one attempt and no backoff, got %d attempts and %v", adapter.calls, *waits)
	}
}

func TestDeliverGivesUpAfterMaxAttempts(t *testing.T) {
	transient := apperr.Transient("messenger send failed", errors.New("503"))
	adapter := &scriptedAdapter{name: "messenger", errs: []error{transient, transient, transient, transient}}
	d, _ := newTestDeliverer(adapter)

	err := d.Deliver(context.Background(), conversation.NewKey("messenger", "page", "u"), "hello")
	if !apperr.IsTransient(err) {
		t.Fatalf("expected exhausted transient error, got %v", err)
	}
	if adapter.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", adapter.calls)
	}
}

func TestDeliverUnknownChannel(t *testing.T) {
	d, _ := newTestDeliverer(&scriptedAdapter{name: "telegram"})
	err := d.Deliver(context.Background(), conversation.NewKey("sms", "", "1"), "hello")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
