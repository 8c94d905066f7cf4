// Package channel defines the contract every messaging channel implements
// and the delivery machinery shared by all of them.
package channel

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"salesbot_backend/internal/conversation"
	"salesbot_backend/platform/validator"
)

// Inbound is the canonical shape of one provider event.
type Inbound struct {
	Key          conversation.Key        `validate:"-"`
	MessageID    string                  `validate:"omitempty,providerid"`
	SenderID     string                  `validate:"required,providerid"`
	Text         string                  `validate:"max=8000"`
	Media        []conversation.MediaRef `validate:"-"`
	IsEcho       bool                    `validate:"-"`
	LanguageHint string                  `validate:"omitempty,max=16"`
	ReceivedAt   time.Time               `validate:"-"`
}

// Empty reports an event with neither text nor media.
func (in Inbound) Empty() bool {
	return strings.TrimSpace(in.Text) == "" && len(in.Media) == 0
}

// Adapter is one messaging channel.
type Adapter interface {
	Name() string
	// Verify checks the authenticity of a raw webhook request and returns an
	// apperr Unauthorized or Forbidden error when it fails.
	Verify(header http.Header, body []byte) error
	// Normalize decodes a verified payload into canonical events. Events the
	// adapter cannot attribute to a sender are omitted.
	Normalize(body []byte) ([]Inbound, error)
	// Send performs one delivery attempt. Retryable failures carry
	// apperr.KindTransient.
	Send(ctx context.Context, key conversation.Key, text string) error
}

// Handshaker answers a subscription-verification GET request.
type Handshaker interface {
	Handshake(query url.Values) (string, error)
}

// MediaResolver opens provider-hosted media for archiving or transcription.
type MediaResolver interface {
	OpenMedia(ctx context.Context, ref conversation.MediaRef) (io.ReadCloser, string, error)
}

// Registry holds the enabled adapters by name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a registry with the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[strings.ToLower(a.Name())] = a
}

// Get returns the adapter for name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[strings.ToLower(name)]
	return a, ok
}

// Names returns the registered channel names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks an event against the field rules on Inbound.
func Validate(v *validator.Validator, in Inbound) error {
	return v.Struct(in)
}
