// Package conversation is the durable per-conversation state store.
package conversation

import (
	"fmt"
	"strings"
	"time"

	"salesbot_backend/internal/funnel"
)

// Key addresses one dialogue. ScopeID is the page or bot id for channels that
// have one and empty otherwise.
type Key struct {
	Channel    string `json:"channel"`
	ScopeID    string `json:"scopeId,omitempty"`
	ExternalID string `json:"externalId"`
}

// NewKey builds a normalized key.
func NewKey(channel, scopeID, externalID string) Key {
	return Key{
		Channel:    strings.ToLower(strings.TrimSpace(channel)),
		ScopeID:    strings.TrimSpace(scopeID),
		ExternalID: strings.TrimSpace(externalID),
	}
}

// String renders the key as channel:scope:external.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Channel, k.ScopeID, k.ExternalID)
}

// Valid reports whether the key addresses a conversation.
func (k Key) Valid() bool {
	return k.Channel != "" && k.ExternalID != ""
}

// Role is the direction of a history entry.
type Role string

const (
	RoleInbound  Role = "inbound"
	RoleOutbound Role = "outbound"
)

// Message is one history entry.
type Message struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// MediaKind classifies an inbound attachment.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVoice MediaKind = "voice"
	MediaVideo MediaKind = "video"
	MediaFile  MediaKind = "file"
)

// MediaRef is an opaque reference to inbound media.
type MediaRef struct {
	Kind       MediaKind `json:"kind"`
	URL        string    `json:"url,omitempty"`
	ProviderID string    `json:"providerId,omitempty"`
}

// Conversation is the state of one dialogue.
type Conversation struct {
	Key          Key               `json:"key"`
	Language     string            `json:"language,omitempty"`
	History      []Message         `json:"history"`
	PendingMedia []MediaRef        `json:"pendingMedia,omitempty"`
	LastMediaAt  time.Time         `json:"lastMediaAt,omitzero"`
	MediaAckAt   time.Time         `json:"mediaAckAt,omitzero"`
	Stage        funnel.Stage      `json:"stage"`
	Readiness    int               `json:"readiness"`
	InboundTurns int               `json:"inboundTurns"`
	Facts        map[string]string `json:"facts,omitempty"`
	ContactDraft string            `json:"contactDraft,omitempty"`
	ContactKind  string            `json:"contactKind,omitempty"`

	LastInboundAt  time.Time `json:"lastInboundAt,omitzero"`
	LastOutboundAt time.Time `json:"lastOutboundAt,omitzero"`
	FollowUpSentAt time.Time `json:"followUpSentAt,omitzero"`
	LeadCapturedAt time.Time `json:"leadCapturedAt,omitzero"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// New returns the default record for key.
func New(key Key, now time.Time) *Conversation {
	return &Conversation{
		Key:       key,
		History:   []Message{},
		Stage:     funnel.StageNew,
		Facts:     map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.History = append([]Message(nil), c.History...)
	out.PendingMedia = append([]MediaRef(nil), c.PendingMedia...)
	out.Facts = make(map[string]string, len(c.Facts))
	for k, v := range c.Facts {
		out.Facts[k] = v
	}
	return &out
}

// LastMessage returns the most recent history entry with the given role.
func (c *Conversation) LastMessage(role Role) (Message, bool) {
	for i := len(c.History) - 1; i >= 0; i-- {
		if c.History[i].Role == role {
			return c.History[i], true
		}
	}
	return Message{}, false
}

// RecentOutbound returns up to n most recent outbound texts, oldest first.
func (c *Conversation) RecentOutbound(n int) []string {
	out := make([]string, 0, n)
	for i := len(c.History) - 1; i >= 0 && len(out) < n; i-- {
		if c.History[i].Role == RoleOutbound {
			out = append(out, c.History[i].Text)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// HasOutbound reports whether the bot has spoken in this conversation.
func (c *Conversation) HasOutbound() bool {
	_, ok := c.LastMessage(RoleOutbound)
	return ok
}

// MediaFresh reports whether the pending media burst is still within window.
func (c *Conversation) MediaFresh(now time.Time, window time.Duration) bool {
	return !c.LastMediaAt.IsZero() && now.Sub(c.LastMediaAt) <= window
}
