// Package events declares the domain events exchanged between modules on top
// of the platform bus.
package events

import (
	"time"

	"salesbot_backend/platform/events"
	"salesbot_backend/platform/logger"

	"github.com/google/uuid"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var (
	NewBaseEvent   = events.NewBaseEvent
	NewBaseEventAt = events.NewBaseEventAt
)

func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Lead Domain Events
// =============================================================================

// Lead capture reasons.
const (
	LeadReasonNew     = "new"
	LeadReasonUpdated = "updated"
)

// LeadCaptured is published when a lead is stored, or when a deduplicated
// lead gained new facts worth telling the owner about.
type LeadCaptured struct {
	BaseEvent
	LeadID          uuid.UUID         `json:"leadId"`
	Reason          string            `json:"reason"`
	ContactValue    string            `json:"contactValue"`
	ContactKind     string            `json:"contactKind"`
	Channel         string            `json:"channel"`
	Language        string            `json:"language"`
	ConversationKey string            `json:"conversationKey"`
	Snapshot        string            `json:"snapshot"`
	Facts           map[string]string `json:"facts,omitempty"`
	CapturedAt      time.Time         `json:"capturedAt"`
}

func (e LeadCaptured) EventName() string { return "leads.lead.captured" }

// =============================================================================
// Conversation Domain Events
// =============================================================================

// FollowUpSent is published after a follow-up nudge was delivered.
type FollowUpSent struct {
	BaseEvent
	ConversationKey string `json:"conversationKey"`
	Channel         string `json:"channel"`
}

func (e FollowUpSent) EventName() string { return "conversations.followup.sent" }

// ConversationReset is published when an operator resets a conversation.
type ConversationReset struct {
	BaseEvent
	ConversationKey string `json:"conversationKey"`
}

func (e ConversationReset) EventName() string { return "conversations.conversation.reset" }
