// Package repository persists captured leads.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lead ID is unknown.
var ErrNotFound = errors.New("lead not found")

// Lead is one captured contact with the context it was captured in.
type Lead struct {
	ID              uuid.UUID         `json:"id"`
	ContactValue    string            `json:"contactValue"`
	ContactKind     string            `json:"contactKind"`
	Channel         string            `json:"channel"`
	Snapshot        string            `json:"snapshot"`
	Language        string            `json:"language"`
	ConversationKey string            `json:"conversationKey"`
	Facts           map[string]string `json:"facts,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// LeadWriter stores leads. CreateIfAbsent is atomic per (contact, channel):
// when a lead for the pair exists with CreatedAt after since, it returns that
// lead and false instead of inserting.
type LeadWriter interface {
	CreateIfAbsent(ctx context.Context, lead Lead, since time.Time) (Lead, bool, error)
	MergeFacts(ctx context.Context, id uuid.UUID, facts map[string]string) error
}

// LeadReader lists stored leads.
type LeadReader interface {
	ListSince(ctx context.Context, since time.Time) ([]Lead, error)
}

// LeadRepository combines both sides.
type LeadRepository interface {
	LeadWriter
	LeadReader
}
