// Package notification tells the business owner about captured leads.
// It subscribes to lead events so the capture path never waits on the
// owner's channel or mail server.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"salesbot_backend/internal/conversation"
	"salesbot_backend/internal/email"
	"salesbot_backend/internal/events"
	"salesbot_backend/internal/guard"
	"salesbot_backend/internal/scheduler"
	"salesbot_backend/platform/logger"
	"salesbot_backend/platform/sanitize"
)

const ownerSnapshotRunes = 400

// ChannelSender delivers one message through a messaging channel.
type ChannelSender interface {
	Deliver(ctx context.Context, key conversation.Key, text string) error
}

// LeadQueue hands notifications to the background worker.
type LeadQueue interface {
	EnqueueLeadNotification(ctx context.Context, payload scheduler.LeadNotifyPayload) error
}

// Options wires the owner's destinations. Every field is optional; a missing
// destination is skipped.
type Options struct {
	Sender     ChannelSender
	Owner      conversation.Key
	Mailer     email.Sender
	OwnerEmail string
	Copy       *guard.Copy
	Queue      LeadQueue
}

type Module struct {
	sender     ChannelSender
	owner      conversation.Key
	mailer     email.Sender
	ownerEmail string
	copy       *guard.Copy
	queue      LeadQueue
	log        *logger.Logger
}

func New(opts Options, log *logger.Logger) *Module {
	if opts.Copy == nil {
		opts.Copy = guard.DefaultCopy()
	}
	if opts.Mailer == nil {
		opts.Mailer = email.NoopSender{}
	}
	return &Module{
		sender:     opts.Sender,
		owner:      opts.Owner,
		mailer:     opts.Mailer,
		ownerEmail: opts.OwnerEmail,
		copy:       opts.Copy,
		queue:      opts.Queue,
		log:        log,
	}
}

// RegisterHandlers subscribes the module to the lead events it reacts to.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadCaptured{}.EventName(), m)
}

// Handle implements events.Handler. Failures are logged and never returned,
// so a broken notification path cannot affect lead capture.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadCaptured:
		m.handleLeadCaptured(ctx, e)
	}
	return nil
}

func (m *Module) handleLeadCaptured(ctx context.Context, e events.LeadCaptured) {
	if m.queue != nil {
		err := m.queue.EnqueueLeadNotification(ctx, scheduler.LeadNotifyPayloadFromEvent(e))
		if err == nil {
			return
		}
		m.log.Warn("lead notification enqueue failed, delivering inline", "lead_id", e.LeadID.String(), "error", err)
	}

	if err := m.Deliver(ctx, e); err != nil {
		m.log.Warn("lead notification failed", "lead_id", e.LeadID.String(), "error", err)
	}
}

// Deliver sends the owner's channel message and email. Both are attempted;
// the returned error joins whichever failed.
func (m *Module) Deliver(ctx context.Context, lead events.LeadCaptured) error {
	var errs []error

	if m.sender != nil && m.owner.Valid() {
		if err := m.sender.Deliver(ctx, m.owner, m.ownerMessage(lead)); err != nil {
			errs = append(errs, fmt.Errorf("owner channel: %w", err))
		}
	}

	if m.ownerEmail != "" {
		summary := email.LeadSummary{
			Updated:         lead.Reason == events.LeadReasonUpdated,
			ContactValue:    lead.ContactValue,
			ContactKind:     lead.ContactKind,
			Channel:         lead.Channel,
			Language:        lead.Language,
			ConversationKey: lead.ConversationKey,
			Snapshot:        lead.Snapshot,
			Facts:           lead.Facts,
		}
		if err := m.mailer.SendLeadSummary(ctx, m.ownerEmail, summary); err != nil {
			errs = append(errs, fmt.Errorf("owner email: %w", err))
		}
	}

	if len(errs) == 0 {
		m.log.Info("owner notified", "lead_id", lead.LeadID.String(), "reason", lead.Reason)
	}
	return errors.Join(errs...)
}

func (m *Module) ownerMessage(lead events.LeadCaptured) string {
	lang := m.copy.DefaultLanguage
	var b strings.Builder
	if lead.Reason == events.LeadReasonUpdated {
		b.WriteString("[update] ")
	}
	b.WriteString(m.copy.OwnerSummary(lang, map[string]string{
		"channel":  lead.Channel,
		"contact":  lead.ContactValue,
		"kind":     lead.ContactKind,
		"language": lead.Language,
	}))

	if facts := formatFacts(lead.Facts); facts != "" {
		b.WriteString("\n")
		b.WriteString(facts)
	}
	if lead.Snapshot != "" {
		b.WriteString("\n> ")
		b.WriteString(sanitize.Truncate(lead.Snapshot, ownerSnapshotRunes))
	}
	return b.String()
}

func formatFacts(facts map[string]string) string {
	keys := make([]string, 0, len(facts))
	for k, v := range facts {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+facts[k])
	}
	return strings.Join(parts, "; ")
}
