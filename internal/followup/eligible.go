// Package followup sends one re-engagement nudge to conversations where the
// bot spoke last and the prospect went quiet.
package followup

import (
	"strings"
	"time"

	"salesbot_backend/internal/conversation"
	"salesbot_backend/internal/guard"
	"salesbot_backend/platform/sanitize"
)

const nudgeQuoteRunes = 80

// Skip reasons reported by Eligible.
const (
	ReasonLeadCaptured = "lead_captured"
	ReasonAlreadySent  = "already_sent"
	ReasonNoOutbound   = "no_outbound"
	ReasonUserSpoke    = "user_spoke_last"
	ReasonWindowClosed = "reply_window_closed"
	ReasonTooEarly     = "too_early"
	ReasonTooLate      = "too_late"
)

// Policy bounds when a nudge may be sent.
type Policy struct {
	// MinIdle is the minimum time since the last outbound message.
	MinIdle time.Duration
	// MaxLate is the maximum time since the last outbound message.
	MaxLate time.Duration
	// ReplyWindow is the channel's messaging window measured from the last inbound message.
	ReplyWindow time.Duration
}

// DefaultPolicy matches the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{MinIdle: 3 * time.Hour, MaxLate: 22 * time.Hour, ReplyWindow: 24 * time.Hour}
}

// Eligible reports whether c should get a nudge at now. When it should not,
// the returned reason names the first rule that excluded it.
func Eligible(c *conversation.Conversation, now time.Time, p Policy) (bool, string) {
	switch {
	case !c.LeadCapturedAt.IsZero():
		return false, ReasonLeadCaptured
	case !c.FollowUpSentAt.IsZero():
		return false, ReasonAlreadySent
	case c.LastOutboundAt.IsZero() || !c.HasOutbound():
		return false, ReasonNoOutbound
	case !c.LastOutboundAt.After(c.LastInboundAt):
		return false, ReasonUserSpoke
	}

	if p.ReplyWindow > 0 && now.Sub(c.LastInboundAt) > p.ReplyWindow {
		return false, ReasonWindowClosed
	}
	idle := now.Sub(c.LastOutboundAt)
	if idle < p.MinIdle {
		return false, ReasonTooEarly
	}
	if p.MaxLate > 0 && idle > p.MaxLate {
		return false, ReasonTooLate
	}
	return true, ""
}

// NudgeText renders the re-engagement line around the last human utterance.
func NudgeText(c *guard.Copy, conv *conversation.Conversation) string {
	last := ""
	if msg, ok := conv.LastMessage(conversation.RoleInbound); ok {
		last = strings.Join(strings.Fields(sanitize.Text(msg.Text)), " ")
		last = sanitize.Truncate(last, nudgeQuoteRunes)
	}
	return c.FollowUp(conv.Language, last)
}
