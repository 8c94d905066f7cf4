package conversation

import (
	"time"

	"salesbot_backend/internal/funnel"
)

// Patch is a partial update. Nil fields are left untouched.
//
// Field rules: LastInboundAt, LastOutboundAt, LastMediaAt and MediaAckAt never
// move backward. FollowUpSentAt and LeadCapturedAt are set once unless the
// matching Clear flag is also given. Facts only fill empty slots. Stage never
// regresses unless ForceStage is set. ClearContact runs before ContactDraft.
type Patch struct {
	Language     *string
	Append       []Message
	PendingMedia *[]MediaRef
	LastMediaAt  *time.Time
	MediaAckAt   *time.Time

	Stage        *funnel.Stage
	ForceStage   bool
	Readiness    *int
	InboundTurns int

	Facts        map[string]string
	ContactDraft *string
	ContactKind  *string

	LastInboundAt  *time.Time
	LastOutboundAt *time.Time
	FollowUpSentAt *time.Time
	LeadCapturedAt *time.Time

	ClearFollowUp     bool
	ClearLeadCaptured bool
	ClearContact      bool
}

// Apply merges p into c. History is trimmed to historyLimit, oldest first.
func (p Patch) Apply(c *Conversation, historyLimit int, now time.Time) {
	if p.Language != nil && *p.Language != "" {
		c.Language = *p.Language
	}

	if len(p.Append) > 0 {
		c.History = append(c.History, p.Append...)
	}
	if historyLimit > 0 && len(c.History) > historyLimit {
		c.History = append([]Message(nil), c.History[len(c.History)-historyLimit:]...)
	}

	if p.PendingMedia != nil {
		c.PendingMedia = append([]MediaRef(nil), (*p.PendingMedia)...)
	}
	advance(&c.LastMediaAt, p.LastMediaAt)
	advance(&c.MediaAckAt, p.MediaAckAt)

	if p.Stage != nil && p.Stage.Valid() {
		if p.ForceStage {
			c.Stage = *p.Stage
		} else {
			c.Stage = funnel.Max(c.Stage, *p.Stage)
		}
	}
	if p.Readiness != nil {
		c.Readiness = *p.Readiness
	}
	if p.InboundTurns > 0 {
		c.InboundTurns += p.InboundTurns
	}

	if len(p.Facts) > 0 {
		if c.Facts == nil {
			c.Facts = make(map[string]string, len(p.Facts))
		}
		for k, v := range p.Facts {
			if v == "" {
				continue
			}
			if _, exists := c.Facts[k]; !exists {
				c.Facts[k] = v
			}
		}
	}
	if p.ClearContact {
		c.ContactDraft = ""
		c.ContactKind = ""
	}
	if p.ContactDraft != nil && *p.ContactDraft != "" {
		c.ContactDraft = *p.ContactDraft
	}
	if p.ContactKind != nil && *p.ContactKind != "" {
		c.ContactKind = *p.ContactKind
	}

	advance(&c.LastInboundAt, p.LastInboundAt)
	advance(&c.LastOutboundAt, p.LastOutboundAt)

	if p.ClearFollowUp {
		c.FollowUpSentAt = time.Time{}
	}
	if p.ClearLeadCaptured {
		c.LeadCapturedAt = time.Time{}
	}
	setOnce(&c.FollowUpSentAt, p.FollowUpSentAt)
	setOnce(&c.LeadCapturedAt, p.LeadCapturedAt)

	c.UpdatedAt = now
}

func advance(dst *time.Time, src *time.Time) {
	if src == nil || src.IsZero() {
		return
	}
	if dst.IsZero() || src.After(*dst) {
		*dst = *src
	}
}

func setOnce(dst *time.Time, src *time.Time) {
	if src == nil || src.IsZero() || !dst.IsZero() {
		return
	}
	*dst = *src
}
