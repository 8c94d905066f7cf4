package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"salesbot_backend/internal/events"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const TaskLeadNotify = "lead.notify"

// LeadNotifyPayload carries a captured lead to the notification worker.
type LeadNotifyPayload struct {
	EventID         string            `json:"eventId,omitempty"`
	LeadID          string            `json:"leadId"`
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

// LeadNotifyPayloadFromEvent copies the event fields into a task payload.
func LeadNotifyPayloadFromEvent(e events.LeadCaptured) LeadNotifyPayload {
	return LeadNotifyPayload{
		EventID:         e.EventID().String(),
		LeadID:          e.LeadID.String(),
		Reason:          e.Reason,
		ContactValue:    e.ContactValue,
		ContactKind:     e.ContactKind,
		Channel:         e.Channel,
		Language:        e.Language,
		ConversationKey: e.ConversationKey,
		Snapshot:        e.Snapshot,
		Facts:           e.Facts,
		CapturedAt:      e.CapturedAt,
	}
}

// Event rebuilds the domain event from the payload.
func (p LeadNotifyPayload) Event() (events.LeadCaptured, error) {
	leadID, err := uuid.Parse(p.LeadID)
	if err != nil {
		return events.LeadCaptured{}, fmt.Errorf("parse lead id: %w", err)
	}
	base := events.NewBaseEventAt(p.CapturedAt)
	if id, err := uuid.Parse(p.EventID); err == nil {
		base.ID = id
	}
	return events.LeadCaptured{
		BaseEvent:       base,
		LeadID:          leadID,
		Reason:          p.Reason,
		ContactValue:    p.ContactValue,
		ContactKind:     p.ContactKind,
		Channel:         p.Channel,
		Language:        p.Language,
		ConversationKey: p.ConversationKey,
		Snapshot:        p.Snapshot,
		Facts:           p.Facts,
		CapturedAt:      p.CapturedAt,
	}, nil
}

// taskID makes redelivered captures of the same lead and reason collapse into one task.
func (p LeadNotifyPayload) taskID() string {
	return fmt.Sprintf("%s:%s:%s:%d", TaskLeadNotify, p.LeadID, p.Reason, p.CapturedAt.UnixNano())
}

func NewLeadNotifyTask(payload LeadNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadNotify, data), nil
}

func ParseLeadNotifyPayload(task *asynq.Task) (LeadNotifyPayload, error) {
	var payload LeadNotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadNotifyPayload{}, err
	}
	return payload, nil
}
