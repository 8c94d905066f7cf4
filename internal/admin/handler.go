package admin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"salesbot_backend/internal/conversation"
	"salesbot_backend/internal/events"
	"salesbot_backend/internal/funnel"
	"salesbot_backend/internal/leads/repository"
	"salesbot_backend/platform/httpkit"
	"salesbot_backend/platform/logger"
	"salesbot_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	defaultLeadLookback = 24 * time.Hour

	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
	errInvalidSince   = "since must be an RFC3339 timestamp"
	errInvalidChannel = "invalid channel"
)

// ConversationStore is the part of the state store the admin surface needs.
type ConversationStore interface {
	ListAll(ctx context.Context, channel string) ([]*conversation.Conversation, error)
	Merge(ctx context.Context, key conversation.Key, patch conversation.Patch) (*conversation.Conversation, error)
	Reset(ctx context.Context, key conversation.Key) (*conversation.Conversation, error)
}

// LeadLister reads captured leads.
type LeadLister interface {
	ListSince(ctx context.Context, since time.Time) ([]repository.Lead, error)
}

// ResetRequest addresses the conversation to reset.
type ResetRequest struct {
	Channel    string `json:"channel" validate:"required,alpha,max=32"`
	ScopeID    string `json:"scopeId" validate:"omitempty,providerid"`
	ExternalID string `json:"externalId" validate:"required,providerid"`
	// Full wipes the record back to a fresh NEW conversation.
	Full bool `json:"full"`
}

// ConversationsResponse lists conversations.
type ConversationsResponse struct {
	Items []*conversation.Conversation `json:"items"`
	Total int                          `json:"total"`
}

// LeadsResponse lists leads.
type LeadsResponse struct {
	Items []repository.Lead `json:"items"`
	Total int               `json:"total"`
	Since time.Time         `json:"since"`
}

type Handler struct {
	store ConversationStore
	leads LeadLister
	bus   events.Bus
	val   *validator.Validator
	log   *logger.Logger
	now   func() time.Time
}

func NewHandler(store ConversationStore, leads LeadLister, bus events.Bus, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{store: store, leads: leads, bus: bus, val: val, log: log, now: time.Now}
}

// HandleListConversations returns persisted conversations.
// GET /api/v1/admin/conversations?channel=
func (h *Handler) HandleListConversations(c *gin.Context) {
	channelName := strings.ToLower(strings.TrimSpace(c.Query("channel")))
	if err := h.val.Var(channelName, "omitempty,alpha,max=32"); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidChannel, nil)
		return
	}

	items, err := h.store.ListAll(c.Request.Context(), channelName)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, ConversationsResponse{Items: items, Total: len(items)})
}

// HandleResetConversation reopens a conversation for contact collection, or
// wipes it entirely when full is set. History is kept on a partial reset.
// POST /api/v1/admin/conversations/reset
func (h *Handler) HandleResetConversation(c *gin.Context) {
	var req ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, err.Error())
		return
	}

	ctx := c.Request.Context()
	key := conversation.NewKey(req.Channel, req.ScopeID, req.ExternalID)

	var (
		conv *conversation.Conversation
		err  error
	)
	if req.Full {
		conv, err = h.store.Reset(ctx, key)
	} else {
		stage := funnel.StageAskContact
		conv, err = h.store.Merge(ctx, key, conversation.Patch{
			Stage:             &stage,
			ForceStage:        true,
			ClearLeadCaptured: true,
			ClearContact:      true,
		})
	}
	if httpkit.HandleError(c, err) {
		return
	}

	h.log.Info("conversation reset", "conversation_key", key.String(), "full", req.Full, "admin", c.GetString(httpkit.ContextAdminSubjectKey))
	if h.bus != nil {
		h.bus.Publish(ctx, events.ConversationReset{BaseEvent: events.NewBaseEvent(), ConversationKey: key.String()})
	}
	httpkit.OK(c, conv)
}

// HandleListLeads returns leads captured at or after since (default: last 24h).
// GET /api/v1/admin/leads?since=
func (h *Handler) HandleListLeads(c *gin.Context) {
	since := h.now().Add(-defaultLeadLookback)
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, errInvalidSince, nil)
			return
		}
		since = parsed
	}

	items, err := h.leads.ListSince(c.Request.Context(), since)
	if httpkit.HandleError(c, err) {
		return
	}
	if items == nil {
		items = []repository.Lead{}
	}
	httpkit.OK(c, LeadsResponse{Items: items, Total: len(items), Since: since})
}
