package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"salesbot_backend/internal/channel"
	"salesbot_backend/internal/orchestrator"
	"salesbot_backend/platform/httpkit"
	"salesbot_backend/platform/logger"
	"salesbot_backend/platform/metrics"
	"salesbot_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	maxBodyBytes = 1 << 20
	turnTimeout  = 2 * time.Minute

	errUnknownChannel   = "unknown channel"
	errNoHandshake      = "channel does not use a handshake"
	errBodyTooLarge     = "request body too large"
	errUnreadableBody   = "unreadable request body"
	outcomeAccepted     = "accepted"
	outcomeRejected     = "rejected"
	outcomeMalformed    = "malformed"
	outcomeUnknown      = "unknown_channel"
	outcomeHandshake    = "handshake"
	skipReasonInvalid   = "invalid"
	skipReasonMalformed = "malformed"
)

// InboundHandler runs one conversation turn.
type InboundHandler interface {
	HandleInbound(ctx context.Context, in channel.Inbound) (orchestrator.Outcome, error)
}

// Handler handles provider webhook requests.
type Handler struct {
	registry *channel.Registry
	engine   InboundHandler
	val      *validator.Validator
	log      *logger.Logger
	wg       sync.WaitGroup
	// dispatch runs a turn after the request was acknowledged.
	dispatch func(run func())
}

// NewHandler creates a webhook handler that processes turns in the background.
func NewHandler(registry *channel.Registry, engine InboundHandler, val *validator.Validator, log *logger.Logger) *Handler {
	h := &Handler{registry: registry, engine: engine, val: val, log: log}
	h.dispatch = func(run func()) {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			run()
		}()
	}
	return h
}

// HandleHandshake answers a subscription-verification request.
// GET /api/v1/webhooks/:channel
func (h *Handler) HandleHandshake(c *gin.Context) {
	name := c.Param("channel")
	adapter, ok := h.registry.Get(name)
	if !ok {
		metrics.WebhookRequests.WithLabelValues(name, outcomeUnknown).Inc()
		httpkit.Error(c, http.StatusNotFound, errUnknownChannel, nil)
		return
	}
	hs, ok := adapter.(channel.Handshaker)
	if !ok {
		httpkit.Error(c, http.StatusNotFound, errNoHandshake, nil)
		return
	}

	challenge, err := hs.Handshake(c.Request.URL.Query())
	if err != nil {
		h.log.WebhookRejected(adapter.Name(), err.Error(), c.ClientIP())
		metrics.WebhookRequests.WithLabelValues(adapter.Name(), outcomeRejected).Inc()
		httpkit.HandleError(c, err)
		return
	}

	metrics.WebhookRequests.WithLabelValues(adapter.Name(), outcomeHandshake).Inc()
	c.String(http.StatusOK, challenge)
}

// HandleEvent verifies and acknowledges a provider callback, then processes
// its events in the background. Only an authenticity failure is answered
// with an error status.
// POST /api/v1/webhooks/:channel
func (h *Handler) HandleEvent(c *gin.Context) {
	name := c.Param("channel")
	adapter, ok := h.registry.Get(name)
	if !ok {
		metrics.WebhookRequests.WithLabelValues(name, outcomeUnknown).Inc()
		httpkit.Error(c, http.StatusNotFound, errUnknownChannel, nil)
		return
	}
	name = adapter.Name()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpkit.Error(c, http.StatusRequestEntityTooLarge, errBodyTooLarge, nil)
			return
		}
		httpkit.Error(c, http.StatusBadRequest, errUnreadableBody, nil)
		return
	}

	if err := adapter.Verify(c.Request.Header, body); err != nil {
		h.log.WebhookRejected(name, err.Error(), c.ClientIP())
		metrics.WebhookRequests.WithLabelValues(name, outcomeRejected).Inc()
		httpkit.HandleError(c, err)
		return
	}

	inbound, err := adapter.Normalize(body)
	if err != nil {
		h.log.PayloadSkipped(name, skipReasonMalformed)
		metrics.RecordSkipped(name, skipReasonMalformed)
		metrics.WebhookRequests.WithLabelValues(name, outcomeMalformed).Inc()
		httpkit.Ack(c)
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	for _, in := range inbound {
		if !in.IsEcho {
			if err := channel.Validate(h.val, in); err != nil {
				h.log.PayloadSkipped(name, skipReasonInvalid)
				metrics.RecordSkipped(name, skipReasonInvalid)
				continue
			}
		}
		h.dispatch(func() { h.process(ctx, in) })
	}

	metrics.WebhookRequests.WithLabelValues(name, outcomeAccepted).Inc()
	httpkit.Ack(c)
}

func (h *Handler) process(ctx context.Context, in channel.Inbound) {
	ctx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	outcome, err := h.engine.HandleInbound(ctx, in)
	if err != nil {
		h.log.WithContext(ctx).WithConversation(in.Key.String()).Warn("inbound turn failed",
			"outcome", string(outcome),
			"error", err,
		)
	}
}
