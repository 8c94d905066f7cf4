// Package webhook receives provider callbacks for every enabled channel and
// hands verified events to the conversation engine.
package webhook

import (
	"salesbot_backend/internal/channel"
	apphttp "salesbot_backend/internal/http"
	"salesbot_backend/platform/logger"
	"salesbot_backend/platform/validator"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule creates the webhook module.
func NewModule(registry *channel.Registry, engine InboundHandler, val *validator.Validator, log *logger.Logger) *Module {
	return &Module{handler: NewHandler(registry, engine, val, log)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts the provider callback routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhooks.GET("/:channel", m.handler.HandleHandshake)
	ctx.Webhooks.POST("/:channel", m.handler.HandleEvent)
}

// Wait blocks until every dispatched turn has finished.
func (m *Module) Wait() {
	m.handler.wg.Wait()
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
