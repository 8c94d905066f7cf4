// Package admin exposes persisted conversations and leads to operators and
// lets them reset a conversation's funnel.
package admin

import (
	apphttp "salesbot_backend/internal/http"
)

// Module is the admin bounded context module implementing http.Module.
type Module struct {
	handler *Handler
}

func NewModule(handler *Handler) *Module {
	return &Module{handler: handler}
}

func (m *Module) Name() string {
	return "admin"
}

// RegisterRoutes mounts the admin routes. The Admin group already enforces
// the admin bearer token.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Admin.GET("/conversations", m.handler.HandleListConversations)
	ctx.Admin.POST("/conversations/reset", m.handler.HandleResetConversation)
	ctx.Admin.GET("/leads", m.handler.HandleListLeads)
}

var _ apphttp.Module = (*Module)(nil)
