// Package http holds the contract between the router and the modules that
// mount routes on it.
package http

import (
	"context"

	"github.com/gin-gonic/gin"

	"salesbot_backend/platform/config"
	"salesbot_backend/platform/logger"
)

// RouterConfig is the slice of configuration the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker backs /api/health. A nil checker reports healthy.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Module mounts one bounded context's routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext hands modules the groups they may mount on. Webhooks is
// public and signature-checked by each adapter; Admin already requires an
// admin token.
type RouterContext struct {
	Engine   *gin.Engine
	V1       *gin.RouterGroup
	Webhooks *gin.RouterGroup
	Admin    *gin.RouterGroup
	Config   config.JWTConfig
}

// App is what cmd/api assembles for the router.
type App struct {
	Config  RouterConfig
	Logger  *logger.Logger
	Health  HealthChecker
	Modules []Module
}
