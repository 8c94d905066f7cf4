package router

import (
	"context"
	"net/http"
	"time"

	apphttp "salesbot_backend/internal/http"
	"salesbot_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const (
	webhookRatePerSecond = 50
	webhookBurst         = 100
	adminRatePerSecond   = 5
	adminBurst           = 20
	healthTimeout        = 2 * time.Second
)

// New builds the gin engine and mounts every module.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestID())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(cors.New(corsConfig(app.Config)))

	engine.GET("/api/health", func(c *gin.Context) {
		if app.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
			defer cancel()
			if err := app.Health.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/api/v1")

	webhooks := v1.Group("/webhooks")
	webhooks.Use(httpkit.NewIPRateLimiter(rate.Limit(webhookRatePerSecond), webhookBurst, app.Logger).RateLimit())

	admin := v1.Group("/admin")
	admin.Use(httpkit.NewIPRateLimiter(rate.Limit(adminRatePerSecond), adminBurst, app.Logger).RateLimit())
	admin.Use(httpkit.AdminRequired(app.Config))

	rc := &apphttp.RouterContext{
		Engine:   engine,
		V1:       v1,
		Webhooks: webhooks,
		Admin:    admin,
		Config:   app.Config,
	}
	for _, m := range app.Modules {
		m.RegisterRoutes(rc)
		app.Logger.Debug("module routes registered", "module", m.Name())
	}

	return engine
}

func corsConfig(cfg apphttp.RouterConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: cfg.GetCORSAllowCreds(),
		MaxAge:           12 * time.Hour,
	}
	if cfg.GetCORSAllowAll() {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.GetCORSOrigins()
	}
	return c
}
