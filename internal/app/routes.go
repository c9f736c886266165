package app

import (
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// router builds the gin engine with all middleware and routes.
func (a *Application) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	r.Use(requestIDMiddleware())
	r.Use(securityHeadersMiddleware())
	r.Use(loggingMiddleware(a.logger))

	r.GET("/livez", a.livenessCheck)
	r.HEAD("/livez", a.livenessCheck)
	r.GET("/healthz", a.livenessCheck)
	r.HEAD("/healthz", a.livenessCheck)
	r.GET("/readyz", a.readinessCheck)
	r.HEAD("/readyz", a.readinessCheck)
	r.GET("/metrics",
		metricsAuthMiddleware(a.cfg.MetricsAuthEnabled, a.cfg.MetricsUsername, a.cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	api := r.Group("/api/v1", a.readinessMiddleware())
	api.GET("/facets", a.getFacets)
	api.POST("/sessions", a.createSession)
	api.GET("/sessions/:id/messages", a.getMessages)
	api.DELETE("/sessions/:id", a.resetSession)

	limited := api.Group("", rateLimitMiddleware(a.clientLimiter, a.metrics))
	limited.POST("/recommend", a.recommend)
	limited.POST("/sessions/:id/messages", a.postMessage)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}
