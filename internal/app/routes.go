package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/techpress/core/internal/middleware"
	"github.com/techpress/core/internal/modules/analysis"
	"github.com/techpress/core/internal/modules/techset"
	"github.com/techpress/core/internal/pkg/response"
	"github.com/techpress/core/internal/pkg/taskqueue"
)

func (a *App) registerRoutes() {
	r := a.router

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":    "techpress-core",
		"version": "1.0.0",
	}

	apiPrefix := "/api/v2"

	// Rate limiting and idempotence run on every route (requires Redis).
	r.Use(middleware.RateLimit(a.rc.Raw()))
	r.Use(middleware.Idempotence(a.rc.Raw()))

	api := r.Group(apiPrefix)

	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/info", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		uptimeMs := time.Since(processStart).Milliseconds()
		c.JSON(http.StatusOK, gin.H{
			"timestamp": uptimeMs,
			"humanize":  humanizeDuration(time.Duration(uptimeMs) * time.Millisecond),
		})
	})
	api.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := gin.H{"status": "ok", "mongo": "ok", "redis": "ok"}
		healthy := true
		if err := a.db.Ping(ctx); err != nil {
			status["mongo"] = err.Error()
			healthy = false
		}
		if err := a.rc.Raw().Ping(ctx).Err(); err != nil {
			status["redis"] = err.Error()
			healthy = false
		}
		if !healthy {
			status["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		c.JSON(http.StatusOK, status)
	})

	// Tech-set catalog cache
	techs := techset.New(a.db, a.logger)

	// Analysis pipeline
	taskSvc := taskqueue.NewService(a.rc)
	store := analysis.NewStore(a.db, a.logger)
	svc := analysis.NewService(a.cfg.AI, store, a.logger)
	runner := analysis.NewTaskRunner(svc, taskSvc, a.logger)
	analysis.NewHandler(svc, runner, techs, a.logger).RegisterRoutes(api)
}
