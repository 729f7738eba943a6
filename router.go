package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-gateway/internal/config"
	"chat-gateway/internal/handlers"
	"chat-gateway/internal/middleware"
	"chat-gateway/internal/observability"
	"chat-gateway/internal/service"
	"chat-gateway/internal/telemetry"
	"chat-gateway/internal/ws"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type routerDeps struct {
	cfg     config.Config
	svc     *service.Service
	gateway *ws.Gateway
	audit   *telemetry.AuditEmitter
	store   pinger
	log     *slog.Logger
}

func newRouter(d routerDeps) *gin.Engine {
	if d.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(
		otelgin.Middleware(serviceName),
		observability.RequestIDMiddleware(),
		observability.HTTPMetricsMiddleware(),
	)

	conversations := handlers.NewConversationHandler(d.svc, d.log)
	messages := handlers.NewMessageHandler(d.svc, d.gateway, d.log)
	users := handlers.NewUserHandler(d.svc, d.log)
	presence := d.gateway.Presence()

	router.GET("/healthz", healthz(d.store))
	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
	router.GET("/ws", d.gateway.Handle)

	authed := router.Group("/", middleware.AuthMiddleware(d.cfg.JWTSecret))
	authed.GET("/conversations", conversations.ListConversations)
	authed.POST("/conversations", conversations.CreateConversation)
	authed.GET("/conversations/:id", conversations.GetConversation)
	authed.DELETE("/conversations/:id", conversations.DeleteConversation)
	authed.GET("/conversations/:id/messages", messages.ListMessages)
	authed.POST("/conversations/:id/messages", messages.PostMessage)
	authed.POST("/conversations/:id/read", messages.MarkRead)
	authed.GET("/users/search", users.Search)
	authed.GET("/presence", handlers.ListOnline(presence))

	handlers.RegisterDebugRoutes(authed, d.audit, presence, d.cfg.DebugRoutes)
	return router
}

func healthz(store pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
