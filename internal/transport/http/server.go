package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tripdesk/tripdesk-server/internal/auth"
	"github.com/tripdesk/tripdesk-server/internal/config"
	"github.com/tripdesk/tripdesk-server/internal/core"
	"github.com/tripdesk/tripdesk-server/internal/store"
)

// NewServer builds the HTTP server with all REST and WebSocket routes.
func NewServer(hub *core.Hub, st store.Store, authService *auth.Service, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	authHandlers := NewAuthHandlers(authService, logger)
	conversationHandlers := NewConversationHandlers(st, logger)
	messageHandlers := NewMessageHandlers(st, logger)

	router.GET("/health", healthHandler)

	api := router.Group("/api")
	{
		api.POST("/register", authHandlers.Register)
		api.POST("/login", authHandlers.Login)
		api.POST("/admin/login", authHandlers.AdminLogin)

		authorized := api.Group("")
		authorized.Use(AuthMiddleware(authService, logger))
		{
			authorized.GET("/conversations", conversationHandlers.List)
			authorized.GET("/conversations/:userId", conversationHandlers.GetOrCreateForUser)
			authorized.GET("/conversation/:conversationId", conversationHandlers.GetByID)
			authorized.POST("/messages/:conversationId", messageHandlers.Send)
			authorized.GET("/messages/:conversationId", messageHandlers.List)
		}
	}

	wsHandler := NewWSHandler(hub, authService, logger, cfg.WSSendsPerMinute)
	router.GET("/ws", gin.WrapH(wsHandler))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
