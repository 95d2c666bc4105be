package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig carries everything the HTTP surface is built from
type RouterConfig struct {
	AllowedOrigins []string
	Tokens         Authenticator
	Auth           *AuthHandler
	Chats          *ChatHandler
	// WebSocket authenticates on its own, since browsers pass the token
	// as a query parameter
	WebSocket gin.HandlerFunc
}

// NewRouter builds the gin engine with every public and protected route
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger())

	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public routes (no authentication required)
	router.POST("/api/auth/register", cfg.Auth.Register)
	router.POST("/api/auth/login", cfg.Auth.Login)
	if cfg.WebSocket != nil {
		router.GET("/api/ws", cfg.WebSocket)
	}

	// Protected routes (authentication required)
	authorized := router.Group("/api")
	authorized.Use(AuthMiddleware(cfg.Tokens))
	{
		authorized.GET("/auth/me", Authenticated(cfg.Auth.GetMe))

		authorized.GET("/chats", Authenticated(cfg.Chats.ListChats))
		authorized.GET("/chats/unread", Authenticated(cfg.Chats.UnreadCount))
		authorized.GET("/chats/user/:userId", Authenticated(cfg.Chats.OpenChat))
		authorized.GET("/chats/:chatId", Authenticated(cfg.Chats.GetChat))
		authorized.GET("/chats/:chatId/messages", Authenticated(cfg.Chats.GetMessages))
		authorized.POST("/chats/:chatId/messages", Authenticated(cfg.Chats.SendMessage))
		authorized.POST("/chats/:chatId/read", Authenticated(cfg.Chats.MarkRead))
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range origins {
		if origin == "*" {
			origins = nil
			break
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
