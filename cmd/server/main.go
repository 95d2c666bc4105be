package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/fitsphere/chat-service/internal/api"
	"github.com/fitsphere/chat-service/internal/auth"
	"github.com/fitsphere/chat-service/internal/chat"
	"github.com/fitsphere/chat-service/internal/config"
	"github.com/fitsphere/chat-service/internal/database"
	"github.com/fitsphere/chat-service/internal/logger"
	internalWs "github.com/fitsphere/chat-service/internal/websocket"
)

var log = logger.New("server")

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if err := logger.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.WithError(err).Fatal("invalid log settings")
	}

	// Set up logging to file
	logFile, err := os.OpenFile("server.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.WithError(err).Warn("could not open server.log, logging to stderr only")
	} else {
		defer logFile.Close()
		logger.SetOutput(io.MultiWriter(os.Stderr, logFile))
	}

	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create database connection using factory
	dbType := database.DatabaseType(cfg.DBType)
	db, err := database.NewDatabase(dbType, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(ctx); err != nil {
		log.WithError(err).Fatal("failed to migrate database")
	}
	log.WithField("db_type", dbType).Info("connected to database")

	tokens := auth.NewTokenManager([]byte(cfg.JWTSecret), cfg.JWTTTL)

	// Realtime gateway: the manager owns connections and rooms, the router
	// receives committed changes from the chat service
	wsManager := internalWs.NewManager(internalWs.NewMemoryPresence())
	go wsManager.Run(ctx)
	wsRouter := internalWs.NewRouter(wsManager)

	chatService := chat.NewService(db, wsRouter, chat.Config{
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		PageSize:         cfg.Chat.PageSize,
		MaxPageSize:      cfg.Chat.MaxPageSize,
		ReadOnFetch:      cfg.Chat.ReadOnFetch,
	})

	wsHandler := internalWs.NewHandler(wsManager, wsRouter, chatService, tokens, internalWs.HandlerConfig{
		MaxEventsPerMinute: cfg.WebSocket.MaxEventsPerMinute,
		EventTimeout:       cfg.WebSocket.EventTimeout,
		AllowedOrigins:     cfg.AllowedOrigins,
	})

	router := api.NewRouter(api.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		Tokens:         tokens,
		Auth:           api.NewAuthHandler(db, tokens),
		Chats:          api.NewChatHandler(chatService),
		WebSocket:      wsHandler.ServeWS,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	log.Info("server exited properly")
}
