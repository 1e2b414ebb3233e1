package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messenger-service/internal/auth"
	"messenger-service/internal/chat"
	"messenger-service/internal/config"
	"messenger-service/internal/db"
	"messenger-service/internal/handlers"
	"messenger-service/internal/middleware"
	"messenger-service/internal/observability"
	"messenger-service/internal/rabbitmq"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
)

func main() {
	cfg := config.Load()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing, err := telemetry.InitTracing(context.Background(), cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("event publisher: %s", rabbitmq.PublisherMode(publisher))

	audit := telemetry.NewAuditEmitter(publisher, "audit.messenger", cfg.ServiceName, cfg.Environment)
	audit.Emit(context.Background(), "info", "service starting", "", nil)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("failed to create upload dir: %v", err)
	}

	userRepo := repositories.NewUserRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	typingRepo := repositories.NewTypingRepo(database)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)

	registry := ws.NewRegistry()
	dispatcher := ws.NewDispatcher(registry)
	coordinator := chat.NewCoordinator(userRepo, chatRepo, messageRepo, typingRepo, dispatcher)

	authHandler := handlers.NewAuthHandler(userRepo, tokens, audit)
	chatHandler := handlers.NewChatHandler(
		chatRepo, messageRepo, userRepo, coordinator, registry, audit, cfg.UploadDir, cfg.MaxUploadBytes)
	sessionHandler := ws.NewSessionHandler(registry, coordinator, userRepo, tokens, publisher)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(otelgin.Middleware(cfg.ServiceName))

	router.POST("/auth/register", authHandler.Register)
	router.POST("/auth/login", authHandler.Login)

	authMiddleware := middleware.AuthMiddleware(tokens)
	chatGroup := router.Group("/chat", authMiddleware)
	{
		chatGroup.GET("/chats", chatHandler.ListChats)
		chatGroup.POST("/new", chatHandler.StartChat)
		chatGroup.DELETE("/:chat_id", chatHandler.DeleteChat)
		chatGroup.GET("/messages/:user_id", chatHandler.GetMessagesWithUser)
		chatGroup.POST("/message", chatHandler.PostMessage)
		chatGroup.POST("/media", chatHandler.PostMedia)
		chatGroup.POST("/location", chatHandler.PostLocation)
		chatGroup.POST("/forward/:message_id", chatHandler.ForwardMessage)
		chatGroup.POST("/reply/:message_id", chatHandler.ReplyToMessage)
		chatGroup.POST("/read/:message_id", chatHandler.MarkRead)
		chatGroup.GET("/typing/:chat_id", chatHandler.GetTyping)
		chatGroup.POST("/typing/:chat_id", chatHandler.SetTyping)
		chatGroup.GET("/online/:user_id", chatHandler.CheckOnline)
		chatGroup.GET("/online-users", chatHandler.OnlineUsers)
	}

	router.GET("/ws", sessionHandler.Handle)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Static("/uploads", cfg.UploadDir)

	if err := router.Run(cfg.Addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
