package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"campus-messaging/internal/auth"
	"campus-messaging/internal/cache"
	"campus-messaging/internal/config"
	"campus-messaging/internal/db"
	grpcserver "campus-messaging/internal/grpc"
	"campus-messaging/internal/handlers"
	"campus-messaging/internal/logger"
	"campus-messaging/internal/messaging"
	"campus-messaging/internal/middleware"
	"campus-messaging/internal/observability"
	"campus-messaging/internal/rabbitmq"
	"campus-messaging/internal/realtime"
	"campus-messaging/internal/repositories"
	"campus-messaging/internal/storage"
	"campus-messaging/internal/telemetry"
	"campus-messaging/internal/ws"
)

func main() {
	cfg := config.Load()

	appLog, err := logger.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = appLog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdownTracer, err := observability.InitTracer(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
		if err != nil {
			appLog.Warn("tracing disabled", zap.Error(err))
		} else {
			defer func() { _ = shutdownTracer(context.Background()) }()
		}
	}

	database, err := db.Connect(ctx, cfg.DBDSN, appLog)
	if err != nil {
		appLog.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, appLog.Named("rabbitmq"))
	defer func() { _ = publisher.Close() }()
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRouteKey, cfg.ServiceName, cfg.Environment, appLog.Named("audit"))

	var objects storage.ObjectStore = storage.Unavailable{}
	if store, err := storage.NewCloudinaryStore(cfg.CloudinaryURL, 30*time.Second); err != nil {
		appLog.Warn("object storage unavailable", zap.Error(err))
	} else {
		objects = store
	}

	queries := cache.New()
	bus := realtime.NewBus()
	defer realtime.BindCache(bus, queries)()

	deps := messaging.Deps{
		Cache:  queries,
		Bus:    bus,
		Events: publisher,
		Audit:  audit,
		Log:    appLog.Named("messaging"),
	}

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	reactionRepo := repositories.NewReactionRepo(database)
	presenceRepo := repositories.NewPresenceRepo(database)
	typingRepo := repositories.NewTypingRepo(database)
	profileRepo := repositories.NewProfileRepo(database)

	directory := messaging.NewDirectory(conversationRepo, deps, cfg.ListConcurrency)
	messages := messaging.NewMessageStore(messageRepo, reactionRepo, objects, deps)
	presence := messaging.NewPresenceTracker(presenceRepo, deps, cfg.PresenceInterval)
	typing := messaging.NewTypingTracker(typingRepo, deps, cfg.TypingTimeout)
	profiles := messaging.NewProfileMedia(profileRepo, objects, deps)

	feed := realtime.NewFeed(cfg.DBDSN, bus, appLog.Named("feed"))
	go func() {
		if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			appLog.Error("change feed stopped", zap.Error(err))
		}
	}()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = realtime.ConnectNATS(cfg.NATSURL, cfg.ServiceName, appLog.Named("nats"))
		if err != nil {
			appLog.Warn("nats bridge disabled", zap.Error(err))
		} else {
			defer natsConn.Close()
			stopBridge, err := realtime.NewNATSBridge(natsConn, bus, cfg.NATSSubject, appLog.Named("nats")).Start()
			if err != nil {
				appLog.Warn("nats bridge disabled", zap.Error(err))
			} else {
				defer stopBridge()
			}
		}
	}

	scheduler, err := realtime.NewScheduler(bus, cfg.PresencePoll, cfg.TypingPoll, appLog.Named("scheduler"))
	if err != nil {
		appLog.Fatal("failed to build scheduler", zap.Error(err))
	}
	scheduler.Start()

	hub := ws.NewHub(publisher, appLog.Named("ws"))
	defer bus.Subscribe(hub.Notify)()

	verifier := auth.NewVerifier(cfg.JWTSecret)
	wsHandler := ws.NewHandler(hub, verifier, ws.Services{
		Directory: directory,
		Messages:  messages,
		Typing:    typing,
		Presence:  presence,
	}, appLog.Named("ws"))

	health := grpcserver.NewHealthServer(healthChecks(database, natsConn), 15*time.Second, appLog.Named("health"))
	go health.Run(ctx)
	go func() {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
		if err != nil {
			appLog.Error("grpc health listen failed", zap.Error(err))
			return
		}
		if err := health.Serve(lis); err != nil {
			appLog.Error("grpc health server stopped", zap.Error(err))
		}
	}()

	conversationHandler := handlers.NewConversationHandler(directory, appLog.Named("http"))
	messageHandler := handlers.NewMessageHandler(directory, messages, appLog.Named("http"))
	presenceHandler := handlers.NewPresenceHandler(presence, appLog.Named("http"))
	typingHandler := handlers.NewTypingHandler(directory, typing, appLog.Named("http"))
	profileHandler := handlers.NewProfileHandler(profiles, appLog.Named("http"))

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.MaxMultipartMemory = handlers.MaxMultipartMemory

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.RequestIDMiddleware())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		report, ok := health.Report()
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"checks": report})
	})
	handlers.RegisterDebugRoutes(router, audit, bus, cfg.DebugRoutes)

	authMiddleware := middleware.AuthMiddleware(verifier)
	api := router.Group("/", authMiddleware)

	api.GET("/conversations", conversationHandler.ListConversations)
	api.POST("/conversations/direct", conversationHandler.CreateDirect)
	api.POST("/conversations/group", conversationHandler.CreateGroup)
	api.POST("/conversations/:id/participants", conversationHandler.AddParticipant)
	api.POST("/conversations/:id/read", conversationHandler.MarkRead)

	api.GET("/conversations/:id/messages", messageHandler.GetMessages)
	api.POST("/conversations/:id/messages", messageHandler.PostMessage)
	api.POST("/messages/:id/reactions", messageHandler.AddReaction)
	api.DELETE("/messages/:id/reactions", messageHandler.RemoveReaction)
	api.POST("/messages/:id/read", messageHandler.MarkAsRead)

	api.GET("/conversations/:id/typing", typingHandler.GetTyping)
	api.POST("/conversations/:id/typing", typingHandler.StartTyping)
	api.DELETE("/conversations/:id/typing", typingHandler.StopTyping)

	api.GET("/presence", presenceHandler.GetPresence)
	api.POST("/presence/visibility", presenceHandler.SetVisibility)

	api.PUT("/profile/avatar", profileHandler.UploadAvatar)
	api.PUT("/profile/cover", profileHandler.UploadCover)

	router.GET("/ws", wsHandler.Handle)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		appLog.Info("http server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("http shutdown", zap.Error(err))
	}
	hub.CloseAll()
	scheduler.Stop(shutdownCtx)
	health.Stop()
}

func healthChecks(database *sqlx.DB, nc *nats.Conn) map[string]grpcserver.Check {
	checks := map[string]grpcserver.Check{
		"postgres": database.PingContext,
	}
	if nc != nil {
		checks["nats"] = func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New("nats " + nc.Status().String())
			}
			return nil
		}
	}
	return checks
}
