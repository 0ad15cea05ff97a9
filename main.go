package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	grpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"rtchat-service/internal/config"
	"rtchat-service/internal/db"
	grpcclient "rtchat-service/internal/grpc"
	"rtchat-service/internal/handlers"
	"rtchat-service/internal/log"
	"rtchat-service/internal/middleware"
	"rtchat-service/internal/naming"
	"rtchat-service/internal/observability"
	"rtchat-service/internal/presence"
	"rtchat-service/internal/rabbitmq"
	"rtchat-service/internal/repositories"
	"rtchat-service/internal/services"
	"rtchat-service/internal/telemetry"
	"rtchat-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.L().Fatal().Err(err).Msg("failed to load config")
	}
	log.Init(log.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: cfg.Service.Name})
	logger := log.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
		ServiceName: cfg.Service.Name,
		Environment: cfg.Service.Environment,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracing")
	}

	var (
		roomRepo    repositories.RoomRepository
		messageRepo repositories.MessageRepository
	)
	switch cfg.Storage.Driver {
	case "memory":
		store := repositories.NewMemoryStore()
		roomRepo, messageRepo = store, store
	default:
		database, err := db.Connect(ctx, cfg.Storage.DSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to db")
		}
		defer database.Close()
		roomRepo = repositories.NewRoomRepo(database)
		messageRepo = repositories.NewMessageRepo(database)
	}
	logger.Info().Str("driver", cfg.Storage.Driver).Msg("storage ready")

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithUnaryInterceptor(observability.GRPCClientMetricsUnaryInterceptor()),
	}
	authConn, err := grpc.NewClient(cfg.Identity.AuthAddress, dialOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to auth grpc")
	}
	defer authConn.Close()

	userConn, err := grpc.NewClient(cfg.Identity.UserAddress, dialOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to user grpc")
	}
	defer userConn.Close()

	identity := grpcclient.NewIdentityClient(authConn, userConn, cfg.Identity.CallTimeout)

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()
	logger.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("event publisher ready")
	events := observability.NewEventSink(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AMQP.AuditRoutingKey, cfg.Service.Name, cfg.Service.Environment)

	var mirror presence.Mirror
	if cfg.Redis.Enabled {
		redisMirror, err := presence.NewRedisMirror(ctx, presence.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.PresenceTTL,
			Channel:   cfg.Redis.Channel,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("redis presence mirror disabled")
		} else {
			defer redisMirror.Close()
			mirror = redisMirror
		}
	}
	tracker := presence.NewTracker(mirror, presence.WithRefreshInterval(cfg.Redis.PresenceTTL/3))
	hub := ws.NewHub(tracker)

	roomService := services.NewRoomService(roomRepo, identity, hub, naming.NewGenerator(cfg.Rooms.NamingMaxAttempts), events)
	messageService := services.NewMessageService(roomRepo, messageRepo, hub, cfg.Rooms.DefaultLimit, cfg.Rooms.MaxLimit)
	roomService.OnDelete(messageService.Forget)

	roomHandler := handlers.NewRoomHandler(roomService, audit)
	messageHandler := handlers.NewMessageHandler(messageService, audit)
	roomWS := ws.NewHandler(hub, identity, roomService, messageService, events, ws.Options{
		PingInterval:   cfg.WebSocket.PingInterval,
		PongWait:       cfg.WebSocket.PongWait,
		WriteWait:      cfg.WebSocket.WriteWait,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.SendBuffer,
	})

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Service.Name))
	router.Use(log.GinMiddleware(*logger))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, tracker, cfg.Debug.Enabled)

	authMiddleware := middleware.AuthMiddleware(identity)

	router.GET("/rooms", authMiddleware, roomHandler.ListRooms)
	router.POST("/rooms", authMiddleware, roomHandler.CreateGroupRoom)
	router.POST("/rooms/private", authMiddleware, roomHandler.CreatePrivateRoom)
	router.GET("/rooms/:slug", authMiddleware, roomHandler.GetRoom)
	router.PATCH("/rooms/:slug", authMiddleware, roomHandler.RenameRoom)
	router.DELETE("/rooms/:slug", authMiddleware, roomHandler.DeleteRoom)
	router.POST("/rooms/:slug/join", authMiddleware, roomHandler.JoinRoom)
	router.POST("/rooms/:slug/leave", authMiddleware, roomHandler.LeaveRoom)
	router.DELETE("/rooms/:slug/members/:user_id", authMiddleware, roomHandler.RemoveMember)
	router.GET("/rooms/:slug/online", authMiddleware, roomHandler.OnlineUsers)
	router.GET("/rooms/:slug/messages", authMiddleware, messageHandler.Recent)
	router.POST("/rooms/:slug/messages", authMiddleware, messageHandler.Post)

	router.GET("/ws/rooms/:slug", roomWS.Handle)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tracker.Run(gctx)
	})
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown failed")
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown failed")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("server stopped with error")
		return
	}
	logger.Info().Msg("server stopped")
}
