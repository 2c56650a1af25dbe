package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	httphandlers "huddle/internal/handlers/http"

	"huddle/internal/core/ports"
	"huddle/internal/core/services"
	"huddle/internal/infrastructure/distributed"
	"huddle/internal/infrastructure/middleware"
	"huddle/internal/infrastructure/mixer"
	"huddle/internal/infrastructure/monitoring"
	"huddle/internal/infrastructure/repositories/memory"
	wsignal "huddle/internal/infrastructure/signal"
	"huddle/pkg/config"
	"huddle/pkg/logger"
	"huddle/pkg/tracing"
	"huddle/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	zlog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zlog.Sync()
	log := zlog.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warnw("tracing shutdown failed", "error", err)
		}
	}()

	var metrics *monitoring.Collector
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewCollector()
	}

	clients := memory.NewClientRegistry(log)
	rooms := memory.NewRoomDirectory(clients, log)

	var mix ports.Mixer
	if cfg.Recording.MergeEnabled {
		mix = mixer.NewFFmpegMixer(cfg.Recording.FFmpegPath, cfg.Recording.Dir, cfg.Recording.FileExt, log)
	}
	recorder, err := services.NewRecordingService(
		cfg.Recording.Dir,
		cfg.Recording.FileExt,
		mix,
		cfg.Recording.MergeTimeout,
		metrics,
		log,
	)
	if err != nil {
		log.Fatalw("failed to initialize recording service", "error", err)
	}

	var events *distributed.EventBus
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalw("failed to connect to redis", "address", cfg.Redis.Address, "error", err)
		}
		defer rdb.Close()

		events = distributed.NewEventBus(rdb, utils.GenerateClientID(), log)
		go func() {
			if err := events.Subscribe(ctx, func(ev *distributed.Event) error {
				log.Debugw("peer instance event", "type", ev.Type, "room_id", ev.RoomID)
				return nil
			}); err != nil && !errors.Is(err, context.Canceled) {
				log.Warnw("event bus subscription ended", "error", err)
			}
		}()
	}

	wsOpts := wsignal.Options{
		PingInterval:    cfg.Signal.PingInterval,
		PongTimeout:     cfg.Signal.PongTimeout,
		WriteTimeout:    cfg.Signal.WriteTimeout,
		MaxMessageBytes: cfg.Signal.MaxMessageBytes,
		SendBuffer:      cfg.Signal.SendBuffer,
	}
	if cfg.RateLimiting.Enabled {
		wsOpts.MessagesPerSecond = cfg.RateLimiting.MessagesPerSecond
		wsOpts.Burst = cfg.RateLimiting.Burst
	}
	wsServer := wsignal.NewWebSocketServer(clients, rooms, recorder, wsOpts, events, metrics, log)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.Auth.JWTSecret != "" {
		auth := services.NewAuthService(cfg.Auth.JWTSecret)
		router.Use(middleware.OptionalAuth(auth, log))
	}

	router.GET("/ws", wsServer.HandleWebSocket)
	httphandlers.NewHandler(rooms, recorder).RegisterRoutes(router, cfg.Monitoring.PrometheusEnabled)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infow("server listening", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Infow("shutting down")

	wsServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Infow("server stopped")
}
