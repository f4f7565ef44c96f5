package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"

	"github.com/thereayou/unimeet/internal/config"
	"github.com/thereayou/unimeet/internal/database"
	"github.com/thereayou/unimeet/internal/handlers"
	"github.com/thereayou/unimeet/internal/middleware"
	"github.com/thereayou/unimeet/internal/services"
	"github.com/thereayou/unimeet/internal/storage"
	"github.com/thereayou/unimeet/internal/websocket"
	"github.com/thereayou/unimeet/pkg/auth"
)

type Server struct {
	Config     *config.Config
	Router     *gin.Engine
	DB         *database.Database
	Redis      *redis.Client
	JWTManager *auth.JWTManager
	Hub        *websocket.Hub
	Cron       *cron.Cron

	limiter *middleware.IPRateLimiter
	reaper  *storage.Reaper
}

func NewServer(cfg *config.Config, log *slog.Logger) (*Server, error) {
	dbConn, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connect: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		dbConn.Close()
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		dbConn.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	store, err := newBlobStore(cfg)
	if err != nil {
		dbConn.Close()
		rdb.Close()
		return nil, err
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	blacklist := auth.NewTokenBlacklist(rdb)
	hub := websocket.NewHub()

	uploads := storage.NewUploader(store, storage.ImageProcessor{
		MaxDimension: cfg.MaxImageDimension,
		MaxBytes:     cfg.MaxUploadBytes,
	})
	users := services.NewUserService(dbConn, auth.NewPasswordHasher(0), jwtMgr, uploads, cfg.AllowedEmailDomains)
	events := services.NewEventService(dbConn, uploads, hub, cfg.MaxEventImages)

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))
	router.MaxMultipartMemory = cfg.MaxUploadBytes

	if local, ok := store.(*storage.LocalStore); ok {
		router.Static(local.URLPrefix(), local.Root())
	}

	limiter := middleware.NewIPRateLimiter(cfg.AuthRatePerMinute, cfg.AuthRateBurst)
	APIEndpoints(router, Handlers{
		Auth:   handlers.NewAuthHandler(users, jwtMgr, blacklist),
		Users:  handlers.NewUserHandler(users, events),
		Events: handlers.NewEventHandler(events),
		WS:     handlers.NewWebSocketHandler(hub, nil),
	}, middleware.NewAuthenticator(jwtMgr, blacklist), limiter, func(ctx context.Context) error {
		if err := dbConn.Ping(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})

	return &Server{
		Config:     cfg,
		Router:     router,
		DB:         dbConn,
		Redis:      rdb,
		JWTManager: jwtMgr,
		Hub:        hub,
		limiter:    limiter,
		reaper:     storage.NewReaper(store, dbConn, cfg.ReaperGrace, services.EventImagesFolder, services.ProfileImagesFolder),
	}, nil
}

func newBlobStore(cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.BlobBackend {
	case config.BlobOSS:
		store, err := storage.NewOSSStore(cfg.OSS)
		if err != nil {
			return nil, fmt.Errorf("oss store: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewLocalStore(cfg.UploadDir, cfg.UploadURLPrefix)
		if err != nil {
			return nil, fmt.Errorf("local store: %w", err)
		}
		return store, nil
	}
}

// Run обслуживает HTTP до отмены ctx, затем аккуратно всё останавливает
func (s *Server) Run(ctx context.Context) error {
	go s.Hub.Run()

	c, err := storage.StartReaper(s.Config.ReaperSchedule, s.reaper)
	if err != nil {
		s.shutdown()
		return err
	}
	s.Cron = c
	if _, err := c.AddFunc("@every 10m", s.limiter.Cleanup); err != nil {
		s.shutdown()
		return fmt.Errorf("add limiter cleanup: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + s.Config.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", s.Config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.shutdown()
		return fmt.Errorf("server run error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	s.shutdown()
	return err
}

func (s *Server) shutdown() {
	if s.Cron != nil {
		<-s.Cron.Stop().Done()
	}
	s.Hub.Stop()
	if err := s.Redis.Close(); err != nil {
		slog.Warn("redis close failed", "error", err)
	}
	if err := s.DB.Close(); err != nil {
		slog.Warn("database close failed", "error", err)
	}
}
