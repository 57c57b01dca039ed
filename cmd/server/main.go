// cmd/server/main.go - ComuniTarr backend server
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"comunitarr/internal/chatsim"
	"comunitarr/internal/config"
	"comunitarr/internal/database"
	"comunitarr/internal/fallback"
	"comunitarr/internal/handlers"
	"comunitarr/internal/logger"
	"comunitarr/internal/middleware"
	"comunitarr/internal/realtime"
	"comunitarr/internal/repository"
	"comunitarr/internal/repository/memstore"
	"comunitarr/internal/services"
	"comunitarr/pkg/auth"
	"comunitarr/pkg/validator"
)

var (
	appVersion = "1.0.0"
	gitCommit  = "unknown"
)

// store is everything the services persist through.
type store interface {
	services.ForumStore
	services.AnnouncementStore
	services.IncidentStore
	services.UserStore
	services.NotificationStore
	services.CatalogStore
	services.OrderStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	log := logger.New(cfg.Environment, cfg.LogLevel)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped with error")
	}
	log.Info("ComuniTarr backend exited")
}

func run(cfg *config.Config, log *logrus.Logger) error {
	log.WithFields(logrus.Fields{
		"version":       appVersion,
		"commit":        gitCommit,
		"environment":   cfg.Environment,
		"store":         cfg.StoreBackend,
		"neighborhoods": cfg.Neighborhoods,
	}).Info("starting ComuniTarr backend")

	validator.Init(cfg.Neighborhoods)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		st       store
		pinger   handlers.Pinger
		outboxSt handlers.OutboxStats
		replayer *fallback.Replayer
	)

	switch cfg.StoreBackend {
	case "memory":
		log.Warn("using the in-memory store, data is lost on exit")
		st = memstore.New()

	default:
		db, err := database.NewMongoDB(cfg, logger.Component(log, "mongodb"))
		if err != nil {
			return err
		}
		defer db.Close()

		idxCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := db.CreateIndexes(idxCtx); err != nil {
			log.WithError(err).Warn("failed to create some indexes")
		}
		cancel()

		outbox, err := fallback.Open(cfg.OutboxPath)
		if err != nil {
			return err
		}
		defer outbox.Close()

		remote := fallback.MongoRemote{DB: db.Database}
		writer := fallback.NewWriter(remote, outbox, logger.Component(log, "outbox"))
		replayer = fallback.NewReplayer(outbox, remote, cfg.OutboxBatchSize, logger.Component(log, "replay"))

		st = repository.NewMongo(db.Database, writer)
		pinger = db
		outboxSt = outbox
	}

	hub := realtime.NewHub(logger.Component(log, "hub"))

	var pusher services.Pusher
	if cfg.FCMKey != "" {
		pusher = services.NewFCMPusher(cfg.FCMEndpoint, cfg.FCMKey)
	}

	points := services.NewPointsService(st, logger.Component(log, "points"))
	notifications := services.NewNotificationService(st, st, pusher, logger.Component(log, "notifications"))
	forum := services.NewForumService(st, points, hub, logger.Component(log, "forum"))

	sim, err := newSimulator(ctx, cfg, forum, logger.Component(log, "chatsim"))
	if err != nil {
		return err
	}
	forum.SetSimulator(sim)
	defer sim.Stop()

	var limiter *middleware.RateLimiter
	if cfg.RateLimitEnabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitDuration)
	}

	router := handlers.NewRouter(handlers.Services{
		Forum:         forum,
		Announcements: services.NewAnnouncementService(st, points, logger.Component(log, "announcements")),
		Incidents:     services.NewIncidentService(st, points, notifications, logger.Component(log, "incidents")),
		Points:        points,
		Notifications: notifications,
		Shop:          services.NewStorefrontService(st, st, logger.Component(log, "shop")),
	}, handlers.RouterOptions{
		JWT:            auth.NewJWTManager(cfg.JWTSecret, time.Duration(cfg.JWTExpiration)*time.Hour),
		Hub:            hub,
		DB:             pinger,
		Outbox:         outboxSt,
		Limiter:        limiter,
		AllowedOrigins: cfg.AllowedOrigins,
		Version:        appVersion,
		Log:            logger.Component(log, "http"),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(gctx) })
	if replayer != nil {
		g.Go(func() error { return replayer.Run(gctx, cfg.OutboxReplayInterval) })
	}
	if limiter != nil {
		g.Go(func() error { return limiter.Cleanup(gctx, 5*time.Minute) })
	}

	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		sim.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("forced shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func newSimulator(ctx context.Context, cfg *config.Config, forum *services.ForumService, log *logrus.Entry) (*chatsim.Simulator, error) {
	catalog, err := chatsim.DefaultCatalog()
	if err != nil {
		return nil, fmt.Errorf("failed to load persona catalog: %w", err)
	}

	opts := []chatsim.Option{chatsim.WithLogger(log)}
	if cfg.GenAIKey != "" {
		gen, err := chatsim.NewGenAIGenerator(ctx, cfg.GenAIKey, cfg.GenAIModel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, chatsim.WithGenerator(gen))
		log.WithField("model", cfg.GenAIModel).Info("generative replies enabled")
	}

	sc := cfg.ChatSim
	return chatsim.New(chatsim.Config{
		Enabled:         sc.Enabled,
		MinDelay:        sc.MinDelay,
		MaxDelay:        sc.MaxDelay,
		PerCharDelay:    sc.PerCharDelay,
		MaxBurst:        sc.MaxBurst,
		FollowUpChance:  sc.FollowUpChance,
		SignatureChance: sc.SignatureChance,
		RecentWindow:    sc.RecentWindow,
		GenerateTimeout: sc.GenerateTimeout,
	}, catalog, forum, opts...), nil
}
