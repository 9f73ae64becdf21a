package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockapp/internal/config"
	"github.com/mamadbah2/stockapp/internal/metrics"
	"github.com/mamadbah2/stockapp/internal/querycache"
	"github.com/mamadbah2/stockapp/internal/repository/mongodb"
	"github.com/mamadbah2/stockapp/internal/repository/sheets"
	"github.com/mamadbah2/stockapp/internal/scheduler"
	"github.com/mamadbah2/stockapp/internal/server/handlers"
	"github.com/mamadbah2/stockapp/internal/server/middleware"
	"github.com/mamadbah2/stockapp/internal/server/router"
	reportingsvc "github.com/mamadbah2/stockapp/internal/service/reporting"
	stocksvc "github.com/mamadbah2/stockapp/internal/service/stock"
	"github.com/mamadbah2/stockapp/internal/session"
	"github.com/mamadbah2/stockapp/internal/web"
	"github.com/mamadbah2/stockapp/pkg/clients/inventory"
	"github.com/mamadbah2/stockapp/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Server.Env))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	if err := cfg.Validate(); err != nil {
		baseLogger.Fatal("invalid configuration", zap.Error(err))
	}

	var (
		store  session.Store
		purger scheduler.SessionPurger
	)
	switch cfg.Session.Backend {
	case config.SessionBackendRedis:
		redisClient, err := session.NewRedisClient(context.Background(), cfg.Session.RedisAddr, cfg.Session.RedisPassword, cfg.Session.RedisDB)
		if err != nil {
			baseLogger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()
		store = session.NewRedisStore(redisClient, cfg.Session.TTL)
	default:
		memoryStore := session.NewMemoryStore(cfg.Session.TTL)
		store, purger = memoryStore, memoryStore
	}
	sessions := session.NewManager(store, baseLogger.Named("session"))

	var (
		promMetrics *metrics.Metrics
		cacheHooks  querycache.Hooks
		observer    inventory.CallObserver
	)
	if cfg.Metrics.Enabled {
		promMetrics = metrics.New()
		cacheHooks = promMetrics.CacheHooks()
		observer = promMetrics.ObserveAPICall
	}

	cache := querycache.New(querycache.Options{
		StaleAfter: cfg.Cache.StaleAfter,
		Logger:     baseLogger.Named("querycache"),
		Hooks:      cacheHooks,
	})
	// A cleared session must not see the previous token's data.
	sessions.Subscribe(func(evt session.Event) {
		if evt.Kind == session.EventCleared {
			cache.DropScope(evt.SessionID)
		}
	})

	apiClient := inventory.NewClient(inventory.Options{
		BaseURL:  cfg.API.BaseURL,
		Timeout:  cfg.API.Timeout,
		Tokens:   inventory.TokenFunc(sessions.BearerToken),
		Logger:   baseLogger.Named("client.inventory"),
		Observer: observer,
	})

	var audit stocksvc.AuditRecorder
	if cfg.MongoDB.URI != "" {
		mongoRepo, err := mongodb.NewMongoDBRepository(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.DBName)
		if err != nil {
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		defer func() {
			if err := mongoRepo.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		audit = mongoRepo
	} else {
		baseLogger.Warn("mongodb uri missing, audit journal disabled")
	}

	stockService := stocksvc.NewService(apiClient, cache, audit, baseLogger.Named("svc.stock"))

	var reportingService *reportingsvc.Service
	if cfg.SheetsEnabled() && cfg.Reporting.APIToken != "" {
		snapshotSheet, err := sheets.NewGoogleSnapshotSheet(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init snapshot sheet", zap.Error(err))
		}
		reportClient := inventory.NewClient(inventory.Options{
			BaseURL:  cfg.API.BaseURL,
			Timeout:  cfg.API.Timeout,
			Tokens:   inventory.StaticToken(cfg.Reporting.APIToken),
			Logger:   baseLogger.Named("client.inventory.reporting"),
			Observer: observer,
		})
		reportingService = reportingsvc.NewService(snapshotSheet, reportClient, cfg.Reporting.LowStockThreshold, baseLogger.Named("svc.reporting"))
	} else {
		baseLogger.Info("sheets or report token missing, stock snapshot disabled")
	}

	renderer, err := web.NewRenderer(cfg.API.AssetBaseURL)
	if err != nil {
		baseLogger.Fatal("failed to parse templates", zap.Error(err))
	}

	engine := router.New(router.Handlers{
		Auth:      handlers.NewAuthHandler(apiClient, sessions, baseLogger.Named("handlers.auth")),
		Dashboard: handlers.NewDashboardHandler(stockService, sessions, baseLogger.Named("handlers.dashboard")),
		Products:  handlers.NewProductHandler(stockService, sessions, baseLogger.Named("handlers.products")),
		Movements: handlers.NewMovementHandler(stockService, sessions, baseLogger.Named("handlers.movements")),
		Export:    handlers.NewExportHandler(stockService, sessions, baseLogger.Named("handlers.export")),
	}, router.Options{
		Sessions: sessions,
		Renderer: renderer,
		Cookie: middleware.CookieOptions{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
			TTL:    cfg.Session.TTL,
		},
		Metrics: promMetrics,
	}, baseLogger.Named("router"))

	sched := scheduler.NewScheduler(*cfg, cache, purger, reportingService, baseLogger.Named("scheduler"))
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.API.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("api", cfg.API.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
