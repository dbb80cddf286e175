package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"signalmarket/internal/audit"
	"signalmarket/internal/config"
	cronrunner "signalmarket/internal/cron"
	"signalmarket/internal/db"
	"signalmarket/internal/dispatch"
	"signalmarket/internal/handler"
	"signalmarket/internal/logger"
	"signalmarket/internal/ratelimit"
	gormrepository "signalmarket/internal/repository/gorm"
	"signalmarket/internal/resolver"
	"signalmarket/internal/service"
	"signalmarket/internal/stats"
	"signalmarket/internal/tracker"
)

func main() {
	cfgPath := os.Getenv("SM_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("SM_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Counter store: Redis when configured, in-process otherwise.
	var counterStore ratelimit.CounterStore
	var memStore *ratelimit.MemoryStore
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at startup", zap.Error(err))
		}
		counterStore = ratelimit.NewRedisStore(redisClient)
	} else {
		memStore = ratelimit.NewMemoryStore()
		counterStore = memStore
	}
	limiter := ratelimit.New(counterStore, cfg.RateLimit)

	auditRecorder := audit.NewRecorder(store, logger, cfg.Audit.QueueSize)
	go auditRecorder.Run(ctx)

	hub := dispatch.NewHub(logger, cfg.Dispatch.ConnBuffer)
	strategyResolver := resolver.New(store, logger)
	lifecycleTracker := tracker.New(store, logger, cfg.Ingest.DuplicateWindow)
	aggregator := stats.NewAggregator(store, logger,
		cfg.Marketplace.VisibilityWindowDays, cfg.Marketplace.CacheTTL)

	ingestSvc := &service.IngestService{
		Resolver:      strategyResolver,
		Tracker:       lifecycleTracker,
		Hub:           hub,
		Audit:         auditRecorder,
		Logger:        logger,
		DefaultSource: cfg.Ingest.DefaultSource,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	general := ratelimit.Middleware(limiter, ratelimit.CategoryGeneral, logger)
	trading := ratelimit.Middleware(limiter, ratelimit.CategoryTrading, logger)
	authLimit := ratelimit.Middleware(limiter, ratelimit.CategoryAuth, logger)
	marketplaceLimit := ratelimit.Middleware(limiter, ratelimit.CategoryMarketplace, logger)
	exportLimit := ratelimit.Middleware(limiter, ratelimit.CategoryExport, logger)

	(&handler.HealthHandler{DB: dbConn.Gorm}).Register(engine)

	var verifier handler.CredentialVerifier
	if sv := service.NewStaticVerifier(os.Getenv("SM_AUTH_USERS")); !sv.Empty() {
		verifier = sv
	}

	(&handler.IngestHandler{Ingest: ingestSvc, Logger: logger}).Register(engine, trading)
	(&handler.SignalHandler{Repo: store}).Register(engine, general)
	(&handler.StrategyHandler{Repo: store, Resolver: strategyResolver}).Register(engine, general)
	(&handler.SubscriptionHandler{Repo: store, Audit: auditRecorder}).Register(engine, general)
	(&handler.MarketplaceHandler{Stats: aggregator}).Register(engine, marketplaceLimit)
	(&handler.ExportHandler{Repo: store}).Register(engine, exportLimit)
	(&handler.AuditHandler{Repo: store}).Register(engine, general)
	(&handler.WSHandler{Hub: hub, Repo: store, Logger: logger}).Register(engine)
	(&handler.AuthHandler{
		Verifier: verifier,
		Limiter:  limiter,
		Audit:    auditRecorder,
		Logger:   logger,
	}).Register(engine, authLimit)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)
		_, err = cronRunner.Add(cfg.Cron.MarketplaceCache, func(ctx context.Context) {
			if _, err := aggregator.Refresh(ctx); err != nil {
				logger.Warn("cron marketplace refresh failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register marketplace refresh failed", zap.Error(err))
		}
		_, err = cronRunner.Add(cfg.Cron.StaleEntrySweep, func(ctx context.Context) {
			expired, err := lifecycleTracker.ExpireStale(ctx, cfg.Ingest.StaleEntryAge, 500)
			if err != nil {
				logger.Warn("cron stale entry sweep failed", zap.Error(err))
				return
			}
			if expired > 0 {
				logger.Info("stale entries expired", zap.Int("count", expired))
			}
		})
		if err != nil {
			logger.Warn("cron register stale entry sweep failed", zap.Error(err))
		}
		if memStore != nil {
			_, err = cronRunner.Add(cfg.Cron.CounterGC, func(ctx context.Context) {
				memStore.GC()
			})
			if err != nil {
				logger.Warn("cron register counter gc failed", zap.Error(err))
			}
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
