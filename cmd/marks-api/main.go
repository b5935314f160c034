package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-marks-api/api/swagger"
	"github.com/noah-isme/sma-marks-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-marks-api/internal/middleware"
	"github.com/noah-isme/sma-marks-api/internal/models"
	"github.com/noah-isme/sma-marks-api/internal/repository"
	"github.com/noah-isme/sma-marks-api/internal/service"
	"github.com/noah-isme/sma-marks-api/pkg/cache"
	"github.com/noah-isme/sma-marks-api/pkg/config"
	"github.com/noah-isme/sma-marks-api/pkg/database"
	"github.com/noah-isme/sma-marks-api/pkg/jobs"
	"github.com/noah-isme/sma-marks-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-marks-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-marks-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-marks-api/pkg/storage"
)

const shutdownTimeout = 10 * time.Second

// @title Student Marks API
// @version 1.0.0
// @description Student coursework and exam marks kept in a count-prefixed data file
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	checks := map[string]handler.ReadinessCheck{}

	repo, source, db, err := openRecordRepository(ctx, cfg, logr)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close() //nolint:errcheck
		checks["postgres"] = db.PingContext
	}

	store := service.NewRecordStore(repo, validate, logr, metrics)
	if _, err := store.Load(ctx, source); err != nil {
		return fmt.Errorf("initial load of %s: %w", source, err)
	}
	checks["records"] = func(ctx context.Context) error {
		if store.Source() == "" {
			return errors.New("no data source loaded")
		}
		return nil
	}

	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, report cache disabled", zap.Error(err))
		} else {
			cacheRepo := repository.NewCacheRepository(client, cfg.Store.Dataset, logr)
			defer cacheRepo.Close() //nolint:errcheck
			cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, true)
			checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
			flushStaleReports(ctx, cacheSvc, logr)
		}
	}
	reports := service.NewReportService(store, cacheSvc, logr, service.ReportServiceConfig{CacheTTL: cfg.Cache.TTL})

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return fmt.Errorf("prepare export storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exports := service.NewExportService(store, exportStore, signer, service.ExportConfig{
		APIPrefix:    cfg.APIPrefix,
		DefaultTheme: models.ParseTheme(cfg.Exports.Theme),
		ResultTTL:    cfg.Exports.SignedURLTTL,
	}, logr)
	cleanup := jobs.NewQueue("export-cleanup", exports.RunCleanup, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: 2,
		RetryDelay: 5 * time.Second,
		Logger:     logr,
	})
	cleanup.Start(ctx)
	defer cleanup.Stop()
	exports.UseCleanupQueue(cleanup)

	imports := service.NewImportService(store, logr)
	auth := service.NewAuthService(validate, logr, service.AuthConfig{
		Username:     cfg.Auth.OperatorUsername,
		PasswordHash: cfg.Auth.OperatorPasswordHash,
		Secret:       cfg.Auth.JWTSecret,
		TokenExpiry:  cfg.Auth.JWTExpiration,
	})

	if cfg.Store.WatchFile && cfg.Store.Driver == config.StoreDriverFile {
		watcher, err := service.NewReloadWatcher(store, repository.EncodeRecords, logr, 0)
		if err != nil {
			return fmt.Errorf("create reload watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("start reload watcher: %w", err)
		}
		defer watcher.Stop() //nolint:errcheck
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	operator := internalmiddleware.RequireOperator(auth, cfg.Auth.Enabled)
	api := r.Group(cfg.APIPrefix)

	authHandler := handler.NewAuthHandler(auth)
	api.POST("/auth/login", authHandler.Login)

	// Only file sources can be re-pointed, and only within the data directory.
	recordHandler := handler.NewRecordHandler(store, nil)
	if cfg.Store.Driver != config.StoreDriverPostgres {
		guard, err := service.NewSourceGuard(source)
		if err != nil {
			return err
		}
		recordHandler = handler.NewRecordHandler(store, guard)
	}
	records := api.Group("/records")
	records.GET("", recordHandler.List)
	records.GET("/search", recordHandler.Search)
	records.GET("/:code", recordHandler.Get)
	records.POST("", operator, recordHandler.Create)
	records.PUT("/:code", operator, recordHandler.Update)
	records.DELETE("/:code", operator, recordHandler.Delete)
	records.POST("/sort", operator, recordHandler.Sort)
	records.POST("/reload", operator, recordHandler.Reload)

	reportHandler := handler.NewReportHandler(reports)
	reportGroup := api.Group("/reports")
	reportGroup.GET("/summary", reportHandler.Summary)
	reportGroup.GET("/extreme", reportHandler.Extreme)
	reportGroup.GET("/distribution", reportHandler.Distribution)
	reportGroup.GET("/ranking", reportHandler.Ranking)

	exportHandler := handler.NewExportHandler(exports)
	api.POST("/exports", operator, exportHandler.Create)
	api.GET("/exports/:token", exportHandler.Download)

	importHandler := handler.NewImportHandler(imports)
	api.POST("/imports", operator, importHandler.Create)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.String("driver", cfg.Store.Driver),
			zap.String("source", store.Source()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openRecordRepository picks the backend named by MARKS_STORE_DRIVER and
// returns it with the source the store should load.
func openRecordRepository(ctx context.Context, cfg *config.Config, logr *zap.Logger) (service.RecordRepository, string, *sqlx.DB, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, "", nil, err
		}
		repo := repository.NewRecordPostgresRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, "", nil, err
		}
		return repo, cfg.Store.Dataset, db, nil
	case config.StoreDriverFile, "":
		source, err := filepath.Abs(cfg.Store.DataFile)
		if err != nil {
			return nil, "", nil, fmt.Errorf("resolve data file: %w", err)
		}
		return repository.NewRecordFileRepository(logr), source, nil, nil
	default:
		return nil, "", nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// flushStaleReports drops reports cached by a previous process; store
// versions restart at zero so their keys could collide.
func flushStaleReports(ctx context.Context, cacheSvc *service.CacheService, logr *zap.Logger) {
	if err := cacheSvc.Invalidate(ctx, "report:*"); err != nil {
		logr.Warn("stale report cache not flushed", zap.Error(err))
	}
}
