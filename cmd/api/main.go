package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/homeschool-api/api/swagger"
	"github.com/noah-isme/homeschool-api/internal/handler"
	"github.com/noah-isme/homeschool-api/internal/repository"
	"github.com/noah-isme/homeschool-api/internal/service"
	"github.com/noah-isme/homeschool-api/pkg/cache"
	"github.com/noah-isme/homeschool-api/pkg/config"
	"github.com/noah-isme/homeschool-api/pkg/database"
	"github.com/noah-isme/homeschool-api/pkg/logger"
)

// @title Homeschool Assignment API
// @version 1.0.0
// @description Assignments, recurring schedules and completion tracking for homeschooling families.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient := connectRedis(ctx, cfg, logr)
	if redisClient != nil {
		defer redisClient.Close()
	}

	app := buildApp(cfg, logr, db, redisClient)
	app.warmer.Start(ctx)
	defer app.warmer.Stop()
	router := newRouter(cfg, logr, app)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "timezone", cfg.Location.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logr.Fatal("server failed", zap.Error(err))
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
		_ = srv.Close()
	}
}

// connectRedis returns nil when the dashboard cache is disabled or Redis is
// unreachable; the cache layer treats a nil client as permanently cold.
func connectRedis(ctx context.Context, cfg *config.Config, logr *zap.Logger) *redis.Client {
	if !cfg.Dashboard.CacheEnabled {
		return nil
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, dashboard cache disabled", zap.Error(err))
		return nil
	}
	return client
}

type app struct {
	metrics    *service.MetricsService
	warmer     *service.DashboardWarmer
	auth       *service.AuthService
	audit      *repository.UserRepository
	users      *handler.UserHandler
	authH      *handler.AuthHandler
	students   *handler.StudentHandler
	assignment *handler.AssignmentHandler
	completion *handler.CompletionHandler
	dashboard  *handler.DashboardHandler
	export     *handler.ExportHandler
	ops        *handler.MetricsHandler
}

func buildApp(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, redisClient *redis.Client) *app {
	validate := service.NewValidator()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	completionRepo := repository.NewCompletionRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.CacheEnabled && redisClient != nil)
	recurrence := service.RecurrenceOptions{LookaheadDays: cfg.Recurrence.LookaheadDays, MaxInstances: cfg.Recurrence.MaxInstances}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, cacheSvc, validate, logr)
	assignmentSvc := service.NewAssignmentService(service.AssignmentServiceParams{
		Assignments: assignmentRepo,
		Completions: completionRepo,
		Students:    studentRepo,
		Cache:       cacheSvc,
		Validator:   validate,
		Logger:      logr,
		Location:    cfg.Location,
		Recurrence:  recurrence,
	})
	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Assignments: assignmentRepo,
		Completions: completionRepo,
		Students:    studentRepo,
		Cache:       cacheSvc,
		Metrics:     metrics,
		Logger:      logr,
		Config: service.DashboardServiceConfig{
			CacheTTL:   cfg.Dashboard.CacheTTL,
			Location:   cfg.Location,
			Recurrence: recurrence,
		},
	})
	var warmer *service.DashboardWarmer
	if cacheSvc.Enabled() && cfg.Dashboard.WarmOnToggle {
		warmer = service.NewDashboardWarmer(dashboardSvc, service.DashboardWarmerConfig{Workers: cfg.Dashboard.WarmWorkers, MaxRetries: 1}, logr)
	}
	completionSvc := service.NewCompletionService(service.CompletionServiceParams{
		Completions: completionRepo,
		Assignments: assignmentRepo,
		Students:    studentRepo,
		Cache:       cacheSvc,
		Warmer:      warmer,
		Metrics:     metrics,
		Validator:   validate,
		Logger:      logr,
		Location:    cfg.Location,
	})
	exportSvc := service.NewExportService(dashboardSvc, service.ExportConfig{Enabled: cfg.Exports.Enabled}, logr)

	checks := map[string]handler.HealthCheck{
		"database": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = cacheRepo.Ping
	}

	return &app{
		metrics:    metrics,
		warmer:     warmer,
		auth:       authSvc,
		audit:      userRepo,
		users:      handler.NewUserHandler(userSvc),
		authH:      handler.NewAuthHandler(authSvc),
		students:   handler.NewStudentHandler(studentSvc),
		assignment: handler.NewAssignmentHandler(assignmentSvc),
		completion: handler.NewCompletionHandler(completionSvc),
		dashboard:  handler.NewDashboardHandler(dashboardSvc),
		export:     handler.NewExportHandler(exportSvc),
		ops:        handler.NewMetricsHandler(metrics, checks),
	}
}
