package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ecoleplanner/timetable-api/api/swagger"
	"github.com/ecoleplanner/timetable-api/internal/handler"
	"github.com/ecoleplanner/timetable-api/internal/middleware"
	"github.com/ecoleplanner/timetable-api/internal/models"
	"github.com/ecoleplanner/timetable-api/internal/repository"
	"github.com/ecoleplanner/timetable-api/internal/service"
	"github.com/ecoleplanner/timetable-api/internal/timetable"
	"github.com/ecoleplanner/timetable-api/pkg/cache"
	"github.com/ecoleplanner/timetable-api/pkg/config"
	"github.com/ecoleplanner/timetable-api/pkg/database"
	"github.com/ecoleplanner/timetable-api/pkg/logger"
	corsmiddleware "github.com/ecoleplanner/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/ecoleplanner/timetable-api/pkg/middleware/requestid"
)

// @title Timetable API
// @version 1.0.0
// @description Timetable construction engine with multi-resource conflict detection and weekly uniqueness audits
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	cacheRepo := repository.NewCacheRepository(nil, logr)
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	sessionRepo := repository.NewSessionRepository(db)
	periodicRepo := repository.NewPeriodicSessionRepository(db)
	alertRepo := repository.NewAlertRepository(db)

	store := timetable.NewStore()
	book := timetable.NewAlertBook()

	timetableSvc := service.NewTimetableService(store, sessionRepo, cacheRepo, metricsSvc, validate, cfg.Cache.TTL, logr)
	auditSvc := service.NewAuditService(book, periodicRepo, alertRepo, metricsSvc, validate, logr)
	authSvc := service.NewAuthService(cfg.JWT)

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBoot()
	if err := timetableSvc.Load(bootCtx); err != nil {
		logr.Sugar().Fatalw("failed to hydrate timetable store", "error", err)
	}
	if err := auditSvc.Bootstrap(bootCtx); err != nil {
		logr.Sugar().Fatalw("failed to hydrate alert book", "error", err)
	}

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	auditSvc.StartWorker(workerCtx, cfg.Audit.WorkerConcurrency, cfg.Audit.WorkerRetries)
	defer auditSvc.StopWorker()

	if cfg.Audit.Interval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Audit.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-workerCtx.Done():
					return
				case <-ticker.C:
					if err := auditSvc.EnqueueAudit(workerCtx); err != nil {
						logr.Sugar().Warnw("failed to enqueue scheduled audit", "error", err)
					}
				}
			}
		}()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	sessionHandler := handler.NewSessionHandler(timetableSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleDirector)

	api.GET("/sessions", sessionHandler.List)
	api.GET("/sessions/:id", sessionHandler.Get)
	api.POST("/sessions", staff, sessionHandler.Create)
	api.PUT("/sessions/:id", staff, sessionHandler.Update)
	api.DELETE("/sessions/:id", staff, sessionHandler.Delete)
	api.GET("/classes/:id/sessions", sessionHandler.ListByClassGroup)
	api.GET("/teachers/:id/sessions", sessionHandler.ListByTeacher)
	api.GET("/days/:day/sessions", sessionHandler.ListByDay)

	api.GET("/periodic-sessions", auditHandler.ListPeriodicSessions)
	api.POST("/periodic-sessions", staff, auditHandler.CreatePeriodicSession)
	api.DELETE("/periodic-sessions/:id", staff, auditHandler.DeletePeriodicSession)
	api.POST("/audits/weekly/run", staff, auditHandler.RunAudit)
	api.GET("/alerts", auditHandler.ListAlerts)
	api.GET("/alerts/:id", auditHandler.GetAlert)
	api.POST("/alerts/:id/resolve", middleware.RequireRoles(models.RoleDirector), auditHandler.ResolveAlert)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
