package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-schedule-engine/api/swagger"
	"github.com/noah-isme/sma-schedule-engine/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-schedule-engine/internal/middleware"
	"github.com/noah-isme/sma-schedule-engine/internal/models"
	"github.com/noah-isme/sma-schedule-engine/internal/repository"
	"github.com/noah-isme/sma-schedule-engine/internal/service"
	"github.com/noah-isme/sma-schedule-engine/pkg/cache"
	"github.com/noah-isme/sma-schedule-engine/pkg/config"
	"github.com/noah-isme/sma-schedule-engine/pkg/database"
	"github.com/noah-isme/sma-schedule-engine/pkg/jobs"
	"github.com/noah-isme/sma-schedule-engine/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-schedule-engine/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-schedule-engine/pkg/middleware/requestid"
)

// @title School Schedule Engine API
// @version 1.0.0
// @description Recurring schedules, generated lessons, live sessions and attendance.
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
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(context.Background(), cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, summary cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	scheduleRepo := repository.NewScheduleRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	sessionRepo := repository.NewLessonSessionRepository(db)
	attendanceRepo := repository.NewLessonAttendanceRepository(db)
	behaviorRepo := repository.NewBehaviorRepository(db)
	classRepo := repository.NewClassRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)
	authSvc := service.NewAuthService(service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
	})

	validate := service.NewValidator()
	detector := service.NewConflictDetector(scheduleRepo, metricsSvc, logr)
	scheduleSvc := service.NewScheduleService(scheduleRepo, detector, service.ScheduleServiceConfig{
		BlockOnWarning: cfg.Scheduling.BlockOnWarning,
	}, validate, logr)
	generator := service.NewLessonGenerator(db, scheduleRepo, lessonRepo, service.LessonGeneratorConfig{
		MaxDays: cfg.Scheduling.GenerationMaxDays,
	}, metricsSvc, logr)
	stats := service.NewStatsRefresher(attendanceRepo, behaviorRepo, enrollmentRepo, lessonRepo, sessionRepo)
	lessonSvc := service.NewLessonService(db, lessonRepo, classRepo, stats, cacheSvc, metricsSvc, logr)
	sessionSvc := service.NewSessionService(db, sessionRepo, scheduleRepo, classRepo, behaviorRepo, enrollmentRepo, stats,
		service.SessionServiceConfig{MinPoints: cfg.Behavior.MinPoints, MaxPoints: cfg.Behavior.MaxPoints}, metricsSvc, logr)
	attendanceSvc := service.NewAttendanceService(lessonRepo, sessionRepo, attendanceRepo, enrollmentRepo, stats, cacheSvc, metricsSvc, logr)

	generationQueue := service.NewGenerationQueue(generator, jobs.QueueConfig{
		Workers:    cfg.Scheduling.GenerationWorkers,
		MaxRetries: cfg.Scheduling.GenerationRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	generationQueue.Start(context.Background())

	scheduleHandler := handler.NewScheduleHandler(scheduleSvc, generator, generationQueue)
	lessonHandler := handler.NewLessonHandler(lessonSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db, cacheRepo)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := strings.TrimRight(cfg.APIPrefix, "/")
	api := r.Group(prefix)
	api.Use(internalmiddleware.JWT(authSvc))
	api.Use(internalmiddleware.Audit(logr))

	staff := internalmiddleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher)
	admins := internalmiddleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)

	api.GET("/metrics/snapshot", admins, metricsHandler.Snapshot)

	schedules := api.Group("/schedules")
	schedules.GET("", staff, scheduleHandler.List)
	schedules.POST("/validate", staff, scheduleHandler.Validate)
	schedules.GET("/:id", staff, scheduleHandler.Get)
	schedules.POST("", admins, scheduleHandler.Create)
	schedules.PUT("/:id", admins, scheduleHandler.Update)
	schedules.PATCH("/:id/status", admins, scheduleHandler.UpdateStatus)
	schedules.DELETE("/:id", admins, scheduleHandler.Delete)
	schedules.POST("/:id/generate-lessons", admins, scheduleHandler.GenerateLessons)

	lessons := api.Group("/lessons", staff)
	lessons.GET("", lessonHandler.List)
	lessons.POST("", lessonHandler.Create)
	lessons.GET("/:id", lessonHandler.Get)
	lessons.POST("/:id/start", lessonHandler.Start)
	lessons.POST("/:id/postpone", lessonHandler.Postpone)
	lessons.POST("/:id/reschedule", lessonHandler.Reschedule)
	lessons.POST("/:id/teacher-absent", lessonHandler.TeacherAbsent)
	lessons.POST("/:id/complete", lessonHandler.Complete)
	lessons.POST("/:id/cancel", lessonHandler.Cancel)
	lessons.GET("/:id/attendance", attendanceHandler.ListLesson)
	lessons.POST("/:id/attendance", attendanceHandler.MarkLesson)
	lessons.POST("/:id/attendance/quick-mark", attendanceHandler.QuickMarkLesson)
	lessons.GET("/:id/attendance/summary", attendanceHandler.SummaryLesson)

	sessions := api.Group("/sessions", staff)
	sessions.POST("", sessionHandler.Start)
	sessions.GET("/:id", sessionHandler.Get)
	sessions.PATCH("/:id/note", sessionHandler.UpdateNote)
	sessions.POST("/:id/complete", sessionHandler.Complete)
	sessions.POST("/:id/cancel", sessionHandler.Cancel)
	sessions.GET("/:id/behavior", sessionHandler.ListBehavior)
	sessions.POST("/:id/behavior", sessionHandler.AddBehavior)
	sessions.GET("/:id/attendance", attendanceHandler.ListSession)
	sessions.POST("/:id/attendance", attendanceHandler.MarkSession)
	sessions.GET("/:id/attendance/summary", attendanceHandler.SummarySession)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	generationQueue.Stop()
	logr.Info("server stopped")
}
