package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/gradebook-api/api/swagger"
	"github.com/noah-isme/gradebook-api/internal/handler"
	"github.com/noah-isme/gradebook-api/internal/middleware"
	"github.com/noah-isme/gradebook-api/internal/repository"
	"github.com/noah-isme/gradebook-api/internal/service"
	"github.com/noah-isme/gradebook-api/pkg/cache"
	"github.com/noah-isme/gradebook-api/pkg/config"
	"github.com/noah-isme/gradebook-api/pkg/database"
	"github.com/noah-isme/gradebook-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/gradebook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/gradebook-api/pkg/middleware/requestid"
)

// @title Gradebook API
// @version 1.0.0
// @description Study groups, lessons, marks and attendance tracking
// @BasePath /
// @schemes http

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
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, progress caching disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close()
		}
	}

	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db, metricsSvc)
	groupRepo := repository.NewGroupRepository(db, metricsSvc)
	lessonRepo := repository.NewLessonRepository(db, metricsSvc)
	markRepo := repository.NewMarkRepository(db, metricsSvc)

	userSvc := service.NewUserService(userRepo, groupRepo, nil, logr)
	authSvc := service.NewAuthService(userRepo, userSvc, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	groupSvc := service.NewGroupService(groupRepo, userRepo, nil, logr)
	lessonSvc := service.NewLessonService(lessonRepo, groupRepo, markRepo, cacheRepo, nil, logr)
	markSvc := service.NewMarkService(markRepo, lessonRepo, groupRepo, userRepo, cacheRepo, metricsSvc, cfg.Cache.ProgressTTL, nil, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	groupHandler := handler.NewGroupHandler(groupSvc)
	lessonHandler := handler.NewLessonHandler(lessonSvc)
	markHandler := handler.NewMarkHandler(markSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Docs.Enabled && cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/registration/", authHandler.Register)
	api.POST("/login/", authHandler.Login)
	api.POST("/refresh-token/", authHandler.Refresh)
	api.POST("/verify-token/", authHandler.Verify)

	authed := api.Group("", middleware.JWT(authSvc))
	authed.POST("/logout/", authHandler.Logout)
	authed.GET("/me/", userHandler.Me)
	authed.PUT("/me/", userHandler.UpdateMe)

	authed.GET("/groups/", groupHandler.List)
	authed.POST("/groups/", groupHandler.Create)
	authed.PUT("/groups/:id/", groupHandler.Update)
	authed.DELETE("/groups/:id/", groupHandler.Delete)
	authed.POST("/groups/:id/students/", groupHandler.AddStudent)
	authed.POST("/groups/:id/teachers/", groupHandler.AddTeacher)
	authed.GET("/groups/:id/lessons/", lessonHandler.List)
	authed.POST("/groups/:id/lessons/", lessonHandler.Create)
	authed.GET("/groups/:id/student_progress/", markHandler.StudentProgress)

	authed.PUT("/lessons/:id/", lessonHandler.Update)
	authed.DELETE("/lessons/:id/", lessonHandler.Delete)
	authed.POST("/lessons/:id/marks/", markHandler.UpsertMark)
	authed.DELETE("/lessons/:id/marks/", markHandler.DeleteMark)
	authed.POST("/lessons/:id/attendances/", markHandler.SetAttendance)
	authed.GET("/lessons/:id/students/", markHandler.LessonStudents)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
