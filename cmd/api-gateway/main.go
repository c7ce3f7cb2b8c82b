package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/classgrid/timetable-engine/api/swagger"
	internalhandler "github.com/classgrid/timetable-engine/internal/handler"
	internalmiddleware "github.com/classgrid/timetable-engine/internal/middleware"
	"github.com/classgrid/timetable-engine/internal/models"
	"github.com/classgrid/timetable-engine/internal/repository"
	"github.com/classgrid/timetable-engine/internal/service"
	"github.com/classgrid/timetable-engine/pkg/cache"
	"github.com/classgrid/timetable-engine/pkg/config"
	"github.com/classgrid/timetable-engine/pkg/database"
	"github.com/classgrid/timetable-engine/pkg/logger"
	corsmiddleware "github.com/classgrid/timetable-engine/pkg/middleware/cors"
	reqidmiddleware "github.com/classgrid/timetable-engine/pkg/middleware/requestid"
	"github.com/classgrid/timetable-engine/pkg/storage"
)

// @title Timetable Engine API
// @version 1.0.0
// @description Constraint-based class timetable generator and conflict engine
// @BasePath /api/v1
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	validate := validator.New()

	metricsSvc := service.NewMetricsService()
	metricsHandler := internalhandler.NewMetricsHandler(metricsSvc)

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to initialise database", "error", err)
	}
	defer db.Close()

	var cacheClient interface {
		Close() error
	}
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("cache disabled", "error", err)
		redisClient = nil
	} else {
		cacheClient = redisClient
	}
	if cacheClient != nil {
		defer cacheClient.Close() //nolint:errcheck
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	authRepo := repository.NewUserRepository(db)
	authSvc := service.NewAuthService(authRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "timetable-engine",
		Audience:           []string{"timetable-engine-clients"},
	})
	authHandler := internalhandler.NewAuthHandler(authSvc)

	authRoutes := api.Group("/auth")
	authRoutes.POST("/login", authHandler.Login)
	authRoutes.POST("/refresh", authHandler.Refresh)
	authRoutes.POST("/forgot-password", authHandler.ForgotPassword)
	authRoutes.POST("/reset-password", authHandler.ResetPassword)
	protectedAuth := authRoutes.Group("")
	protectedAuth.Use(internalmiddleware.JWT(authSvc))
	protectedAuth.POST("/logout", authHandler.Logout)
	protectedAuth.POST("/change-password", authHandler.ChangePassword)

	userSvc := service.NewUserService(authRepo, validate, logr)
	userHandler := internalhandler.NewUserHandler(userSvc)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(authSvc))

	usersGroup := secured.Group("/users")
	usersGroup.GET("", internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin)), userHandler.List)
	usersGroup.POST("", internalmiddleware.RBAC(string(models.RoleSuperAdmin)), userHandler.Create)
	usersGroup.GET("/:id", internalmiddleware.RBAC("SELF", string(models.RoleAdmin), string(models.RoleSuperAdmin)), userHandler.Get)
	usersGroup.PUT("/:id", internalmiddleware.RBAC("SELF", string(models.RoleAdmin), string(models.RoleSuperAdmin)), userHandler.Update)
	usersGroup.DELETE("/:id", internalmiddleware.RBAC(string(models.RoleSuperAdmin)), userHandler.Delete)

	instanceRepo := repository.NewInstanceRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	timetableSvc := service.NewTimetableService(instanceRepo, timetableRepo, redisClient, logr, cfg.Scheduler)

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		fileStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportSvc = service.NewReportService(timetableSvc, fileStore, signer, logr, cfg.Reports)
	} else {
		reportSvc = service.NewReportService(timetableSvc, nil, nil, logr, cfg.Reports)
	}
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	reportSvc.StartCleanup(cleanupCtx)
	defer reportSvc.StopCleanup()

	timetableHandler := internalhandler.NewTimetableHandler(timetableSvc, reportSvc, validate)

	if cfg.Scheduler.Enabled {
		timetableGroup := secured.Group("/timetable")
		timetableGroup.Use(internalmiddleware.WithResponseMeta())
		timetableGroup.POST("/generate", internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin)), internalmiddleware.Audit(authRepo, "generate", "schedule_version"), timetableHandler.Generate)
		timetableGroup.POST("/validate", internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin)), timetableHandler.Validate)
		timetableGroup.GET("/versions/:version_id/entries/:entry_id/suggest", internalmiddleware.RBAC(string(models.RoleTeacher), string(models.RoleAdmin), string(models.RoleSuperAdmin)), timetableHandler.Suggest)
		timetableGroup.POST("/entries/:entry_id/move", internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin)), internalmiddleware.Audit(authRepo, "move", "schedule_entry"), timetableHandler.Move)
		timetableGroup.POST("/versions/:version_id/activate", internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin)), internalmiddleware.Audit(authRepo, "activate", "schedule_version"), timetableHandler.Activate)
		timetableGroup.GET("/versions/:version_id/report", internalmiddleware.RBAC(string(models.RoleTeacher), string(models.RoleAdmin), string(models.RoleSuperAdmin)), timetableHandler.Report)
		timetableGroup.GET("/versions/:version_id/conflict-log", internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin)), timetableHandler.ConflictLog)
		timetableGroup.GET("/substitutes/needed", internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin)), timetableHandler.SubstitutesNeeded)
		timetableGroup.POST("/entries/:entry_id/substitute", internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin)), internalmiddleware.Audit(authRepo, "assign_substitute", "schedule_entry"), timetableHandler.AssignSubstitute)

		if cfg.Reports.Enabled {
			timetableGroup.GET("/versions/:version_id/report.csv", internalmiddleware.RBAC(string(models.RoleTeacher), string(models.RoleAdmin), string(models.RoleSuperAdmin)), timetableHandler.ReportCSV)
			timetableGroup.GET("/versions/:version_id/report.pdf", internalmiddleware.RBAC(string(models.RoleTeacher), string(models.RoleAdmin), string(models.RoleSuperAdmin)), timetableHandler.ReportPDF)
			timetableGroup.GET("/reports/download", timetableHandler.Download)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
