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
	"go.uber.org/zap"

	_ "github.com/accompli/iep-api/api/swagger"
	"github.com/accompli/iep-api/internal/handler"
	"github.com/accompli/iep-api/internal/middleware"
	"github.com/accompli/iep-api/internal/models"
	"github.com/accompli/iep-api/internal/repository"
	"github.com/accompli/iep-api/internal/service"
	"github.com/accompli/iep-api/pkg/cache"
	"github.com/accompli/iep-api/pkg/config"
	"github.com/accompli/iep-api/pkg/database"
	"github.com/accompli/iep-api/pkg/logger"
	corsmiddleware "github.com/accompli/iep-api/pkg/middleware/cors"
	reqidmiddleware "github.com/accompli/iep-api/pkg/middleware/requestid"
	"github.com/accompli/iep-api/pkg/storage"
)

// @title IEP API
// @version 1.0.0
// @description IEP tracking: students, plans, goals, behavior log, compliance and reports
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	cacheRepo := repository.NewCacheRepository(nil, logr)
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}

	validate := validator.New()
	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Dashboard.CacheTTL, logr, cfg.Redis.Enabled)

	studentRepo := repository.NewStudentRepository(db)
	iepRepo := repository.NewIEPRepository(db)
	goalRepo := repository.NewGoalRepository(db)
	behaviorRepo := repository.NewBehaviorRepository(db)
	reportRepo := repository.NewReportRepository(db)
	userRepo := repository.NewUserRepository(db)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	studentService := service.NewStudentService(studentRepo, validate, logr)
	iepService := service.NewIEPService(iepRepo, studentRepo, userRepo, validate, logr)
	goalService := service.NewGoalService(goalRepo, iepRepo, validate, logr, cfg.Goals.TrendWindow)
	behaviorService := service.NewBehaviorService(behaviorRepo, goalRepo, validate, logr)
	complianceService := service.NewComplianceService(iepRepo, studentRepo, logr, cfg.Compliance.DueSoonDays)
	dashboardService := service.NewDashboardService(service.DashboardServiceParams{
		Students:   studentRepo,
		Behavior:   behaviorRepo,
		Goals:      goalService,
		Compliance: complianceService,
		Cache:      cacheService,
		Logger:     logr,
		Config: service.DashboardServiceConfig{
			CacheTTL:           cfg.Dashboard.CacheTTL,
			RecentBehaviorDays: cfg.Dashboard.RecentBehaviorDays,
		},
	})
	assistantService := service.NewAssistantService(studentRepo, iepRepo, goalRepo, behaviorRepo, logr, cfg.Assistant)

	var reportService *service.ReportService
	if cfg.Reports.Enabled {
		exportStorage, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportService = service.NewReportService(service.ReportServiceParams{
			Store:      reportRepo,
			Goals:      goalRepo,
			Behavior:   behaviorRepo,
			Students:   studentRepo,
			Deriver:    goalService,
			Storage:    exportStorage,
			Signer:     signer,
			Metrics:    metricsService,
			Logger:     logr,
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
		})
		reportService.Start(context.Background())
		defer reportService.Stop()
	}

	router := buildRouter(cfg, logr, routerDeps{
		auth:       authService,
		metrics:    metricsService,
		students:   studentService,
		ieps:       iepService,
		goals:      goalService,
		behavior:   behaviorService,
		compliance: complianceService,
		dashboard:  dashboardService,
		assistant:  assistantService,
		reports:    reportService,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

type routerDeps struct {
	auth       *service.AuthService
	metrics    *service.MetricsService
	students   *service.StudentService
	ieps       *service.IEPService
	goals      *service.GoalService
	behavior   *service.BehaviorService
	compliance *service.ComplianceService
	dashboard  *service.DashboardService
	assistant  *service.AssistantService
	reports    *service.ReportService
}

func buildRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	metricsHandler := handler.NewMetricsHandler(deps.metrics)
	r.GET("/metrics", metricsHandler.Prometheus())

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(deps.auth)
	studentHandler := handler.NewStudentHandler(deps.students, deps.dashboard)
	iepHandler := handler.NewIEPHandler(deps.ieps, deps.dashboard)
	goalHandler := handler.NewGoalHandler(deps.goals, deps.metrics, deps.dashboard)
	behaviorHandler := handler.NewBehaviorHandler(deps.behavior, deps.metrics, deps.dashboard)
	complianceHandler := handler.NewComplianceHandler(deps.compliance)
	dashboardHandler := handler.NewDashboardHandler(deps.dashboard)
	assistantHandler := handler.NewAssistantHandler(deps.assistant)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(deps.auth), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(deps.auth), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(deps.auth), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(deps.auth), middleware.ParentReadOnly())
	{
		staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher, models.RoleAide)

		protected.GET("/students", studentHandler.List)
		protected.GET("/students/:id", studentHandler.Get)
		protected.POST("/students", staff, studentHandler.Create)
		protected.PUT("/students/:id", staff, studentHandler.Update)
		protected.DELETE("/students/:id", middleware.RequireRoles(models.RoleAdmin), studentHandler.Delete)

		protected.GET("/ieps", iepHandler.List)
		protected.GET("/ieps/:id", iepHandler.Get)
		protected.POST("/ieps", staff, iepHandler.Create)
		protected.PUT("/ieps/:id", staff, iepHandler.Update)
		protected.POST("/ieps/:id/activate", staff, iepHandler.Activate)
		protected.POST("/ieps/:id/amend", staff, iepHandler.Amend)

		protected.GET("/goals", goalHandler.List)
		protected.GET("/goals/:id", goalHandler.Get)
		protected.POST("/goals", staff, goalHandler.Create)
		protected.POST("/goals/:id/progress", staff, goalHandler.RecordProgress)
		protected.POST("/goals/:id/close", staff, goalHandler.Close)

		protected.GET("/behavior-events", behaviorHandler.List)
		protected.GET("/behavior-events/:id", behaviorHandler.Get)
		protected.POST("/behavior-events", staff, behaviorHandler.Create)
		protected.POST("/behavior-events/:id/follow-up", staff, behaviorHandler.AppendFollowUp)
		protected.GET("/students/:id/behavior-summary", behaviorSummaryRoute(behaviorHandler))

		protected.GET("/students/:id/compliance", complianceRoute(complianceHandler))
		protected.GET("/compliance/sweep", staff, complianceHandler.Sweep)

		protected.GET("/dashboard/caseload", dashboardHandler.Caseload)

		protected.GET("/metrics/summary", middleware.RequireRoles(models.RoleAdmin), metricsHandler.Snapshot)

		protected.POST("/assistant/suggest-goal", staff, assistantHandler.SuggestGoal)

		if deps.reports != nil {
			reportHandler := handler.NewReportHandler(deps.reports)
			protected.POST("/reports", staff, reportHandler.Enqueue)
			protected.GET("/reports", reportHandler.List)
			protected.GET("/reports/:id", reportHandler.Get)
		}
	}

	// The signed token is self-authenticating; downloads skip the JWT so
	// result URLs work in a plain browser tab.
	if deps.reports != nil {
		reportHandler := handler.NewReportHandler(deps.reports)
		api.GET("/reports/:id/download", reportHandler.Download)
	}

	return r
}

// gin cannot mount both /students/:id and /students/:studentId, so the
// nested routes reuse the :id parameter.
func behaviorSummaryRoute(h *handler.BehaviorHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Params = append(c.Params, gin.Param{Key: "studentId", Value: c.Param("id")})
		h.Summary(c)
	}
}

func complianceRoute(h *handler.ComplianceHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Params = append(c.Params, gin.Param{Key: "studentId", Value: c.Param("id")})
		h.CheckStudent(c)
	}
}
