package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/gradeforge/gradeforge-api/api/swagger"
	"github.com/gradeforge/gradeforge-api/internal/handler"
	"github.com/gradeforge/gradeforge-api/internal/repository"
	"github.com/gradeforge/gradeforge-api/internal/service"
	"github.com/gradeforge/gradeforge-api/internal/ws"
	"github.com/gradeforge/gradeforge-api/pkg/cache"
	"github.com/gradeforge/gradeforge-api/pkg/config"
	"github.com/gradeforge/gradeforge-api/pkg/database"
	"github.com/gradeforge/gradeforge-api/pkg/jobs"
	"github.com/gradeforge/gradeforge-api/pkg/logger"
	corsmiddleware "github.com/gradeforge/gradeforge-api/pkg/middleware/cors"
	reqidmiddleware "github.com/gradeforge/gradeforge-api/pkg/middleware/requestid"
	"github.com/gradeforge/gradeforge-api/pkg/storage"
)

// @title GradeForge API
// @version 1.0.0
// @description BTEC coursework generation platform
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	// Repositories
	userRepo := repository.NewUserRepository(db)
	briefRepo := repository.NewBriefRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	jobRepo := repository.NewGenerationJobRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	hub := ws.NewHub(logr)
	defer hub.Shutdown()

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "gradeforge-api",
	})

	briefSvc := service.NewBriefService(briefRepo, logr)
	userSvc := service.NewUserService(userRepo, logr)

	tokenSvc := service.NewTokenService(tokenRepo, redisClient, userRepo, logr, service.TokenServiceConfig{
		BalanceCacheTTL: cfg.Tokens.BalanceCacheTTL,
		ResetInterval:   cfg.Tokens.ResetInterval,
	})

	generationSvc := service.NewGenerationService(jobRepo, assignmentRepo, service.CourseworkComposer{}, service.DistinctionApprovalPolicy{}, hub, redisClient, logr, service.GenerationConfig{
		MaxRetries:     cfg.Generation.WorkerRetries,
		StageDelay:     cfg.Generation.StageDelay,
		StatusCacheTTL: cfg.Generation.StatusCacheTTL,
	})
	generationSvc.SetMetrics(metricsSvc)

	queue := jobs.NewQueue("generation", generationSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Generation.WorkerConcurrency,
		MaxRetries: cfg.Generation.WorkerRetries,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()

	assignmentSvc := service.NewAssignmentService(briefRepo, assignmentRepo, jobRepo, queue, hub, userRepo, nil, service.GradeCosts{
		Pass:        cfg.Tokens.CostPass,
		Merit:       cfg.Tokens.CostMerit,
		Distinction: cfg.Tokens.CostDistinction,
	}, logr)

	paymentSvc := service.NewPaymentService(paymentRepo, tokenSvc, userRepo, logr, service.PaymentServiceConfig{
		ExpiryWindow:  cfg.Payments.ExpiryWindow,
		SweepInterval: cfg.Payments.SweepInterval,
	})

	documentStore, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)
	exportSvc := service.NewExportService(assignmentRepo, tokenRepo, documentStore, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Documents.SignedURLTTL,
	}, logr, nil, nil)

	// Background sweeps
	tokenSvc.StartResetSweep(ctx)
	paymentSvc.StartExpirySweep(ctx)
	exportSvc.StartCleanup(ctx, time.Hour)
	generationSvc.RecoverStaleJobs(ctx, queue, 10*time.Minute)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	handlers := handler.Handlers{
		Auth:       handler.NewAuthHandler(authSvc),
		Brief:      handler.NewBriefHandler(briefSvc),
		Assignment: handler.NewAssignmentHandler(assignmentSvc, tokenSvc),
		Generation: handler.NewGenerationHandler(generationSvc, hub, metricsSvc, ws.ConnConfig{
			WriteTimeout: cfg.Progress.WriteTimeout,
			PongTimeout:  cfg.Progress.PongTimeout,
			PingInterval: cfg.Progress.PingInterval,
		}, cfg.Progress.OutboundBuffer, cfg.CORS.AllowedOrigins),
		Token:   handler.NewTokenHandler(tokenSvc),
		Payment: handler.NewPaymentHandler(paymentSvc),
		Export:  handler.NewExportHandler(exportSvc),
		User:    handler.NewUserHandler(userSvc),
		Metrics: handler.NewMetricsHandler(metricsSvc),
	}
	handler.RegisterRoutes(r, cfg.APIPrefix, handlers, authSvc, metricsSvc)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
