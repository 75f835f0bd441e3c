package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"itsm/internal/auth"
	"itsm/internal/authz"
	"itsm/internal/common/cache"
	"itsm/internal/common/db"
	commonmw "itsm/internal/common/http/middleware"
	"itsm/internal/common/mq"
	dircontroller "itsm/internal/directory/controller"
	dirrepo "itsm/internal/directory/repository"
	dirservice "itsm/internal/directory/service"
	"itsm/internal/problem/controller"
	"itsm/internal/problem/repository"
	"itsm/internal/problem/service"
	"itsm/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/problem_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "problem service stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	database, err := db.Open(appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database failed: %w", err)
	}
	defer func() {
		_ = database.Close()
	}()
	if appCfg.Database.Migrate {
		version, err := db.Migrate(ctx, database)
		if err != nil {
			return fmt.Errorf("migrate database failed: %w", err)
		}
		logger.Info(ctx, "database schema ready", zap.String("driver", appCfg.Database.Driver), zap.Int64("version", version))
	}

	var cacheClient cache.Cache
	if appCfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCache(appCfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis failed: %w", err)
		}
		defer func() {
			_ = redisCache.Close()
		}()
		cacheClient = redisCache
	} else {
		logger.Warn(ctx, "redis not configured, catalog caching disabled")
	}

	var events *service.EventPublisher
	if appCfg.Kafka.Enabled {
		producer, err := mq.NewKafkaProducer(appCfg.Kafka)
		if err != nil {
			return fmt.Errorf("init kafka failed: %w", err)
		}
		defer func() {
			_ = producer.Close()
		}()
		events = service.NewEventPublisher(producer, appCfg.Kafka.Topic)
	}

	evaluator, err := authz.NewEvaluator(appCfg.Authz.Roles)
	if err != nil {
		return fmt.Errorf("init role table failed: %w", err)
	}
	tokens, err := auth.NewTokenService(appCfg.Auth)
	if err != nil {
		return fmt.Errorf("init token service failed: %w", err)
	}

	accountRepo := dirrepo.NewAccountRepositoryWithTTL(database, cacheClient, appCfg.Authz.ResponsibleRoles,
		appCfg.Redis.CatalogTTL, appCfg.Redis.EmptyTTL)
	accountService := dirservice.NewAccountService(database, accountRepo, tokens, evaluator, cacheClient)

	problemService := service.NewProblemService(
		database,
		repository.NewProblemRepository(database),
		repository.NewCatalogRepositoryWithTTL(database, cacheClient, appCfg.Redis.CatalogTTL, appCfg.Redis.EmptyTTL),
		accountRepo,
		evaluator,
		events,
		service.Options{QueryTimeout: appCfg.Problem.QueryTimeout},
	)

	httpServer := buildHTTPServer(appCfg.Server, tokens, problemService, accountService)
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "problem http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	return nil
}

func buildHTTPServer(
	cfg ServerConfig,
	tokens *auth.TokenService,
	problemService *service.ProblemService,
	accountService *dirservice.AccountService,
) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContext())
	router.Use(requestLogger())
	router.Use(commonmw.Authenticate(tokens))
	router.Use(commonmw.RequestDeadline(cfg.RequestTimeout))

	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	accountController := dircontroller.NewAccountController(accountService)
	router.POST("/api/v1/auth/login", accountController.Login)
	accounts := router.Group("/api/v1/accounts")
	accounts.POST("", accountController.Create)
	accounts.DELETE("/:id", accountController.Delete)

	problemController := controller.NewProblemController(problemService)
	problemController.RegisterRoutes(router.Group("/api/v1/problems"))

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
