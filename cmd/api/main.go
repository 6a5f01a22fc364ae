package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/school-service/internal/api/http"
	"github.com/spec-kit/school-service/internal/api/http/handlers"
	"github.com/spec-kit/school-service/internal/auth"
	"github.com/spec-kit/school-service/internal/config"
	"github.com/spec-kit/school-service/internal/events"
	"github.com/spec-kit/school-service/internal/observability"
	"github.com/spec-kit/school-service/internal/persistence"
	"github.com/spec-kit/school-service/internal/repository"
	"github.com/spec-kit/school-service/internal/service"
	"github.com/spec-kit/school-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	userRepo := repository.NewUserRepository(pg.PoolHandle())

	dispatcher := events.NewInMemoryDispatcher(logger)
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger))

	limiter := service.NewLoginLimiter(redis.Cmdable(), cfg.Auth.LoginMaxAttempts, cfg.Auth.LoginWindow(), logger)
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:   userRepo,
		Limiter:    limiter,
		Dispatcher: dispatcher,
	})
	resolver := auth.NewIdentityResolver(auth.ResolverConfig{
		Codec:         authService.TokenCodec(),
		Sessions:      userRepo,
		SessionMaxAge: cfg.Auth.SessionMaxAge(),
	})

	dependencies := map[string]handlers.Pinger{"postgres": pg}
	if redis.Cmdable() != nil {
		dependencies["redis"] = redis
	}

	metrics := observability.NewMetrics()
	app := httptransport.NewApp(cfg.App.Name, logger)
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, dependencies),
		Auth:           handlers.NewAuthHandler(authService),
		Admin:          handlers.NewAdminHandler(authService),
		AuthMiddleware: auth.NewAuthMiddleware(resolver, logger),
	})

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
