package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/tourbook/tour-booking-service/internal/api/http"
	"github.com/tourbook/tour-booking-service/internal/api/http/handlers"
	"github.com/tourbook/tour-booking-service/internal/auth"
	"github.com/tourbook/tour-booking-service/internal/config"
	"github.com/tourbook/tour-booking-service/internal/domain"
	"github.com/tourbook/tour-booking-service/internal/events"
	"github.com/tourbook/tour-booking-service/internal/observability"
	"github.com/tourbook/tour-booking-service/internal/persistence"
	"github.com/tourbook/tour-booking-service/internal/repository"
	"github.com/tourbook/tour-booking-service/internal/service"
	"github.com/tourbook/tour-booking-service/internal/worker"
)

type stores struct {
	principals repository.CredentialStore
	tours      repository.TourRepository
	probes     map[string]handlers.Pinger
	close      func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer st.close()

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var attempts auth.AttemptLimiter
	if redis.Reachable {
		attempts = auth.NewRedisAttemptLimiter(redis.Client, cfg.Auth.MaxLoginAttempts, cfg.Auth.LoginLockout())
		st.probes["redis"] = redis
	} else {
		logger.Warn("login attempt limiter falling back to process memory")
		attempts = auth.NewMemoryAttemptLimiter(cfg.Auth.MaxLoginAttempts, cfg.Auth.LoginLockout(), nil)
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(dispatcher, logger, metrics)

	tokens, err := auth.NewTokenManager(
		cfg.Auth.AccessTokenSecret,
		cfg.Auth.RefreshTokenSecret,
		cfg.Auth.AccessTokenTTL(),
		cfg.Auth.RefreshTokenTTL(),
	)
	if err != nil {
		logger.Fatal("failed to init token manager", zap.Error(err))
	}

	sessions, err := service.NewSessionService(cfg.Auth, service.SessionDependencies{
		Store:      st.principals,
		Tokens:     tokens,
		Hasher:     auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		Attempts:   attempts,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to init session service", zap.Error(err))
	}
	if _, err := sessions.EnsureBootstrapAdmin(ctx, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPassword); err != nil {
		logger.Fatal("failed to create bootstrap admin", zap.Error(err))
	}

	sessionHandlers := make(map[domain.Role]*handlers.SessionHandler, len(domain.Roles))
	for _, role := range domain.Roles {
		sessionHandlers[role] = handlers.NewSessionHandler(sessions, role, cfg.Auth.CookieSecure)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:    handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, st.probes),
		Sessions:  sessionHandlers,
		Tours:     handlers.NewToursHandler(service.NewTourService(st.principals, st.tours)),
		Gate:      auth.NewAuthGate(tokens, logger, metrics),
		Metrics:   metrics,
		RateLimit: cfg.RateLimit,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
				pg.Close()
				return nil, err
			}
		}
		return &stores{
			principals: repository.NewPostgresCredentialStore(pg.Pool),
			tours:      repository.NewTourRepository(pg.Pool),
			probes:     map[string]handlers.Pinger{"postgres": pg},
			close:      pg.Close,
		}, nil

	case config.StoreBackendMongo:
		mongo, err := persistence.NewMongo(ctx, cfg.Mongo, logger)
		if err != nil {
			return nil, err
		}
		if err := repository.EnsureCredentialIndexes(ctx, mongo.Database); err != nil {
			mongo.Close(ctx)
			return nil, err
		}
		if err := repository.EnsureTourIndexes(ctx, mongo.Database); err != nil {
			mongo.Close(ctx)
			return nil, err
		}
		return &stores{
			principals: repository.NewMongoCredentialStore(mongo.Database),
			tours:      repository.NewMongoTourRepository(mongo.Database),
			probes:     map[string]handlers.Pinger{"mongo": mongo},
			close:      func() { mongo.Close(context.Background()) },
		}, nil

	default:
		logger.Warn("using in-memory store; data is lost on restart")
		return &stores{
			principals: repository.NewMemoryCredentialStore(),
			tours:      repository.NewMemoryTourRepository(),
			probes:     map[string]handlers.Pinger{},
			close:      func() {},
		}, nil
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
