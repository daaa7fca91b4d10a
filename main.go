package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/atrium-crm/atrium-engine/pkg/auth"
	"github.com/atrium-crm/atrium-engine/pkg/config"
	"github.com/atrium-crm/atrium-engine/pkg/database"
	"github.com/atrium-crm/atrium-engine/pkg/handlers"
	"github.com/atrium-crm/atrium-engine/pkg/logging"
	"github.com/atrium-crm/atrium-engine/pkg/middleware"
	"github.com/atrium-crm/atrium-engine/pkg/repositories"
	"github.com/atrium-crm/atrium-engine/pkg/retry"
	"github.com/atrium-crm/atrium-engine/pkg/services"
	"github.com/atrium-crm/atrium-engine/pkg/services/workqueue"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", cfg.Database.Host),
		zap.String("redis", cfg.Redis.Addr()),
		zap.Int("rules_batch_size", cfg.Rules.BatchSize))

	ctx := context.Background()

	// The database may still be starting when we are; retry the first
	// connection and the migration run with backoff before giving up.
	logger.Info("Connecting to database",
		zap.String("url", logging.SanitizeConnectionString(cfg.Database.ConnectionString())))
	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL: cfg.Database.ConnectionString(),
		})
	})
	if err != nil {
		logger.Fatal("Failed to connect to database",
			zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	if err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		return runMigrations(cfg, logger)
	}); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis",
			zap.String("error", logging.SanitizeError(err)))
	}

	validator, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to create JWKS client", zap.Error(err))
	}
	defer validator.Close()

	// Repositories
	clientRepo := repositories.NewClientRepository()
	tagRepo := repositories.NewTagRepository()
	assignmentRepo := repositories.NewTagAssignmentRepository()
	offerRepo := repositories.NewOfferRepository()
	notificationRepo := repositories.NewNotificationRepository()

	// Rule engine
	evaluator := services.NewConditionEvaluator(cfg.Rules.MaxConditionDepth)
	tagCache := services.NewTagCache(redisClient, services.DefaultTagCacheTTL, logger)
	queue := workqueue.New(logger,
		workqueue.WithStrategy(workqueue.NewThrottledBulkStrategy(cfg.Rules.MaxConcurrentWalks)))
	scopes := database.NewTenantScopeProvider(db)
	engine := services.NewRuleEngine(
		tagRepo,
		clientRepo,
		assignmentRepo,
		evaluator,
		tagCache,
		services.NewScopeTxRunner(),
		queue,
		scopes,
		cfg.Rules.BatchSize,
		logger,
	)

	// Services
	mailer := services.NewLogMailer(logger)
	notificationService := services.NewNotificationService(notificationRepo, mailer, logger)
	clientService := services.NewClientService(clientRepo, engine, logger)
	tagService := services.NewTagService(tagRepo, assignmentRepo, engine, evaluator, tagCache, logger)
	offerService := services.NewOfferService(offerRepo, clientRepo, engine, notificationService, logger)

	// HTTP surface
	authMiddleware := auth.NewMiddleware(validator, logger)
	tenantMiddleware := database.WithTenantContext(db, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewClientsHandler(clientService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewTagsHandler(tagService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewOffersHandler(offerService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewNotificationsHandler(notificationService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting atrium-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return database.RunMigrations(sqlDB, "migrations", logger)
}
