package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"ttrpg-tracker/internal/api"
	authapp "ttrpg-tracker/internal/app/auth"
	charapp "ttrpg-tracker/internal/app/character"
	invapp "ttrpg-tracker/internal/app/inventory"
	"ttrpg-tracker/internal/app/query"
	"ttrpg-tracker/internal/app/realtime"
	"ttrpg-tracker/internal/platform/cache"
	"ttrpg-tracker/internal/platform/config"
	"ttrpg-tracker/internal/platform/db"
	"ttrpg-tracker/internal/platform/docstore"
	pgdocs "ttrpg-tracker/internal/platform/docstore/postgres"
	sqlitedocs "ttrpg-tracker/internal/platform/docstore/sqlite"
	"ttrpg-tracker/internal/platform/migrate"
	"ttrpg-tracker/internal/platform/mq"
	"ttrpg-tracker/internal/platform/observability"
)

func main() {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := observability.NewLogger(cfg.Env)

	var pg *pgxpool.Pool
	if cfg.NeedsPostgres() {
		pg, err = db.Connect(ctx, cfg.PostgresURL, db.PoolOptions{MaxConns: cfg.PostgresMaxConns})
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		defer pg.Close()

		if err := migrate.Up(ctx, pg, cfg.MigrationDir, logger); err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
	}

	readyChecks := map[string]api.ReadyCheck{}
	if pg != nil {
		readyChecks["postgres"] = pg.Ping
	}

	var docs docstore.Store
	switch cfg.DocstoreDriver {
	case config.DocstorePostgres:
		docs = pgdocs.New(pg)
	case config.DocstoreSQLite:
		sqliteStore, err := sqlitedocs.Open(cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("sqlite open failed")
		}
		defer sqliteStore.Close()
		readyChecks["sqlite"] = sqliteStore.Ping
		docs = sqliteStore
	default:
		logger.Warn().Msg("using in-memory document store; data is lost on restart")
		docs = docstore.NewMemory(nil)
	}
	docs = docstore.Instrument(docs)

	var redisClient *redis.Client
	redisClient, err = cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable; using in-process cache and login limiter")
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
		readyChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	queryCache := query.New(newCacheStore(cfg, redisClient, logger), cfg.QueryCacheTTL, logger)

	hub := realtime.NewHub(logger)
	publisher := mq.Fanout(newNATSPublisher(cfg, logger), hub)
	defer publisher.Close()

	var users authapp.Users = authapp.NewMemoryUsers()
	if cfg.UserStore == config.DocstorePostgres {
		users = authapp.NewPostgresUsers(pg)
	}
	var limiter authapp.AttemptLimiter = authapp.NewMemoryLimiter(cfg.LoginMaxAttempts, cfg.LoginWindow, nil)
	if redisClient != nil {
		limiter = authapp.NewRedisLimiter(redisClient, cfg.LoginMaxAttempts, cfg.LoginWindow)
	}

	authSvc := authapp.NewService(users, limiter, cfg.JWTSecret, cfg.JWTTTL, logger.With().Str("component", "auth").Logger())
	charSvc := charapp.NewService(docs, queryCache, publisher, logger, charapp.WithCascadeDelete(cfg.CascadeDeleteItems))
	invSvc := invapp.NewService(docs, queryCache, publisher, logger)

	handler := api.NewHandler(logger, authSvc, charSvc, invSvc, hub, cfg.CorsOrigin, cfg.MaxRequestBody)
	for name, check := range readyChecks {
		handler.AddReadyCheck(name, check)
	}
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.HTTPAddr).
			Str("docstore", cfg.DocstoreDriver).
			Str("cache", cfg.CacheDriver).
			Bool("cascade_delete", cfg.CascadeDeleteItems).
			Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	logger.Info().Msg("server stopped")
}

func newCacheStore(cfg config.Config, client *redis.Client, logger zerolog.Logger) cache.Store {
	if cfg.CacheDriver == config.CacheRedis {
		if client != nil {
			return cache.NewRedisStore(client, "tracker:query:")
		}
		logger.Warn().Msg("CACHE_DRIVER=redis but redis is unavailable; falling back to memory")
	}
	store, err := cache.NewMemoryStore(cfg.CacheSize, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("query cache init failed")
	}
	return store
}

func newNATSPublisher(cfg config.Config, logger zerolog.Logger) mq.Publisher {
	if cfg.NATSURL == "" {
		return mq.NewNoopPublisher()
	}
	pub, err := mq.NewPublisher(cfg.NATSURL)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable; using noop publisher")
		return mq.NewNoopPublisher()
	}
	return pub
}
