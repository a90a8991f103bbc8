package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/lumichat/lumichat/db"
	"github.com/lumichat/lumichat/internal/chat"
	"github.com/lumichat/lumichat/internal/config"
	"github.com/lumichat/lumichat/internal/generate"
	"github.com/lumichat/lumichat/internal/history"
	"github.com/lumichat/lumichat/internal/log"
	"github.com/lumichat/lumichat/internal/observability"
	"github.com/lumichat/lumichat/internal/session"
)

// Setup creates and initializes the application: tracing, database pool,
// schema migrations, model client, and the chat pipeline wired on top.
// Call Close() to release everything.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.tracingShutdown = observability.SetupTracing(ctx, cfg.Tracing, logger)

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	codec := history.NewCodec(logger.With("component", "history"))

	store, err := session.NewStore(pool, codec, logger.With("component", "session"))
	if err != nil {
		return nil, fmt.Errorf("creating session store: %w", err)
	}
	a.SessionStore = store

	gen, err := provideGenerator(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Generator = gen

	svc, err := chat.NewService(store, gen, logger.With("component", "chat"))
	if err != nil {
		return nil, fmt.Errorf("creating chat service: %w", err)
	}
	a.Chat = svc

	return a, nil
}

// providePool builds the PostgreSQL connection pool and verifies the
// database is reachable. Connection retry on boot is left to the
// deployment environment.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing pool config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.PoolMaxConns) // #nosec G115 -- bounded by config validation
	poolCfg.MinConns = int32(cfg.PoolMinConns) // #nosec G115 -- bounded by config validation

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenerator builds the Gemini client and the generation source.
func provideGenerator(ctx context.Context, cfg *config.Config, logger log.Logger) (*generate.Generator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	gen, err := generate.New(generate.Config{
		Client:       client,
		Model:        cfg.ModelName,
		SystemPrompt: cfg.SystemPrompt,
		Temperature:  cfg.Temperature,
		Logger:       logger.With("component", "generate"),
		Limiter:      rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	})
	if err != nil {
		return nil, fmt.Errorf("creating generator: %w", err)
	}

	return gen, nil
}
