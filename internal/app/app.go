// Package app provides application initialization and dependency wiring.
//
// App is the container that owns process-wide state: the database pool,
// the model client, and the components built on them. Everything is
// constructed once at startup and injected, so the chat pipeline stays
// testable with substitute stores and generators.
package app

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumichat/lumichat/internal/chat"
	"github.com/lumichat/lumichat/internal/config"
	"github.com/lumichat/lumichat/internal/generate"
	"github.com/lumichat/lumichat/internal/log"
	"github.com/lumichat/lumichat/internal/session"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	DBPool       *pgxpool.Pool
	SessionStore *session.Store
	Generator    *generate.Generator
	Chat         *chat.Service

	tracingShutdown func(context.Context)
}

// closeTimeout bounds shutdown work such as flushing pending spans.
const closeTimeout = 5 * time.Second

// Close releases all resources owned by the App.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.tracingShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		a.tracingShutdown(ctx)
		cancel()
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database pool closed")
	}

	return nil
}
