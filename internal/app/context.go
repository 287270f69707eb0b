package app

import (
	"database/sql"
	"fmt"

	"inproc/internal/config"
	"inproc/internal/db"
	"inproc/internal/engine"
	"inproc/internal/migrate"
	"inproc/internal/notify"
	"inproc/internal/repo"
)

// App wires the database, config, notifier and engine for a workspace.
type App struct {
	DB     *sql.DB
	Repo   repo.Repo
	Config *config.Config
	Engine engine.Engine
}

// Bootstrap opens the workspace database, applies migrations and assembles
// the engine with the outbox notifier.
func Bootstrap(workspace string) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r := repo.Repo{DB: conn}
	dispatcher := notify.New(r, cfg, notify.OutboxSender{Repo: r})
	return &App{
		DB:     conn,
		Repo:   r,
		Config: cfg,
		Engine: engine.New(conn, cfg, dispatcher),
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
