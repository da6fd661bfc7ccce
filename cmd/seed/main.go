// Command seed upserts the demo users into the configured database.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fitbet/bet-engine/internal/config"
	"github.com/fitbet/bet-engine/internal/model"
	"github.com/fitbet/bet-engine/internal/store"
)

var demoUsers = []model.User{
	{Name: "Demo Runner", Email: "runner@fitbet.example"},
	{Name: "Demo Lifter", Email: "lifter@fitbet.example"},
	{Name: "Demo Swimmer", Email: "swimmer@fitbet.example"},
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	st := store.NewPostgresStore(pool)
	if err := st.Migrate(ctx); err != nil {
		slog.Error("migration failed", "err", err)
		os.Exit(1)
	}

	for _, u := range demoUsers {
		u := u
		u.ID = uuid.New().String()
		if err := st.UpsertUser(ctx, &u); err != nil {
			slog.Error("seed user failed", "email", u.Email, "err", err)
			os.Exit(1)
		}
		slog.Info("seeded user", "id", u.ID, "email", u.Email)
	}
}
