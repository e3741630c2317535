package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	app "github.com/seanotes/seanotes/internal/app"
	"github.com/seanotes/seanotes/internal/app/storage/postgres"
	"github.com/seanotes/seanotes/internal/config"
	"github.com/seanotes/seanotes/internal/logging"
	"github.com/seanotes/seanotes/internal/platform/migrations"
)

const pingTimeout = 5 * time.Second

func loadConfig(cmd *cobra.Command) (*config.Config, *logging.Logger, error) {
	files, _ := cmd.Flags().GetStringSlice("env-file")
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, logging.New("seanotes", cfg.Log.Level, cfg.Log.Format), nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := postgres.Open(cfg.URL, cfg.MaxOpenConns, cfg.MaxIdleConns)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// buildApp wires the application against PostgreSQL when DATABASE_URL is set
// and against in-memory stores otherwise. The returned cleanup closes the pool.
func buildApp(ctx context.Context, cfg *config.Config, log *logging.Logger) (*app.Application, func(), error) {
	if cfg.Auth.Secret == "" {
		cfg.Auth.Secret = randomSecret()
		log.Warn("AUTH_SECRET not set; using an ephemeral secret, sessions will not survive a restart")
	}

	var stores app.Stores
	cleanup := func() {}
	if cfg.Database.URL != "" {
		db, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := migrations.Up(db.DB); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		stores = app.PostgresStores(postgres.New(db))
		cleanup = func() {
			if err := db.Close(); err != nil {
				log.WithError(err).Warn("close database")
			}
		}
	} else {
		log.Warn("DATABASE_URL not set; data is kept in memory")
	}

	application, err := app.New(cfg, stores, app.Dependencies{}, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return application, cleanup, nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
