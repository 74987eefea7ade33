package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ChiranjibKoch/ArchFairFight/cmd/fairfight/shared"
	"github.com/ChiranjibKoch/ArchFairFight/internal/config"
	"github.com/ChiranjibKoch/ArchFairFight/internal/storage/postgres"
)

// MigrateCmd applies the SQL migrations
type MigrateCmd struct {
	Config string `kong:"default='fairfight.hcl',help='Path to HCL configuration file'"`
	Dir    string `kong:"default='internal/storage/postgres/migrations',help='Migrations directory'"`
	Debug  bool   `kong:"help='Enable debug logging'"`
}

func (c *MigrateCmd) Run() error {
	logger := shared.SetupLogger(c.Debug)

	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("no database configured, nothing to migrate")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool, c.Dir); err != nil {
		return err
	}

	logger.Info().Str("dir", c.Dir).Msg("Migrations applied")
	return nil
}
