package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/fieldbooks/internal/config"
	"github.com/smallbiznis/fieldbooks/internal/migration"
	"github.com/smallbiznis/fieldbooks/internal/observability"
	"github.com/smallbiznis/fieldbooks/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errMigrateDialect = errors.New("versioned migrations require DATABASE_TYPE=postgres")

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
			return migration.Apply(conn, cfg, log)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	Example: `  # roll back the latest migration
  fieldbooks migrate down --steps 1

  # drop every table the migrations created
  fieldbooks migrate down --steps 0`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
			if cfg.DBType != "postgres" {
				return errMigrateDialect
			}
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.Down(sqlDB, migrateSteps); err != nil {
				return err
			}
			log.Info("migrations rolled back", zap.Int("steps", migrateSteps))
			return nil
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), func(conn *gorm.DB, cfg config.Config, _ *zap.Logger) error {
			if cfg.DBType != "postgres" {
				return errMigrateDialect
			}
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			version, dirty, err := migration.Version(sqlDB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
			return nil
		})
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back; 0 rolls back all")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

// withDatabase starts just enough of the app to hold a database connection.
func withDatabase(parent context.Context, fn func(*gorm.DB, config.Config, *zap.Logger) error) error {
	var (
		conn *gorm.DB
		cfg  config.Config
		log  *zap.Logger
	)
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		fx.Populate(&conn, &cfg, &log),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	startCtx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(conn, cfg, log)
}
