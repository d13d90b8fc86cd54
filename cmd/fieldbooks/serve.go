package main

import (
	"github.com/smallbiznis/fieldbooks/internal/accounting"
	"github.com/smallbiznis/fieldbooks/internal/audit"
	"github.com/smallbiznis/fieldbooks/internal/migration"
	"github.com/smallbiznis/fieldbooks/internal/personnel"
	"github.com/smallbiznis/fieldbooks/internal/providers"
	"github.com/smallbiznis/fieldbooks/internal/scheduler"
	"github.com/smallbiznis/fieldbooks/internal/server"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API. The schema is migrated on startup and, unless SCHEDULER_ENABLED=false,
the background jobs run in the same process.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := fx.New(
			infrastructure(),
			migration.Module,
			server.Module,
			scheduler.Module,
		)
		app.Run()
		return app.Err()
	},
}

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run only the background jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := fx.New(
			infrastructure(),
			audit.Module,
			viewcache.Module,
			providers.Module,
			accounting.Module,
			personnel.Module,
			scheduler.Module,
		)
		app.Run()
		return app.Err()
	},
}
