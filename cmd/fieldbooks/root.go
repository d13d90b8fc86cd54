package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	"github.com/smallbiznis/fieldbooks/internal/config"
	"github.com/smallbiznis/fieldbooks/internal/lock"
	"github.com/smallbiznis/fieldbooks/internal/observability"
	"github.com/smallbiznis/fieldbooks/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "fieldbooks",
	Short:         "Back office for construction contractors",
	Long:          "fieldbooks tracks estimates, job orders, invoices, purchase orders, vendor bills, crew time and certifications, and keeps them in sync with the accounting system.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, schedulerCmd, migrateCmd, tokenCmd)
}

// infrastructure is shared by every long-running command.
func infrastructure() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
