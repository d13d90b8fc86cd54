package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/config"
	"github.com/smallbiznis/fieldbooks/internal/server"
	"github.com/spf13/cobra"
)

var tokenFlags struct {
	subject string
	orgID   string
	role    string
	vendor  string
	ttl     time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for local development",
	Long: `Mint a bearer token signed with AUTH_JWT_SECRET. Production tokens come from the
identity provider; this command refuses to run when ENVIRONMENT=production.`,
	Example: `  fieldbooks token --org 1 --role office --subject dev@example.com
  fieldbooks token --org 1 --role vendor --vendor 42 --ttl 1h`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenFlags.subject, "subject", "dev", "actor id recorded in audit logs")
	tokenCmd.Flags().StringVar(&tokenFlags.orgID, "org", "", "organization id")
	tokenCmd.Flags().StringVar(&tokenFlags.role, "role", "admin", "admin, office, field or vendor")
	tokenCmd.Flags().StringVar(&tokenFlags.vendor, "vendor", "", "vendor id, required for the vendor role")
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("org")
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if cfg.IsProduction() {
		return errors.New("token minting is disabled in production")
	}

	orgID, err := snowflake.ParseString(strings.TrimSpace(tokenFlags.orgID))
	if err != nil || orgID == 0 {
		return fmt.Errorf("invalid --org %q", tokenFlags.orgID)
	}

	var vendorID *snowflake.ID
	if raw := strings.TrimSpace(tokenFlags.vendor); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil || parsed == 0 {
			return fmt.Errorf("invalid --vendor %q", raw)
		}
		vendorID = &parsed
	}

	claims := server.NewClaims(tokenFlags.subject, cfg.AuthJWTIssuer, orgID, tokenFlags.role, vendorID, time.Now(), tokenFlags.ttl)
	raw, err := server.IssueToken(cfg.AuthJWTSecret, claims)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), raw)
	return nil
}
