package migration

import (
	"github.com/smallbiznis/fieldbooks/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Apply),
)

// Apply brings the schema up to date on startup.
func Apply(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if cfg.DBType != "postgres" {
		log.Info("auto-migrating schema", zap.String("db_type", cfg.DBType))
		return conn.AutoMigrate(Models()...)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if err := Up(sqlDB); err != nil {
		return err
	}
	if version, dirty, err := Version(sqlDB); err == nil {
		log.Info("schema migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}
