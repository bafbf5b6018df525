package migration

import (
	"github.com/smallbiznis/flightclub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Migrate),
)

// Migrate brings the schema up to date on startup.
func Migrate(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if !cfg.DBAutoMigrate {
		log.Warn("DATABASE_AUTO_MIGRATE=false; skipping migrations on startup")
		return nil
	}

	if cfg.DBType != "postgres" {
		log.Info("applying gorm auto migration", zap.String("type", cfg.DBType))
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	log.Info("applying sql migrations")
	return RunMigrations(sqlDB)
}
