package migration

import (
	"strings"

	"github.com/smallbiznis/feeledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if strings.EqualFold(strings.TrimSpace(cfg.DBType), "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			log.Info("applying postgres migrations")
			return RunMigrations(sqlDB)
		}
		log.Info("auto migrating schema", zap.String("dialect", cfg.DBType))
		return AutoMigrate(conn)
	}),
)
