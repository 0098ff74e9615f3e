package migration

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mailseat/internal/clock"
	"github.com/smallbiznis/mailseat/internal/config"
	"github.com/smallbiznis/mailseat/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, clk clock.Clock, log *zap.Logger) error {
		if err := applySchema(conn, log); err != nil {
			return err
		}

		email := strings.TrimSpace(cfg.BootstrapSuperAdminEmail)
		if email == "" {
			return nil
		}
		userID, err := seed.EnsureSuperAdmin(context.Background(), conn, node, email, clk.Now())
		if err != nil {
			return err
		}
		log.Info("super admin ensured", zap.String("user_id", userID.String()))
		return nil
	}),
)

func applySchema(conn *gorm.DB, log *zap.Logger) error {
	dialect := conn.Dialector.Name()
	if dialect != "postgres" {
		log.Info("applying schema from models", zap.String("dialect", dialect))
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}
