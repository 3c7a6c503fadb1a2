package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bizledger-backend/config"
)

// Connect opens the database named by cfg and installs the tracing plugin.
func Connect(cfg config.Config, log *logrus.Logger) (*gorm.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.DBDriver, err)
	}
	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		log.WithError(err).Warn("db connected but failed to install otelgorm plugin")
	}
	log.WithField("driver", cfg.DBDriver).Info("connected to database")
	return db, nil
}
