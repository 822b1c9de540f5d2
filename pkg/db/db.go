package db

import (
	"context"
	"fmt"
	"time"

	"chatrelay/pkg/config"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const pingTimeout = 5 * time.Second

func NewDB(cfg *config.Config) (*sqlx.DB, error) {
	return Open(cfg.DBDriver, cfg.DatabaseURL)
}

func Open(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	// sqlite serializes writers anyway; a single connection avoids "database is locked".
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	logrus.WithField("driver", driver).Info("connected to database")
	return db, nil
}
