package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"todo-sync/internal/config"
	"todo-sync/pkg/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	pool *sql.DB
	once sync.Once
)

// DB returns the global database connection pool (initialized on first use).
// It returns nil when DATABASE_URL is unset or invalid.
func DB(ctx context.Context) *sql.DB {
	once.Do(func() {
		cfg := config.Get()
		if cfg.DatabaseURL == "" {
			logger.Error(ctx, "DATABASE_URL is not set")
			return
		}
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error(ctx, "Failed to open database", "error", err)
			return
		}
		db.SetMaxOpenConns(cfg.DBPoolSize)
		db.SetMaxIdleConns(cfg.DBPoolSize / 2)
		db.SetConnMaxIdleTime(5 * time.Minute)
		pool = db
		logger.Info(ctx, "Database pool initialized", "max_open", cfg.DBPoolSize)
	})
	return pool
}

// WaitReady pings db until it answers, up to attempts times.
func WaitReady(ctx context.Context, db *sql.DB, attempts int, every time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		logger.Warn(ctx, "Database not ready, retrying", "error", err, "attempt", i+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(every):
		}
	}
	return fmt.Errorf("database not ready after %d attempts: %w", attempts, err)
}

// MigrateOrCreateSchema applies the embedded migrations to the global pool.
func MigrateOrCreateSchema(ctx context.Context) error {
	db := DB(ctx)
	if db == nil {
		return errors.New("database not configured")
	}
	if err := WaitReady(ctx, db, 10, 2*time.Second); err != nil {
		return err
	}
	return Migrate(ctx, db)
}

// Migrate runs every pending up migration on db.
func Migrate(ctx context.Context, db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up: %w", err)
	}
	version, dirty, _ := m.Version()
	logger.Info(ctx, "Database schema ready", "version", version, "dirty", dirty)
	return nil
}
