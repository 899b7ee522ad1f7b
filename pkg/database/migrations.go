package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"trafficassign/pkg/logger"
)

// Migrator применяет встроенные SQL миграции через goose
type Migrator struct {
	db       *sql.DB
	provider *goose.Provider
}

// NewMigrator создаёт мигратор; dir каталог миграций внутри fsys
func NewMigrator(pool *pgxpool.Pool, fsys fs.FS, dir string) (*Migrator, error) {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations dir %q: %w", dir, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}

	return &Migrator{db: db, provider: provider}, nil
}

// Up применяет все новые миграции
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, r := range results {
		logger.Log.Info("migration applied",
			"version", r.Source.Version,
			"duration", r.Duration,
		)
	}
	return nil
}

// Down откатывает последнюю миграцию
func (m *Migrator) Down(ctx context.Context) error {
	r, err := m.provider.Down(ctx)
	if err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	logger.Log.Info("migration rolled back", "version", r.Source.Version)
	return nil
}

// Version текущая версия схемы
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	return m.provider.GetDBVersion(ctx)
}

// Close освобождает *sql.DB поверх пула; сам пул остаётся открытым
func (m *Migrator) Close() error {
	return m.db.Close()
}

// RunMigrations применяет миграции, если autoMigrate включён
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, autoMigrate bool, fsys fs.FS, dir string) error {
	if !autoMigrate {
		logger.Log.Debug("auto-migration is disabled")
		return nil
	}

	m, err := NewMigrator(pool, fsys, dir)
	if err != nil {
		return err
	}
	defer m.Close()

	return m.Up(ctx)
}
