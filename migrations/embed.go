// Package migrations встраивает SQL миграции схемы истории прогонов.
package migrations

import "embed"

// PostgresMigrations миграции goose для PostgreSQL, каталог "postgres"
//
//go:embed postgres/*.sql
var PostgresMigrations embed.FS
