package storage

import (
	"embed"

	"github.com/md-rashed-zaman/clinicsched/libs/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations returns the schema migrations in apply order.
func Migrations() ([]db.Migration, error) {
	return db.LoadMigrations(migrationFS, "migrations")
}
