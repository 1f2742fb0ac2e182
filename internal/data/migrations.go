package data

import (
	"context"
	"database/sql"

	"github.com/target/ledger-console/internal/migrate"
)

// RunMigrations applies the embedded schema by delegating to the migrate package.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.Run(ctx, db)
}

// PendingMigrations lists migrations not yet applied.
func PendingMigrations(ctx context.Context, db *sql.DB) ([]string, error) {
	return migrate.Pending(ctx, db)
}
