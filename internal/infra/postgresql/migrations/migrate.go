package migrations

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

var options = &gormigrate.Options{
	TableName:                 "quota_dispatch_migrations",
	IDColumnName:              "id",
	IDColumnSize:              255,
	UseTransaction:            true,
	ValidateUnknownMigrations: true,
}

// All returns the schema migrations in apply order.
func All() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		createProviderUsageTable(),
		createBulkJobsTable(),
		createDispatchResultsTable(),
	}
}

// Migrate applies every pending migration. A database that knows migrations
// this binary does not is refused.
func Migrate(db *gorm.DB) error {
	if err := gormigrate.New(db, options, All()).Migrate(); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
