package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/quota-dispatch/internal/repository"
	"gorm.io/gorm"
)

func createBulkJobsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_bulk_jobs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.BulkJobModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_bulk_jobs_created_at ON bulk_jobs (created_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.BulkJobModel{})
		},
	}
}
