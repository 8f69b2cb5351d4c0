package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/quota-dispatch/internal/repository"
	"gorm.io/gorm"
)

func createDispatchResultsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_dispatch_results",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DispatchResultModel{}); err != nil {
				return err
			}
			statements := []string{
				`CREATE INDEX IF NOT EXISTS idx_dispatch_results_provider ON dispatch_results (provider_name) WHERE success`,
				`ALTER TABLE dispatch_results DROP CONSTRAINT IF EXISTS fk_dispatch_results_job`,
				`ALTER TABLE dispatch_results ADD CONSTRAINT fk_dispatch_results_job FOREIGN KEY (job_id) REFERENCES bulk_jobs (id) ON DELETE CASCADE`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DispatchResultModel{})
		},
	}
}
