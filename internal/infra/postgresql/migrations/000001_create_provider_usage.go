package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/quota-dispatch/internal/repository"
	"gorm.io/gorm"
)

func createProviderUsageTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_provider_usage",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.UsageModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.UsageModel{})
		},
	}
}
