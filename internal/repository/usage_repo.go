package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/quota-dispatch/internal/domain"
	"github.com/kursadbilgin/quota-dispatch/internal/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ ledger.Ledger = (*GormUsageRepo)(nil)

// GormUsageRepo stores provider usage counters in PostgreSQL.
type GormUsageRepo struct {
	db *gorm.DB
}

func NewGormUsageRepo(db *gorm.DB) *GormUsageRepo {
	return &GormUsageRepo{db: db}
}

func (r *GormUsageRepo) Load(ctx context.Context) (map[string]domain.UsageEntry, error) {
	var models []UsageModel
	if err := r.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to load provider usage: %w", err)
	}

	entries := make(map[string]domain.UsageEntry, len(models))
	for _, m := range models {
		entries[m.Name] = domain.UsageEntry{
			SentToday:     m.SentToday,
			LastResetDate: m.LastResetDate,
		}
	}
	return entries, nil
}

func (r *GormUsageRepo) Save(ctx context.Context, name string, entry domain.UsageEntry) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: provider name is required", domain.ErrValidation)
	}

	model := UsageModel{
		Name:          trimmed,
		SentToday:     entry.SentToday,
		LastResetDate: entry.LastResetDate,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"sent_today", "last_reset_date", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to save provider usage: %w", err)
	}
	return nil
}
