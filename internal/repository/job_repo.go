package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/quota-dispatch/internal/domain"
	"gorm.io/gorm"
)

type JobRepository interface {
	Create(ctx context.Context, job *domain.BulkJob) error
	GetByID(ctx context.Context, id string) (*domain.BulkJob, error)
}

type GormJobRepo struct {
	db *gorm.DB
}

func NewGormJobRepo(db *gorm.DB) *GormJobRepo {
	return &GormJobRepo{db: db}
}

func (r *GormJobRepo) Create(ctx context.Context, job *domain.BulkJob) error {
	model := jobModelFromDomain(job)
	if model == nil {
		return domain.ErrValidation
	}
	results := resultModelsFromDomain(job)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		if len(results) == 0 {
			return nil
		}
		return tx.CreateInBatches(&results, 100).Error
	})
}

func (r *GormJobRepo) GetByID(ctx context.Context, id string) (*domain.BulkJob, error) {
	var model BulkJobModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var results []DispatchResultModel
	err = r.db.WithContext(ctx).
		Where("job_id = ?", id).
		Order("item_index ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}

	return jobModelToDomain(&model, results), nil
}
