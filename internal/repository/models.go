package repository

import (
	"time"

	"github.com/kursadbilgin/quota-dispatch/internal/domain"
	"github.com/shopspring/decimal"
)

// UsageModel is the persistence model for the provider_usage table.
type UsageModel struct {
	Name          string `gorm:"type:varchar(64);primaryKey"`
	SentToday     int64  `gorm:"not null"`
	LastResetDate string `gorm:"type:varchar(10);not null"`
	UpdatedAt     time.Time
}

func (UsageModel) TableName() string {
	return "provider_usage"
}

// BulkJobModel is the persistence model for bulk_jobs.
type BulkJobModel struct {
	ID          string           `gorm:"type:uuid;primaryKey"`
	Channel     domain.Channel   `gorm:"type:varchar(10);not null"`
	Status      domain.JobStatus `gorm:"type:varchar(20);not null"`
	Concurrency int              `gorm:"not null"`
	DelayMS     int64            `gorm:"not null"`
	Total       int              `gorm:"not null"`
	Successful  int              `gorm:"not null"`
	Failed      int              `gorm:"not null"`
	SuccessRate float64          `gorm:"not null"`
	TotalCost   decimal.Decimal  `gorm:"type:numeric(14,7);not null"`
	CreatedAt   time.Time
}

func (BulkJobModel) TableName() string {
	return "bulk_jobs"
}

// DispatchResultModel is the persistence model for dispatch_results.
type DispatchResultModel struct {
	JobID             string          `gorm:"type:uuid;primaryKey"`
	ItemIndex         int             `gorm:"primaryKey;autoIncrement:false"`
	Destination       string          `gorm:"type:varchar(255);not null"`
	Success           bool            `gorm:"not null"`
	ProviderName      string          `gorm:"type:varchar(64)"`
	ProviderMessageID string          `gorm:"type:varchar(255)"`
	ErrorMessage      string          `gorm:"type:text"`
	Cost              decimal.Decimal `gorm:"type:numeric(14,7);not null"`
}

func (DispatchResultModel) TableName() string {
	return "dispatch_results"
}

func jobModelFromDomain(j *domain.BulkJob) *BulkJobModel {
	if j == nil {
		return nil
	}

	return &BulkJobModel{
		ID:          j.ID,
		Channel:     j.Channel,
		Status:      j.Summary.Status(),
		Concurrency: j.Concurrency,
		DelayMS:     j.Delay.Milliseconds(),
		Total:       j.Summary.Total,
		Successful:  j.Summary.Successful,
		Failed:      j.Summary.Failed,
		SuccessRate: j.Summary.SuccessRate,
		TotalCost:   j.Summary.TotalCost,
		CreatedAt:   j.CreatedAt,
	}
}

func resultModelsFromDomain(j *domain.BulkJob) []DispatchResultModel {
	if j == nil {
		return nil
	}

	models := make([]DispatchResultModel, 0, len(j.Results))
	for i, r := range j.Results {
		destination := ""
		if i < len(j.Messages) {
			destination = j.Messages[i].Destination
		}
		models = append(models, DispatchResultModel{
			JobID:             j.ID,
			ItemIndex:         i,
			Destination:       destination,
			Success:           r.Success,
			ProviderName:      r.ProviderName,
			ProviderMessageID: r.ProviderMessageID,
			ErrorMessage:      r.ErrorMessage,
			Cost:              r.Cost,
		})
	}
	return models
}

func jobModelToDomain(m *BulkJobModel, results []DispatchResultModel) *domain.BulkJob {
	if m == nil {
		return nil
	}

	job := &domain.BulkJob{
		ID:          m.ID,
		Channel:     m.Channel,
		Concurrency: m.Concurrency,
		Delay:       time.Duration(m.DelayMS) * time.Millisecond,
		Messages:    make([]domain.Message, 0, len(results)),
		Results:     make([]domain.DispatchResult, 0, len(results)),
		Summary: domain.BulkSummary{
			Total:       m.Total,
			Successful:  m.Successful,
			Failed:      m.Failed,
			SuccessRate: m.SuccessRate,
			TotalCost:   m.TotalCost,
			Errors:      []string{},
		},
		CreatedAt: m.CreatedAt,
	}

	for _, r := range results {
		job.Messages = append(job.Messages, domain.Message{Destination: r.Destination})
		job.Results = append(job.Results, domain.DispatchResult{
			Success:           r.Success,
			ProviderName:      r.ProviderName,
			ProviderMessageID: r.ProviderMessageID,
			ErrorMessage:      r.ErrorMessage,
			Cost:              r.Cost,
		})
		if !r.Success && r.ErrorMessage != "" {
			job.Summary.Errors = append(job.Summary.Errors, r.ErrorMessage)
		}
	}

	return job
}
