package service

import (
	"fmt"
	"time"

	"github.com/kursadbilgin/quota-dispatch/internal/domain"
	"github.com/kursadbilgin/quota-dispatch/internal/registry"
	"github.com/shopspring/decimal"
)

const notApplicable = "N/A"

type ProviderCapacity struct {
	Name           string          `json:"name"`
	Channel        domain.Channel  `json:"channel"`
	Remaining      int64           `json:"remaining"`
	Unlimited      bool            `json:"unlimited"`
	CostPerMessage decimal.Decimal `json:"costPerMessage"`
}

// Capacity is today's remaining quota across enabled providers. Unlimited
// providers are flagged and left out of TotalRemaining.
type Capacity struct {
	TotalRemaining int64              `json:"totalRemaining"`
	Unlimited      bool               `json:"unlimited"`
	Providers      []ProviderCapacity `json:"providers"`
}

type ProviderUsage struct {
	Name               string          `json:"name"`
	Channel            domain.Channel  `json:"channel"`
	Enabled            bool            `json:"enabled"`
	Sent               int64           `json:"sent"`
	Limit              int64           `json:"limit"`
	Remaining          int64           `json:"remaining"`
	Unlimited          bool            `json:"unlimited"`
	CostPerMessage     decimal.Decimal `json:"costPerMessage"`
	TotalCost          decimal.Decimal `json:"totalCost"`
	UtilizationPercent float64         `json:"utilizationPercent"`
	Utilization        string          `json:"utilization"`
}

type UsageReport struct {
	Date           string          `json:"date"`
	Providers      []ProviderUsage `json:"providers"`
	TotalSent      int64           `json:"totalSent"`
	TotalCost      decimal.Decimal `json:"totalCost"`
	TotalRemaining int64           `json:"totalRemaining"`
	Unlimited      bool            `json:"unlimited"`
}

// Reporter is a read-only view over the registry.
type Reporter struct {
	registry *registry.Registry
	now      func() time.Time
}

func NewReporter(reg *registry.Registry) (*Reporter, error) {
	if reg == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	return &Reporter{registry: reg, now: time.Now}, nil
}

func (r *Reporter) GetCapacity() Capacity {
	capacity := Capacity{Providers: []ProviderCapacity{}}

	for _, p := range r.registry.ListEnabled() {
		entry := ProviderCapacity{
			Name:           p.Name,
			Channel:        p.Channel,
			Unlimited:      p.Unlimited(),
			CostPerMessage: p.CostPerMessage,
		}
		if entry.Unlimited {
			capacity.Unlimited = true
		} else {
			entry.Remaining = p.Remaining()
			capacity.TotalRemaining += entry.Remaining
		}
		capacity.Providers = append(capacity.Providers, entry)
	}

	return capacity
}

// GetUsageReport lists every configured provider with today's usage. Cost
// figures are sent count times the configured unit cost.
func (r *Reporter) GetUsageReport() UsageReport {
	report := UsageReport{
		Date:      domain.DateOf(r.now()),
		Providers: []ProviderUsage{},
		TotalCost: decimal.Zero,
	}

	for _, p := range r.registry.List() {
		usage := ProviderUsage{
			Name:           p.Name,
			Channel:        p.Channel,
			Enabled:        p.Enabled,
			Sent:           p.SentToday,
			Limit:          p.DailyLimit,
			Unlimited:      p.Unlimited(),
			CostPerMessage: p.CostPerMessage,
			TotalCost:      p.CostPerMessage.Mul(decimal.NewFromInt(p.SentToday)),
			Utilization:    notApplicable,
		}

		if !usage.Unlimited {
			usage.Remaining = p.Remaining()
			if p.DailyLimit > 0 {
				pct := decimal.NewFromInt(p.SentToday).
					Mul(decimal.NewFromInt(100)).
					Div(decimal.NewFromInt(p.DailyLimit)).
					Round(2)
				usage.UtilizationPercent = pct.InexactFloat64()
				usage.Utilization = pct.StringFixed(2) + "%"
			}
		}

		report.TotalSent += usage.Sent
		report.TotalCost = report.TotalCost.Add(usage.TotalCost)
		if p.Enabled {
			if usage.Unlimited {
				report.Unlimited = true
			} else {
				report.TotalRemaining += usage.Remaining
			}
		}

		report.Providers = append(report.Providers, usage)
	}

	return report
}
