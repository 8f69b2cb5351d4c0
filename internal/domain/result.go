package domain

import "github.com/shopspring/decimal"

// Message is one destination/body pair of a bulk job.
type Message struct {
	Destination string `json:"destination"`
	Body        string `json:"body"`
}

// DispatchResult is the outcome of one send attempt.
type DispatchResult struct {
	Success           bool            `json:"success"`
	ProviderName      string          `json:"providerName"`
	ProviderMessageID string          `json:"providerMessageId"`
	ErrorMessage      string          `json:"errorMessage"`
	Cost              decimal.Decimal `json:"cost"`

	Err error `json:"-"`
}

func SuccessResult(providerName string, messageID string, cost decimal.Decimal) DispatchResult {
	return DispatchResult{
		Success:           true,
		ProviderName:      providerName,
		ProviderMessageID: messageID,
		Cost:              cost,
	}
}

func FailureResult(providerName string, err error) DispatchResult {
	result := DispatchResult{
		ProviderName: providerName,
		Cost:         decimal.Zero,
		Err:          err,
	}
	if err != nil {
		result.ErrorMessage = err.Error()
	}
	return result
}
