package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	defaultTextBeltBaseURL = "https://textbelt.com"
	// TextBeltFreeKey is the shared key TextBelt grants one free message per day.
	TextBeltFreeKey = "textbelt"
)

type textBeltResponse struct {
	Success        bool   `json:"success"`
	TextID         string `json:"textId"`
	QuotaRemaining int    `json:"quotaRemaining"`
	Error          string `json:"error"`
}

var _ Adapter = (*TextBeltAdapter)(nil)

// TextBeltAdapter sends SMS through the TextBelt form API.
type TextBeltAdapter struct {
	name    string
	baseURL string
	apiKey  string
	client  *resty.Client
}

func NewTextBeltAdapter(name string, baseURL string, apiKey string, client *resty.Client) (*TextBeltAdapter, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("textbelt api key is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultTextBeltBaseURL
	}

	return &TextBeltAdapter{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  prepareClient(client),
	}, nil
}

func (a *TextBeltAdapter) Send(ctx context.Context, destination string, body string) (*Response, error) {
	response, err := a.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"phone":   destination,
			"message": body,
			"key":     a.apiKey,
		}).
		Post(a.baseURL + "/text")
	if err != nil {
		return nil, requestFailure(a.name, err)
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, statusFailure(a.name, statusCode, response.String())
	}

	var parsed textBeltResponse
	if err := json.Unmarshal(response.Body(), &parsed); err != nil {
		return nil, &ProviderError{
			Provider:   a.name,
			StatusCode: statusCode,
			Message:    "failed to decode textbelt response",
			Cause:      err,
		}
	}
	if !parsed.Success {
		return nil, rejected(a.name, statusCode, parsed.Error)
	}

	return &Response{
		StatusCode: statusCode,
		Body:       strings.TrimSpace(response.String()),
		MessageID:  parsed.TextID,
	}, nil
}
