package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 10 * time.Second

type webhookRequest struct {
	To      string `json:"to"`
	Channel string `json:"channel"`
	Content string `json:"content"`
}

var _ Adapter = (*WebhookAdapter)(nil)

// WebhookAdapter posts messages to a webhook.site-compatible endpoint.
type WebhookAdapter struct {
	name     string
	channel  string
	client   *resty.Client
	endpoint string
}

func NewWebhookAdapter(name string, channel string, endpoint string, client *resty.Client) (*WebhookAdapter, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}

	return &WebhookAdapter{
		name:     name,
		channel:  strings.ToLower(strings.TrimSpace(channel)),
		client:   prepareClient(client),
		endpoint: trimmedEndpoint,
	}, nil
}

func (a *WebhookAdapter) Send(ctx context.Context, destination string, body string) (*Response, error) {
	if a == nil || a.client == nil {
		return nil, fmt.Errorf("webhook adapter is not initialized")
	}

	response, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(webhookRequest{
			To:      destination,
			Channel: a.channel,
			Content: body,
		}).
		Post(a.endpoint)
	if err != nil {
		return nil, requestFailure(a.name, err)
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, statusFailure(a.name, statusCode, responseBody)
	}

	return &Response{
		StatusCode: statusCode,
		Body:       responseBody,
		MessageID:  headerMessageID(response),
	}, nil
}

// prepareClient applies the shared defaults: a call timeout and no resty retries,
// since a retried send could deliver twice while being counted once.
func prepareClient(client *resty.Client) *resty.Client {
	if client == nil {
		client = resty.New()
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTimeout)
	}
	client.SetRetryCount(0)
	return client
}

func headerMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Message-ID", "X-Correlation-ID"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
