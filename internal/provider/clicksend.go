package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

const defaultClickSendBaseURL = "https://rest.clicksend.com"

type clickSendRequest struct {
	Messages []clickSendMessage `json:"messages"`
}

type clickSendMessage struct {
	To     string `json:"to"`
	Body   string `json:"body"`
	From   string `json:"from,omitempty"`
	Source string `json:"source,omitempty"`
}

type clickSendResponse struct {
	ResponseCode string `json:"response_code"`
	ResponseMsg  string `json:"response_msg"`
	Data         struct {
		Messages []struct {
			MessageID    string `json:"message_id"`
			Status       string `json:"status"`
			MessagePrice string `json:"message_price"`
		} `json:"messages"`
	} `json:"data"`
}

// ClickSendConfig holds ClickSend REST credentials.
type ClickSendConfig struct {
	BaseURL  string
	Username string
	APIKey   string
	SenderID string
}

var _ Adapter = (*ClickSendAdapter)(nil)

// ClickSendAdapter sends SMS through the ClickSend v3 REST API.
type ClickSendAdapter struct {
	name   string
	cfg    ClickSendConfig
	client *resty.Client
}

func NewClickSendAdapter(name string, cfg ClickSendConfig, client *resty.Client) (*ClickSendAdapter, error) {
	if strings.TrimSpace(cfg.Username) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("clicksend credentials are required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultClickSendBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &ClickSendAdapter{
		name:   name,
		cfg:    cfg,
		client: prepareClient(client),
	}, nil
}

func (a *ClickSendAdapter) Send(ctx context.Context, destination string, body string) (*Response, error) {
	response, err := a.client.R().
		SetContext(ctx).
		SetBasicAuth(a.cfg.Username, a.cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(clickSendRequest{
			Messages: []clickSendMessage{{
				To:     destination,
				Body:   body,
				From:   a.cfg.SenderID,
				Source: "quota-dispatch",
			}},
		}).
		Post(a.cfg.BaseURL + "/v3/sms/send")
	if err != nil {
		return nil, requestFailure(a.name, err)
	}

	statusCode := response.StatusCode()
	raw := response.Body()

	var parsed clickSendResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if statusCode != http.StatusOK {
		if decodeErr == nil && parsed.ResponseMsg != "" {
			failure := statusFailure(a.name, statusCode, parsed.ResponseMsg)
			return nil, failure
		}
		return nil, statusFailure(a.name, statusCode, string(raw))
	}
	if decodeErr != nil {
		return nil, &ProviderError{
			Provider:   a.name,
			StatusCode: statusCode,
			Message:    "failed to decode clicksend response",
			Cause:      decodeErr,
		}
	}
	if len(parsed.Data.Messages) == 0 {
		return nil, rejected(a.name, statusCode, parsed.ResponseMsg)
	}

	msg := parsed.Data.Messages[0]
	if status := strings.ToUpper(strings.TrimSpace(msg.Status)); status != "" && status != "SUCCESS" {
		return nil, rejected(a.name, statusCode, fmt.Sprintf("message status %s", status))
	}

	return &Response{
		StatusCode: statusCode,
		Body:       strings.TrimSpace(string(raw)),
		MessageID:  msg.MessageID,
	}, nil
}
