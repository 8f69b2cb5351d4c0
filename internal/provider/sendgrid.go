package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridConfig holds SendGrid credentials and envelope defaults.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	Subject   string
}

var _ Adapter = (*SendGridAdapter)(nil)

// SendGridAdapter delivers the message body as a plain-text email.
type SendGridAdapter struct {
	name   string
	cfg    SendGridConfig
	client mailSender
}

func NewSendGridAdapter(name string, cfg SendGridConfig) (*SendGridAdapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	return newSendGridAdapter(name, cfg, sendgrid.NewSendClient(cfg.APIKey))
}

func newSendGridAdapter(name string, cfg SendGridConfig, client mailSender) (*SendGridAdapter, error) {
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, fmt.Errorf("sendgrid from email is required")
	}
	if cfg.FromName == "" {
		cfg.FromName = "Quota Dispatch"
	}
	if cfg.Subject == "" {
		cfg.Subject = "Notification"
	}
	return &SendGridAdapter{name: name, cfg: cfg, client: client}, nil
}

func (a *SendGridAdapter) Send(ctx context.Context, destination string, body string) (*Response, error) {
	from := mail.NewEmail(a.cfg.FromName, a.cfg.FromEmail)
	to := mail.NewEmail("", destination)
	message := mail.NewSingleEmail(from, a.cfg.Subject, to, body, "")

	response, err := a.client.SendWithContext(ctx, message)
	if err != nil {
		return nil, requestFailure(a.name, err)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, statusFailure(a.name, response.StatusCode, response.Body)
	}

	return &Response{
		StatusCode: response.StatusCode,
		Body:       strings.TrimSpace(response.Body),
		MessageID:  firstHeader(response.Headers, "X-Message-Id"),
	}, nil
}

func firstHeader(headers map[string][]string, key string) string {
	if values := http.Header(headers).Values(key); len(values) > 0 {
		return values[0]
	}
	return ""
}
