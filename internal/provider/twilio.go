package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// TwilioConfig holds Twilio REST credentials.
type TwilioConfig struct {
	AccountSID    string
	AuthToken     string
	FromNumber    string
	DefaultRegion string
}

var _ Adapter = (*TwilioAdapter)(nil)

// TwilioAdapter sends SMS through the Twilio Messages API.
type TwilioAdapter struct {
	name          string
	fromNumber    string
	defaultRegion string
	api           messageCreator
}

func NewTwilioAdapter(name string, cfg TwilioConfig) (*TwilioAdapter, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, fmt.Errorf("twilio credentials are required")
	}
	if strings.TrimSpace(cfg.FromNumber) == "" {
		return nil, fmt.Errorf("twilio from number is required")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return newTwilioAdapter(name, cfg, client.Api), nil
}

func newTwilioAdapter(name string, cfg TwilioConfig, creator messageCreator) *TwilioAdapter {
	region := strings.ToUpper(strings.TrimSpace(cfg.DefaultRegion))
	if region == "" {
		region = "US"
	}
	return &TwilioAdapter{
		name:          name,
		fromNumber:    cfg.FromNumber,
		defaultRegion: region,
		api:           creator,
	}
}

func (a *TwilioAdapter) Send(ctx context.Context, destination string, body string) (*Response, error) {
	to, err := ToE164(destination, a.defaultRegion)
	if err != nil {
		return nil, &ProviderError{Provider: a.name, Message: err.Error(), Cause: err}
	}

	params := &api.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(a.fromNumber)
	params.SetBody(body)

	type result struct {
		message *api.ApiV2010Message
		err     error
	}

	// The Twilio client takes no context, so the call is raced against ctx.
	done := make(chan result, 1)
	go func() {
		message, err := a.api.CreateMessage(params)
		done <- result{message: message, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return nil, requestFailure(a.name, ctx.Err())
	case res = <-done:
	}

	if res.err != nil {
		var restErr *twilioclient.TwilioRestError
		if errors.As(res.err, &restErr) {
			return nil, statusFailure(a.name, restErr.Status, restErr.Message)
		}
		return nil, requestFailure(a.name, res.err)
	}
	if res.message == nil || res.message.Sid == nil {
		return nil, rejected(a.name, 0, "twilio returned no message sid")
	}
	if res.message.ErrorMessage != nil && *res.message.ErrorMessage != "" {
		return nil, rejected(a.name, 0, *res.message.ErrorMessage)
	}

	status := ""
	if res.message.Status != nil {
		status = *res.message.Status
	}

	return &Response{
		StatusCode: http.StatusCreated,
		Body:       status,
		MessageID:  *res.message.Sid,
	}, nil
}

// ToE164 formats a phone number as E.164, reading numbers without a leading
// plus in the given region.
func ToE164(number string, region string) (string, error) {
	parsed, err := phonenumbers.Parse(number, region)
	if err != nil {
		return "", fmt.Errorf("invalid phone number %q: %w", number, err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("invalid phone number %q", number)
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
