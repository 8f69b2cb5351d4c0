package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kursadbilgin/quota-dispatch/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Built-in provider names.
const (
	ProviderTwilio       = "twilio"
	ProviderTextBeltFree = "textbelt_free"
	ProviderClickSend    = "clicksend"
	ProviderTextBeltPaid = "textbelt_paid"
	ProviderSlybroadcast = "slybroadcast"
	ProviderSendGrid     = "sendgrid"
	ProviderWebhook      = "webhook"
)

type catalogEntry struct {
	name       string
	channel    domain.Channel
	cost       string
	dailyLimit int64
}

// Order matters: selection breaks cost ties by position.
var catalog = []catalogEntry{
	{name: ProviderTwilio, channel: domain.ChannelSMS, cost: "0.0075", dailyLimit: 200},
	{name: ProviderTextBeltFree, channel: domain.ChannelSMS, cost: "0", dailyLimit: 1},
	{name: ProviderClickSend, channel: domain.ChannelSMS, cost: "0.0243", dailyLimit: domain.UnlimitedDailyLimit},
	{name: ProviderTextBeltPaid, channel: domain.ChannelSMS, cost: "0.0063", dailyLimit: 1000},
	{name: ProviderSlybroadcast, channel: domain.ChannelVoice, cost: "0.09", dailyLimit: domain.UnlimitedDailyLimit},
	{name: ProviderSendGrid, channel: domain.ChannelEmail, cost: "0.0000295", dailyLimit: 100000},
	{name: ProviderWebhook, channel: domain.ChannelSMS, cost: "0", dailyLimit: domain.UnlimitedDailyLimit},
}

// ProviderOverride is one entry of the PROVIDERS_FILE document.
type ProviderOverride struct {
	Name           string  `yaml:"name"`
	Channel        *string `yaml:"channel,omitempty"`
	CostPerMessage *string `yaml:"costPerMessage,omitempty"`
	DailyLimit     *int64  `yaml:"dailyLimit,omitempty"`
	Enabled        *bool   `yaml:"enabled,omitempty"`
}

type providersFile struct {
	Providers []ProviderOverride `yaml:"providers"`
}

// Providers builds the provider list from the catalog. A provider is enabled
// only when its credentials are configured; PROVIDERS_FILE may then change
// cost, limit, channel or disable it, but cannot enable one without credentials.
func (c *Config) Providers() ([]domain.Provider, error) {
	credentials := c.credentialed()

	providers := make([]domain.Provider, 0, len(catalog))
	index := make(map[string]int, len(catalog))
	for _, e := range catalog {
		index[e.name] = len(providers)
		providers = append(providers, domain.Provider{
			Name:           e.name,
			Channel:        e.channel,
			CostPerMessage: decimal.RequireFromString(e.cost),
			DailyLimit:     e.dailyLimit,
			Enabled:        credentials[e.name],
		})
	}

	if strings.TrimSpace(c.ProvidersFile) == "" {
		return providers, nil
	}

	overrides, err := LoadProvidersFile(c.ProvidersFile)
	if err != nil {
		return nil, err
	}
	for _, o := range overrides {
		i, ok := index[strings.TrimSpace(o.Name)]
		if !ok {
			return nil, fmt.Errorf("%w: unknown provider %q in %s", domain.ErrValidation, o.Name, c.ProvidersFile)
		}
		if err := applyOverride(&providers[i], o, credentials[providers[i].Name]); err != nil {
			return nil, err
		}
	}

	for _, p := range providers {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return providers, nil
}

func LoadProvidersFile(path string) ([]ProviderOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}

	var doc providersFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse providers file: %v", domain.ErrValidation, err)
	}
	return doc.Providers, nil
}

func applyOverride(p *domain.Provider, o ProviderOverride, hasCredentials bool) error {
	if o.Channel != nil {
		channel, err := domain.ParseChannelFromString(*o.Channel)
		if err != nil {
			return err
		}
		p.Channel = channel
	}
	if o.CostPerMessage != nil {
		cost, err := decimal.NewFromString(strings.TrimSpace(*o.CostPerMessage))
		if err != nil {
			return fmt.Errorf("%w: invalid costPerMessage for %s: %v", domain.ErrValidation, p.Name, err)
		}
		p.CostPerMessage = cost
	}
	if o.DailyLimit != nil {
		p.DailyLimit = *o.DailyLimit
	}
	if o.Enabled != nil {
		p.Enabled = *o.Enabled && hasCredentials
	}
	return nil
}

func (c *Config) credentialed() map[string]bool {
	set := func(values ...string) bool {
		for _, v := range values {
			if strings.TrimSpace(v) == "" {
				return false
			}
		}
		return true
	}

	return map[string]bool{
		ProviderTwilio:       set(c.TwilioAccountSID, c.TwilioAuthToken, c.TwilioPhoneNumber),
		ProviderTextBeltFree: c.TextBeltFreeEnabled,
		ProviderClickSend:    set(c.ClickSendUsername, c.ClickSendAPIKey),
		ProviderTextBeltPaid: set(c.TextBeltAPIKey),
		ProviderSlybroadcast: set(c.SlybroadcastEmail, c.SlybroadcastPassword),
		ProviderSendGrid:     set(c.SendGridAPIKey, c.SendGridFromEmail),
		ProviderWebhook:      set(c.WebhookSiteURL),
	}
}
