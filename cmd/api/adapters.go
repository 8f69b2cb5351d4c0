package main

import (
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/quota-dispatch/internal/config"
	"github.com/kursadbilgin/quota-dispatch/internal/domain"
	"github.com/kursadbilgin/quota-dispatch/internal/provider"
)

// buildAdapters creates an adapter for every enabled provider. Disabled
// providers get none, so enabling one at runtime yields no-adapter failures.
func buildAdapters(cfg *config.Config, providers []domain.Provider) (map[string]provider.Adapter, error) {
	client := resty.New().SetTimeout(cfg.ProviderTimeout())

	adapters := make(map[string]provider.Adapter, len(providers))
	for _, p := range providers {
		if !p.Enabled {
			continue
		}

		adapter, err := newAdapter(cfg, p, client)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s adapter: %w", p.Name, err)
		}
		adapters[p.Name] = adapter
	}
	return adapters, nil
}

func newAdapter(cfg *config.Config, p domain.Provider, client *resty.Client) (provider.Adapter, error) {
	switch p.Name {
	case config.ProviderTwilio:
		return provider.NewTwilioAdapter(p.Name, provider.TwilioConfig{
			AccountSID:    cfg.TwilioAccountSID,
			AuthToken:     cfg.TwilioAuthToken,
			FromNumber:    cfg.TwilioPhoneNumber,
			DefaultRegion: cfg.DefaultRegion,
		})
	case config.ProviderTextBeltFree:
		return provider.NewTextBeltAdapter(p.Name, "", provider.TextBeltFreeKey, client)
	case config.ProviderTextBeltPaid:
		return provider.NewTextBeltAdapter(p.Name, "", cfg.TextBeltAPIKey, client)
	case config.ProviderClickSend:
		return provider.NewClickSendAdapter(p.Name, provider.ClickSendConfig{
			Username: cfg.ClickSendUsername,
			APIKey:   cfg.ClickSendAPIKey,
			SenderID: cfg.SenderID,
		}, client)
	case config.ProviderSlybroadcast:
		return provider.NewSlybroadcastAdapter(p.Name, provider.SlybroadcastConfig{
			Email:    cfg.SlybroadcastEmail,
			Password: cfg.SlybroadcastPassword,
			AudioURL: cfg.SlybroadcastAudioURL,
		}, client)
	case config.ProviderSendGrid:
		return provider.NewSendGridAdapter(p.Name, provider.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			Subject:   cfg.EmailSubject,
		})
	case config.ProviderWebhook:
		return provider.NewWebhookAdapter(p.Name, p.Channel.String(), cfg.WebhookSiteURL, client)
	default:
		return nil, fmt.Errorf("%w: no adapter for provider %q", domain.ErrValidation, p.Name)
	}
}
