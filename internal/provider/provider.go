package provider

import (
	"context"
)

// Adapter is the outbound transport port, one implementation per provider.
// Any failure (auth, network, provider-side rejection) is returned as an error,
// preferably a *ProviderError.
type Adapter interface {
	Send(ctx context.Context, destination string, body string) (*Response, error)
}

// Response stores provider call metadata for results and audit.
type Response struct {
	StatusCode int
	Body       string
	MessageID  string
}
