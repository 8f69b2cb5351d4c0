package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	defaultSlybroadcastBaseURL = "https://www.slybroadcast.com"
	defaultTTSBaseURL          = "https://responsivevoice.org/responsivevoice/getvoice.php"
	defaultCallerID            = "0000000000"
)

// SlybroadcastConfig holds ringless voicemail credentials.
type SlybroadcastConfig struct {
	BaseURL      string
	Email        string
	Password     string
	CallerID     string
	CampaignName string
	// AudioURL, when set, is dropped for every message instead of the body.
	AudioURL string
}

var _ Adapter = (*SlybroadcastAdapter)(nil)

// SlybroadcastAdapter drops ringless voicemails. A body that is an http(s)
// URL is used as the audio file; any other body is rendered by a TTS endpoint.
type SlybroadcastAdapter struct {
	name   string
	cfg    SlybroadcastConfig
	client *resty.Client
}

func NewSlybroadcastAdapter(name string, cfg SlybroadcastConfig, client *resty.Client) (*SlybroadcastAdapter, error) {
	if strings.TrimSpace(cfg.Email) == "" || strings.TrimSpace(cfg.Password) == "" {
		return nil, fmt.Errorf("slybroadcast credentials are required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultSlybroadcastBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.CallerID == "" {
		cfg.CallerID = defaultCallerID
	}
	if cfg.CampaignName == "" {
		cfg.CampaignName = "RVM Campaign"
	}

	return &SlybroadcastAdapter{
		name:   name,
		cfg:    cfg,
		client: prepareClient(client),
	}, nil
}

func (a *SlybroadcastAdapter) Send(ctx context.Context, destination string, body string) (*Response, error) {
	audio := strings.TrimSpace(a.cfg.AudioURL)
	if audio == "" {
		audio = audioURL(body)
	}

	response, err := a.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"email":         a.cfg.Email,
			"password":      a.cfg.Password,
			"phone_numbers": nationalNumber(destination),
			"audio_url":     audio,
			"campaign_name": a.cfg.CampaignName,
			"caller_id":     a.cfg.CallerID,
		}).
		Post(a.cfg.BaseURL + "/sbapi/send_drop.php")
	if err != nil {
		return nil, requestFailure(a.name, err)
	}

	statusCode := response.StatusCode()
	text := strings.TrimSpace(response.String())
	if statusCode != http.StatusOK {
		return nil, statusFailure(a.name, statusCode, text)
	}

	lower := strings.ToLower(text)
	if !strings.Contains(lower, "success") && !strings.Contains(lower, "campaign sent") {
		return nil, rejected(a.name, statusCode, text)
	}

	return &Response{
		StatusCode: statusCode,
		Body:       text,
		MessageID:  sessionID(text),
	}, nil
}

func audioURL(body string) string {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return trimmed
	}
	return defaultTTSBaseURL + "?t=" + url.QueryEscape(trimmed) + "&tl=en&sv=g1"
}

// nationalNumber drops the +1 prefix Slybroadcast does not accept.
func nationalNumber(destination string) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(destination), "+")
	if len(trimmed) == 11 && strings.HasPrefix(trimmed, "1") {
		return trimmed[1:]
	}
	return trimmed
}

func sessionID(text string) string {
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if ok && strings.EqualFold(strings.TrimSpace(key), "session_id") {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
