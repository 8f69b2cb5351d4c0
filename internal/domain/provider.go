package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UnlimitedDailyLimit and anything above it means the provider has no daily quota.
const UnlimitedDailyLimit int64 = 999999

// Channel is the transport family a provider serves.
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelVoice Channel = "VOICE"
	ChannelEmail Channel = "EMAIL"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelSMS, ChannelVoice, ChannelEmail:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if ch == "" {
		return ChannelSMS, nil
	}
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Provider is a configured transport with its cost, quota and live usage.
type Provider struct {
	Name           string
	Channel        Channel
	CostPerMessage decimal.Decimal
	DailyLimit     int64
	SentToday      int64
	LastResetDate  string
	Enabled        bool

	// InFlight counts sends that hold a reservation but have not completed yet.
	InFlight int64
}

func (p Provider) Unlimited() bool {
	return p.DailyLimit >= UnlimitedDailyLimit
}

// HasHeadroom reports whether one more send fits under the daily limit,
// counting in-flight reservations.
func (p Provider) HasHeadroom() bool {
	if p.Unlimited() {
		return true
	}
	return p.SentToday+p.InFlight < p.DailyLimit
}

// Remaining is the unused quota for today. Meaningless for unlimited providers.
func (p Provider) Remaining() int64 {
	remaining := p.DailyLimit - p.SentToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (p Provider) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: provider name is required", ErrValidation)
	}
	if !p.Channel.IsValid() {
		return fmt.Errorf("%w: provider %s has invalid channel %q", ErrValidation, p.Name, p.Channel)
	}
	if p.CostPerMessage.IsNegative() {
		return fmt.Errorf("%w: provider %s has negative cost", ErrValidation, p.Name)
	}
	if p.DailyLimit < 0 {
		return fmt.Errorf("%w: provider %s has negative daily limit", ErrValidation, p.Name)
	}
	return nil
}

// UsageEntry is the durable per-provider counter kept by the usage ledger.
type UsageEntry struct {
	SentToday     int64  `json:"sentToday"`
	LastResetDate string `json:"lastResetDate"`
}

// DateOf formats t as the calendar date used for daily quota windows.
func DateOf(t time.Time) string {
	return t.Format(time.DateOnly)
}
