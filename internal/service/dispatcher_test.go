package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kursadbilgin/quota-dispatch/internal/domain"
	"github.com/kursadbilgin/quota-dispatch/internal/ledger"
	"github.com/kursadbilgin/quota-dispatch/internal/provider"
	"github.com/kursadbilgin/quota-dispatch/internal/ratelimit"
	"github.com/kursadbilgin/quota-dispatch/internal/registry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeAdapter struct {
	calls atomic.Int64
	send  func(ctx context.Context, destination string, body string) (*provider.Response, error)
}

func (f *fakeAdapter) Send(ctx context.Context, destination string, body string) (*provider.Response, error) {
	n := f.calls.Add(1)
	if f.send != nil {
		return f.send(ctx, destination, body)
	}
	return &provider.Response{StatusCode: 200, MessageID: fmt.Sprintf("msg-%d", n)}, nil
}

func failingAdapter(err error) *fakeAdapter {
	return &fakeAdapter{send: func(context.Context, string, string) (*provider.Response, error) {
		return nil, err
	}}
}

func smsProvider(name string, cost string, limit int64) domain.Provider {
	return domain.Provider{
		Name:           name,
		Channel:        domain.ChannelSMS,
		CostPerMessage: decimal.RequireFromString(cost),
		DailyLimit:     limit,
		Enabled:        true,
	}
}

func newTestRegistry(t *testing.T, providers ...domain.Provider) *registry.Registry {
	t.Helper()

	reg, err := registry.New(providers, ledger.NewMemoryLedger(), nil)
	if err != nil {
		t.Fatalf("registry.New() error = %v", err)
	}
	if err := reg.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	return reg
}

func newTestDispatcher(t *testing.T, reg *registry.Registry, adapters map[string]provider.Adapter, cfg DispatcherConfig) *Dispatcher {
	t.Helper()

	if cfg.Channel == "" {
		cfg.Channel = domain.ChannelSMS
	}
	d, err := NewDispatcher(reg, adapters, ratelimit.NewLocalRateLimiter(10_000), cfg, nil)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	return d
}

func sentToday(t *testing.T, reg *registry.Registry, name string) int64 {
	t.Helper()

	p, err := reg.Get(name)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", name, err)
	}
	return p.SentToday
}

func TestNewDispatcherValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewDispatcher(nil, nil, nil, DispatcherConfig{Channel: domain.ChannelSMS}, nil); err == nil {
		t.Fatal("expected error without registry")
	}

	reg := newTestRegistry(t, smsProvider("p1", "0.01", 1))
	if _, err := NewDispatcher(reg, nil, nil, DispatcherConfig{Channel: "FAX"}, nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("NewDispatcher() error = %v, want ErrValidation", err)
	}
}

func TestSendOneCheapestThenFallback(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t,
		smsProvider("p2", "0.02", 5),
		smsProvider("p1", "0.01", 2),
	)
	d := newTestDispatcher(t, reg, map[string]provider.Adapter{
		"p1": &fakeAdapter{},
		"p2": &fakeAdapter{},
	}, DispatcherConfig{})

	var got []string
	for i := 0; i < 3; i++ {
		res := d.SendOne(context.Background(), "+12015550123", "hi", "")
		if !res.Success {
			t.Fatalf("send %d failed: %s", i, res.ErrorMessage)
		}
		got = append(got, res.ProviderName)
	}

	if strings.Join(got, ",") != "p1,p1,p2" {
		t.Fatalf("providers = %v, want [p1 p1 p2]", got)
	}
	if sentToday(t, reg, "p1") != 2 || sentToday(t, reg, "p2") != 1 {
		t.Fatalf("sentToday p1=%d p2=%d, want 2 and 1", sentToday(t, reg, "p1"), sentToday(t, reg, "p2"))
	}
}

func TestSendOnePreferredProvider(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		preferred    string
		strict       bool
		exhaustP2    bool
		wantSuccess  bool
		wantProvider string
	}{
		{name: "preferred overrides cost", preferred: "p2", wantSuccess: true, wantProvider: "p2"},
		{name: "unknown preferred falls back", preferred: "nope", wantSuccess: true, wantProvider: "p1"},
		{name: "exhausted preferred falls back", preferred: "p2", exhaustP2: true, wantSuccess: true, wantProvider: "p1"},
		{name: "strict exhausted preferred fails", preferred: "p2", strict: true, exhaustP2: true, wantSuccess: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			reg := newTestRegistry(t,
				smsProvider("p1", "0.01", 10),
				smsProvider("p2", "0.05", 1),
			)
			if tc.exhaustP2 {
				if err := reg.RecordSend(context.Background(), "p2", true, decimal.Zero); err != nil {
					t.Fatalf("RecordSend() error = %v", err)
				}
			}
			d := newTestDispatcher(t, reg, map[string]provider.Adapter{
				"p1": &fakeAdapter{},
				"p2": &fakeAdapter{},
			}, DispatcherConfig{StrictPreferred: tc.strict})

			res := d.SendOne(context.Background(), "+12015550123", "hi", tc.preferred)
			if res.Success != tc.wantSuccess {
				t.Fatalf("Success = %v, want %v (%s)", res.Success, tc.wantSuccess, res.ErrorMessage)
			}
			if tc.wantSuccess && res.ProviderName != tc.wantProvider {
				t.Fatalf("ProviderName = %q, want %q", res.ProviderName, tc.wantProvider)
			}
			if !tc.wantSuccess && !errors.Is(res.Err, domain.ErrNoProviderAvailable) {
				t.Fatalf("Err = %v, want ErrNoProviderAvailable", res.Err)
			}
		})
	}
}

func TestSendOneFailureDoesNotConsumeQuota(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t, smsProvider("p1", "0.01", 3))
	sendErr := &provider.ProviderError{Provider: "p1", StatusCode: 400, Message: "rejected"}
	d := newTestDispatcher(t, reg, map[string]provider.Adapter{"p1": failingAdapter(sendErr)}, DispatcherConfig{})

	res := d.SendOne(context.Background(), "+12015550123", "hi", "")

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ProviderName != "p1" {
		t.Fatalf("ProviderName = %q, want p1", res.ProviderName)
	}
	if !res.Cost.IsZero() {
		t.Fatalf("Cost = %s, want 0", res.Cost)
	}
	if !errors.Is(res.Err, domain.ErrAdapter) {
		t.Fatalf("Err = %v, want ErrAdapter", res.Err)
	}
	if !strings.Contains(res.ErrorMessage, "rejected") {
		t.Fatalf("ErrorMessage = %q", res.ErrorMessage)
	}

	p, _ := reg.Get("p1")
	if p.SentToday != 0 || p.InFlight != 0 {
		t.Fatalf("p1 = {sent:%d inFlight:%d}, want zeros", p.SentToday, p.InFlight)
	}
}

func TestSendOneInvalidDestination(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t, smsProvider("p1", "0.01", 3))
	adapter := &fakeAdapter{}
	d := newTestDispatcher(t, reg, map[string]provider.Adapter{"p1": adapter}, DispatcherConfig{})

	for _, dest := range []string{"", "12345", "+1 (201) 555-01x3", "+1234567890123456"} {
		res := d.SendOne(context.Background(), dest, "hi", "")
		if res.Success || !errors.Is(res.Err, domain.ErrInvalidDestination) {
			t.Fatalf("SendOne(%q) = %+v, want invalid destination", dest, res)
		}
		if res.ProviderName != "" {
			t.Fatalf("ProviderName = %q, want empty", res.ProviderName)
		}
	}

	if adapter.calls.Load() != 0 {
		t.Fatalf("adapter calls = %d, want 0", adapter.calls.Load())
	}
	if sentToday(t, reg, "p1") != 0 {
		t.Fatal("counters must not change")
	}
}

func TestSendOneEmailChannel(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t,
		domain.Provider{Name: "sendgrid", Channel: domain.ChannelEmail, CostPerMessage: decimal.RequireFromString("0.0000295"), DailyLimit: 100000, Enabled: true},
		smsProvider("p1", "0", 10),
	)
	var gotDestination string
	d := newTestDispatcher(t, reg, map[string]provider.Adapter{
		"sendgrid": &fakeAdapter{send: func(_ context.Context, destination string, _ string) (*provider.Response, error) {
			gotDestination = destination
			return &provider.Response{MessageID: "sg-1"}, nil
		}},
	}, DispatcherConfig{Channel: domain.ChannelEmail})

	res := d.SendOne(context.Background(), "Jane Doe <jane@example.com>", "hello", "")
	if !res.Success || res.ProviderName != "sendgrid" {
		t.Fatalf("result = %+v", res)
	}
	if gotDestination != "jane@example.com" {
		t.Fatalf("destination = %q, want jane@example.com", gotDestination)
	}

	if res := d.SendOne(context.Background(), "+12015550123", "hello", ""); !errors.Is(res.Err, domain.ErrInvalidDestination) {
		t.Fatalf("phone on email channel = %+v, want invalid destination", res)
	}
}

func TestSendOneNoProviderAvailable(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.WarnLevel)
	reg := newTestRegistry(t, smsProvider("p1", "0.01", 1))
	d, err := NewDispatcher(reg, map[string]provider.Adapter{"p1": &fakeAdapter{}}, nil, DispatcherConfig{Channel: domain.ChannelSMS}, zap.New(core))
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	if res := d.SendOne(context.Background(), "+12015550123", "a", ""); !res.Success {
		t.Fatalf("first send failed: %s", res.ErrorMessage)
	}

	res := d.SendOne(context.Background(), "+12015550123", "b", "")
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorMessage != "no providers available (daily limits reached)" {
		t.Fatalf("ErrorMessage = %q", res.ErrorMessage)
	}
	if res.ProviderName != "" {
		t.Fatalf("ProviderName = %q, want empty", res.ProviderName)
	}
	if recorded.FilterMessage("no provider available").Len() != 1 {
		t.Fatal("expected a no-provider warning log")
	}
}

func TestSendOneAdapterPanicIsContained(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t, smsProvider("p1", "0.01", 2))
	d := newTestDispatcher(t, reg, map[string]provider.Adapter{
		"p1": &fakeAdapter{send: func(context.Context, string, string) (*provider.Response, error) {
			panic("boom")
		}},
	}, DispatcherConfig{})

	res := d.SendOne(context.Background(), "+12015550123", "hi", "")
	if res.Success {
		t.Fatal("expected failure")
	}
	var panicErr *ProviderPanicError
	if !errors.As(res.Err, &panicErr) || panicErr.Provider != "p1" {
		t.Fatalf("Err = %v, want ProviderPanicError", res.Err)
	}

	p, _ := reg.Get("p1")
	if p.SentToday != 0 || p.InFlight != 0 {
		t.Fatalf("p1 = {sent:%d inFlight:%d}, want zeros", p.SentToday, p.InFlight)
	}
}

func TestSendOneTimeoutReleasesQuota(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t, smsProvider("p1", "0.01", 2))
	d := newTestDispatcher(t, reg, map[string]provider.Adapter{
		"p1": &fakeAdapter{send: func(ctx context.Context, _ string, _ string) (*provider.Response, error) {
			<-ctx.Done()
			return nil, &provider.ProviderError{Provider: "p1", Message: "provider request failed", Transient: true, Cause: ctx.Err()}
		}},
	}, DispatcherConfig{ProviderTimeout: 20 * time.Millisecond})

	start := time.Now()
	res := d.SendOne(context.Background(), "+12015550123", "hi", "")
	if res.Success {
		t.Fatal("expected timeout failure")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("SendOne took %s, want about the provider timeout", elapsed)
	}
	if !provider.IsTimeout(res.Err) {
		t.Fatalf("Err = %v, want timeout", res.Err)
	}
	if sentToday(t, reg, "p1") != 0 {
		t.Fatal("timeout must not consume quota")
	}
}

func TestSendOneMissingAdapter(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t, smsProvider("p1", "0.01", 2))
	d := newTestDispatcher(t, reg, nil, DispatcherConfig{})

	res := d.SendOne(context.Background(), "+12015550123", "hi", "")
	if res.Success || !errors.Is(res.Err, errNoAdapter) {
		t.Fatalf("result = %+v, want no adapter failure", res)
	}
	p, _ := reg.Get("p1")
	if p.InFlight != 0 {
		t.Fatalf("inFlight = %d, want 0", p.InFlight)
	}
}

func TestSendOneConcurrentNeverExceedsLimit(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t,
		smsProvider("cheap", "0.01", 7),
		smsProvider("pricey", "0.02", 5),
	)
	d := newTestDispatcher(t, reg, map[string]provider.Adapter{
		"cheap": &fakeAdapter{send: func(context.Context, string, string) (*provider.Response, error) {
			time.Sleep(time.Millisecond)
			return &provider.Response{MessageID: "c"}, nil
		}},
		"pricey": &fakeAdapter{},
	}, DispatcherConfig{})

	var (
		wg        sync.WaitGroup
		successes atomic.Int64
	)
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.SendOne(context.Background(), "+12015550123", "x", "").Success {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 12 {
		t.Fatalf("successes = %d, want 12", successes.Load())
	}
	if sentToday(t, reg, "cheap") != 7 || sentToday(t, reg, "pricey") != 5 {
		t.Fatalf("sentToday cheap=%d pricey=%d, want 7 and 5", sentToday(t, reg, "cheap"), sentToday(t, reg, "pricey"))
	}
}

func TestSendOneIgnoresOtherChannels(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t,
		domain.Provider{Name: "voice", Channel: domain.ChannelVoice, CostPerMessage: decimal.Zero, DailyLimit: 10, Enabled: true},
		smsProvider("sms", "0.05", 10),
	)
	d := newTestDispatcher(t, reg, map[string]provider.Adapter{
		"voice": &fakeAdapter{},
		"sms":   &fakeAdapter{},
	}, DispatcherConfig{})

	if res := d.SendOne(context.Background(), "+12015550123", "x", "voice"); res.ProviderName != "sms" {
		t.Fatalf("ProviderName = %q, want sms", res.ProviderName)
	}
}
