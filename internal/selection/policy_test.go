package selection

import (
	"testing"

	"github.com/kursadbilgin/quota-dispatch/internal/domain"
	"github.com/shopspring/decimal"
)

func provider(name string, cost string, limit int64, sent int64) domain.Provider {
	return domain.Provider{
		Name:           name,
		Channel:        domain.ChannelSMS,
		CostPerMessage: decimal.RequireFromString(cost),
		DailyLimit:     limit,
		SentToday:      sent,
		Enabled:        true,
	}
}

func TestSelectProvider(t *testing.T) {
	t.Parallel()

	disabled := provider("disabled", "0.001", 100, 0)
	disabled.Enabled = false
	inFlight := provider("inflight", "0.001", 1, 0)
	inFlight.InFlight = 1

	tests := []struct {
		name      string
		providers []domain.Provider
		preferred string
		strict    bool
		want      string
		wantOK    bool
	}{
		{
			name:      "cheapest with headroom",
			providers: []domain.Provider{provider("a", "0.03", 10, 0), provider("b", "0.02", 10, 0)},
			want:      "b",
			wantOK:    true,
		},
		{
			name:      "tie broken by configuration order",
			providers: []domain.Provider{provider("first", "0.02", 10, 0), provider("second", "0.02", 10, 0)},
			want:      "first",
			wantOK:    true,
		},
		{
			name:      "exhausted provider skipped",
			providers: []domain.Provider{provider("p1", "0.02", 2, 2), provider("p2", "0.03", domain.UnlimitedDailyLimit, 0)},
			want:      "p2",
			wantOK:    true,
		},
		{
			name:      "disabled and in-flight providers skipped",
			providers: []domain.Provider{disabled, inFlight, provider("c", "0.05", 10, 0)},
			want:      "c",
			wantOK:    true,
		},
		{
			name:      "preferred overrides cost",
			providers: []domain.Provider{provider("p1", "0.02", 2, 0), provider("p2", "0.03", domain.UnlimitedDailyLimit, 0)},
			preferred: "p2",
			want:      "p2",
			wantOK:    true,
		},
		{
			name:      "exhausted preferred falls back",
			providers: []domain.Provider{provider("p1", "0.02", 2, 0), provider("p2", "0.03", 1, 1)},
			preferred: "p2",
			want:      "p1",
			wantOK:    true,
		},
		{
			name:      "unknown preferred falls back",
			providers: []domain.Provider{provider("p1", "0.02", 2, 0)},
			preferred: "nope",
			want:      "p1",
			wantOK:    true,
		},
		{
			name:      "strict preferred without headroom",
			providers: []domain.Provider{provider("p1", "0.02", 2, 0), provider("p2", "0.03", 1, 1)},
			preferred: "p2",
			strict:    true,
			wantOK:    false,
		},
		{
			name:      "all exhausted",
			providers: []domain.Provider{provider("p1", "0.02", 1, 1), provider("p2", "0.03", 0, 0)},
			wantOK:    false,
		},
		{
			name:   "no providers",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := SelectProvider(tt.providers, tt.preferred, tt.strict)
			if ok != tt.wantOK {
				t.Fatalf("SelectProvider() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Name != tt.want {
				t.Fatalf("SelectProvider() = %s, want %s", got.Name, tt.want)
			}
		})
	}
}

func TestSelectProviderDeterministic(t *testing.T) {
	t.Parallel()

	snapshot := []domain.Provider{
		provider("x", "0.01", 5, 0),
		provider("y", "0.01", 5, 0),
		provider("z", "0.009", 5, 5),
	}

	first, ok := SelectProvider(snapshot, "", false)
	if !ok {
		t.Fatal("expected a provider")
	}
	for i := 0; i < 20; i++ {
		got, _ := SelectProvider(snapshot, "", false)
		if got.Name != first.Name {
			t.Fatalf("SelectProvider() call %d = %s, want %s", i, got.Name, first.Name)
		}
	}
	if first.Name != "x" {
		t.Fatalf("SelectProvider() = %s, want x", first.Name)
	}
}
