package domain

import (
	"errors"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain e164", input: "+905551112233", want: "+905551112233"},
		{name: "ten digits without plus", input: "1234567890", want: "1234567890"},
		{name: "formatting stripped", input: " +1 (555) 123-4567 ", want: "+15551234567"},
		{name: "dots stripped", input: "555.123.4567", want: "5551234567"},
		{name: "fifteen digits", input: "+123456789012345", want: "+123456789012345"},
		{name: "too short", input: "+123456789", wantErr: true},
		{name: "too long", input: "+1234567890123456", wantErr: true},
		{name: "letters rejected", input: "+1555CALLNOW", wantErr: true},
		{name: "inner plus rejected", input: "1555+1234567", wantErr: true},
		{name: "empty", input: "   ", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := NormalizePhone(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDestination) {
					t.Fatalf("NormalizePhone() error = %v, want ErrInvalidDestination", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizePhone() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("NormalizePhone() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeDestinationEmail(t *testing.T) {
	t.Parallel()

	got, err := NormalizeDestination(ChannelEmail, "Jane <jane@example.com>")
	if err != nil {
		t.Fatalf("NormalizeDestination() unexpected error = %v", err)
	}
	if got != "jane@example.com" {
		t.Fatalf("NormalizeDestination() = %q, want jane@example.com", got)
	}

	_, err = NormalizeDestination(ChannelEmail, "+15551234567")
	if !errors.Is(err, ErrInvalidDestination) {
		t.Fatalf("NormalizeDestination() error = %v, want ErrInvalidDestination", err)
	}
}

func TestNormalizeDestinationVoiceUsesPhoneRules(t *testing.T) {
	t.Parallel()

	if _, err := NormalizeDestination(ChannelVoice, "12345"); !errors.Is(err, ErrInvalidDestination) {
		t.Fatalf("NormalizeDestination() error = %v, want ErrInvalidDestination", err)
	}
}
