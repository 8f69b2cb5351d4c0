package domain

import (
	"fmt"
	"net/mail"
	"strings"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

// NormalizePhone strips formatting characters and checks the E.164-like shape:
// an optional leading '+' followed by 10-15 digits.
func NormalizePhone(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: destination is required", ErrInvalidDestination)
	}

	plus := strings.HasPrefix(trimmed, "+")
	if plus {
		trimmed = trimmed[1:]
	}

	var b strings.Builder
	for _, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", fmt.Errorf("%w: unexpected character %q in %q", ErrInvalidDestination, r, raw)
		}
	}

	digits := b.String()
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return "", fmt.Errorf("%w: %q must have %d-%d digits (got %d)", ErrInvalidDestination, raw, minPhoneDigits, maxPhoneDigits, len(digits))
	}

	if plus {
		return "+" + digits, nil
	}
	return digits, nil
}

// NormalizeDestination validates a destination for the given channel.
func NormalizeDestination(channel Channel, raw string) (string, error) {
	if channel != ChannelEmail {
		return NormalizePhone(raw)
	}

	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %q is not an email address", ErrInvalidDestination, raw)
	}
	return addr.Address, nil
}
