package registry

import (
	"fmt"
	"time"
)

// ExpiryOption is one of the lifetimes a user can pick for an upload.
type ExpiryOption string

const (
	Expiry5m ExpiryOption = "5m"
	Expiry1h ExpiryOption = "1h"
	Expiry1d ExpiryOption = "1d"

	// DefaultExpiry applies when the option is missing or unrecognised.
	DefaultExpiry = Expiry5m
)

// ParseExpiryOption maps raw input onto the closed option set.
func ParseExpiryOption(raw string) ExpiryOption {
	switch ExpiryOption(raw) {
	case Expiry5m, Expiry1h, Expiry1d:
		return ExpiryOption(raw)
	default:
		return DefaultExpiry
	}
}

// Duration returns the lifetime of the option.
func (o ExpiryOption) Duration() time.Duration {
	switch o {
	case Expiry1h:
		return time.Hour
	case Expiry1d:
		return 24 * time.Hour
	default:
		return 5 * time.Minute
	}
}

// MaxExpiry is the longest lifetime any option grants.
const MaxExpiry = 24 * time.Hour

// Resolve returns the absolute expiry for an upload made at now.
func Resolve(option ExpiryOption, now time.Time) time.Time {
	return now.Add(option.Duration())
}

// FormatRemaining renders the time left until expiresAt for display,
// flooring to the coarsest nonzero unit.
func FormatRemaining(expiresAt, now time.Time) string {
	diff := expiresAt.Sub(now)
	if diff <= 0 {
		return "Expired"
	}

	minutes := int64(diff / time.Minute)
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return fmt.Sprintf("%dd remaining", days)
	case hours > 0:
		return fmt.Sprintf("%dh remaining", hours)
	default:
		return fmt.Sprintf("%dm remaining", minutes)
	}
}
