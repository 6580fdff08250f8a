// Package location acquires the courier device's position. Two provider tiers
// are supported: a serial GPS sensor (high accuracy) and network positioning
// through the Google Geolocation API (reduced accuracy). The Service layers
// one-shot fallback and throttled continuous acquisition on top of them.
package location

import (
	"context"
	"time"

	"github.com/menukit/delivery-tracker/pkg/geo"
)

// Tier identifies which acquisition tier produced a fix.
type Tier string

const (
	// TierHigh marks fixes from the GPS sensor.
	TierHigh Tier = "high"
	// TierReduced marks fixes resolved through network positioning.
	TierReduced Tier = "reduced"
)

// Reading is a single resolved position fix.
type Reading struct {
	Point      geo.Point
	Accuracy   float64
	Tier       Tier
	CapturedAt time.Time
}

// Age returns how old the fix is.
func (r Reading) Age(now time.Time) time.Duration {
	return now.Sub(r.CapturedAt)
}

// Provider resolves the device's current position. Implementations map their
// failures onto the package error taxonomy: ErrPermissionDenied,
// ErrPositionUnavailable, ErrTimeout.
type Provider interface {
	GetLocation(ctx context.Context) (Reading, error)
	Close() error
}
