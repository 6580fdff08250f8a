package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"github.com/menukit/delivery-tracker/pkg/geo"
)

// GoogleGeolocationProvider resolves position from nearby WiFi access points
// and cell towers through the Google Maps Geolocation API. This is the
// reduced-accuracy tier used when the GPS sensor cannot produce a fix.
type GoogleGeolocationProvider struct {
	client     *maps.Client
	modemIndex int
}

// NewGoogleGeolocationProvider creates a new GoogleGeolocationProvider
// instance.
func NewGoogleGeolocationProvider(apiKey string, modemIndex int) (*GoogleGeolocationProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &GoogleGeolocationProvider{
		client:     c,
		modemIndex: modemIndex,
	}, nil
}

// GetLocation sends whatever radio environment data is available to the
// Geolocation API. WiFi and cell scans are best effort; IP-based positioning
// is always allowed as the floor.
func (g *GoogleGeolocationProvider) GetLocation(ctx context.Context) (Reading, error) {
	req := &maps.GeolocationRequest{
		ConsiderIP: true,
	}

	if wifiAPs, err := getWiFiAccessPoints(ctx); err == nil {
		req.WiFiAccessPoints = wifiAPs
	}
	if cellTowers, err := getCellTowers(ctx, g.modemIndex); err == nil {
		req.CellTowers = cellTowers
	}

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Reading{}, fmt.Errorf("geolocation request: %w", ErrTimeout)
		}
		return Reading{}, fmt.Errorf("geolocation request: %v: %w", err, ErrPositionUnavailable)
	}

	return Reading{
		Point:      geo.Point{Lat: resp.Location.Lat, Lng: resp.Location.Lng},
		Accuracy:   resp.Accuracy,
		Tier:       TierReduced,
		CapturedAt: time.Now(),
	}, nil
}

// Close releases the provider.
func (g *GoogleGeolocationProvider) Close() error {
	return nil
}
