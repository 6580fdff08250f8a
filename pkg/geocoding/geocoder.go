// Package geocoding resolves customer addresses to coordinates through the
// Google Maps Geocoding API.
package geocoding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"

	"github.com/menukit/delivery-tracker/pkg/geo"
)

// ErrGeocodingFailed means an address could not be resolved to coordinates.
// Non-fatal: the customer marker simply stays absent until retried.
var ErrGeocodingFailed = errors.New("address could not be geocoded")

// Client is the slice of the Maps API the geocoder needs.
type Client interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// Geocoder resolves addresses at most once each and spaces upstream calls at
// least minInterval apart to respect the third-party rate limit.
type Geocoder struct {
	client      Client
	logger      zerolog.Logger
	minInterval time.Duration

	mu       sync.Mutex
	lastCall time.Time
	resolved map[string]geo.Point
	failed   map[string]struct{}
}

// New creates a Geocoder backed by the Google Maps API.
func New(apiKey string, logger zerolog.Logger) (*Geocoder, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return NewWithClient(c, logger), nil
}

// NewWithClient creates a Geocoder over an existing Maps client.
func NewWithClient(client Client, logger zerolog.Logger) *Geocoder {
	return &Geocoder{
		client:      client,
		logger:      logger,
		minInterval: time.Second,
		resolved:    make(map[string]geo.Point),
		failed:      make(map[string]struct{}),
	}
}

// Resolve returns the coordinates for an address. Results are memoized both
// ways: a previously resolved address never hits the API again, and a
// previously failed address is not retried within this process.
func (g *Geocoder) Resolve(ctx context.Context, address string) (geo.Point, error) {
	g.mu.Lock()
	if p, ok := g.resolved[address]; ok {
		g.mu.Unlock()
		return p, nil
	}
	if _, ok := g.failed[address]; ok {
		g.mu.Unlock()
		return geo.Point{}, ErrGeocodingFailed
	}

	wait := g.minInterval - time.Since(g.lastCall)
	g.lastCall = time.Now().Add(wait)
	g.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return geo.Point{}, ctx.Err()
		}
	}

	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil || len(results) == 0 {
		g.mu.Lock()
		g.failed[address] = struct{}{}
		g.mu.Unlock()
		if err != nil {
			g.logger.Warn().Err(err).Str("address", address).Msg("geocoding request failed")
			return geo.Point{}, fmt.Errorf("%v: %w", err, ErrGeocodingFailed)
		}
		g.logger.Warn().Str("address", address).Msg("geocoding returned no results")
		return geo.Point{}, ErrGeocodingFailed
	}

	p := geo.Point{
		Lat: results[0].Geometry.Location.Lat,
		Lng: results[0].Geometry.Location.Lng,
	}
	g.mu.Lock()
	g.resolved[address] = p
	g.mu.Unlock()
	return p, nil
}
