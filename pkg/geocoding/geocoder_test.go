package geocoding_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"

	"github.com/menukit/delivery-tracker/pkg/geocoding"
)

type fakeMapsClient struct {
	calls   atomic.Int32
	results []maps.GeocodingResult
	err     error
}

func (f *fakeMapsClient) Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error) {
	f.calls.Add(1)
	return f.results, f.err
}

func resultAt(lat, lng float64) []maps.GeocodingResult {
	return []maps.GeocodingResult{{
		Geometry: maps.AddressGeometry{
			Location: maps.LatLng{Lat: lat, Lng: lng},
		},
	}}
}

func TestResolve_MemoizesSuccess(t *testing.T) {
	client := &fakeMapsClient{results: resultAt(-29.69, -53.81)}
	g := geocoding.NewWithClient(client, zerolog.Nop())

	p, err := g.Resolve(context.Background(), "Rua do Acampamento 10, Santa Maria")
	require.NoError(t, err)
	assert.Equal(t, -29.69, p.Lat)
	assert.Equal(t, -53.81, p.Lng)

	p2, err := g.Resolve(context.Background(), "Rua do Acampamento 10, Santa Maria")
	require.NoError(t, err)
	assert.Equal(t, p, p2)
	assert.Equal(t, int32(1), client.calls.Load(), "resolved address must not hit the API again")
}

func TestResolve_FailedAddressNotRetried(t *testing.T) {
	client := &fakeMapsClient{results: nil}
	g := geocoding.NewWithClient(client, zerolog.Nop())

	_, err := g.Resolve(context.Background(), "nowhere at all")
	assert.ErrorIs(t, err, geocoding.ErrGeocodingFailed)

	_, err = g.Resolve(context.Background(), "nowhere at all")
	assert.ErrorIs(t, err, geocoding.ErrGeocodingFailed)
	assert.Equal(t, int32(1), client.calls.Load(), "unresolved address is queried at most once")
}

func TestResolve_SpacesUpstreamCalls(t *testing.T) {
	client := &fakeMapsClient{results: resultAt(-29.69, -53.81)}
	g := geocoding.NewWithClient(client, zerolog.Nop())

	start := time.Now()
	_, err := g.Resolve(context.Background(), "address one")
	require.NoError(t, err)
	_, err = g.Resolve(context.Background(), "address two")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), time.Second, "second distinct address must wait out the rate limit")
}

func TestResolve_ContextCancelledWhileWaiting(t *testing.T) {
	client := &fakeMapsClient{results: resultAt(1, 2)}
	g := geocoding.NewWithClient(client, zerolog.Nop())

	_, err := g.Resolve(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.Resolve(ctx, "second")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
