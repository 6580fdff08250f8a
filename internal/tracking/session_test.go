package tracking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menukit/delivery-tracker/internal/delivery"
	"github.com/menukit/delivery-tracker/internal/models"
	"github.com/menukit/delivery-tracker/internal/tracking"
	"github.com/menukit/delivery-tracker/pkg/geo"
	"github.com/menukit/delivery-tracker/pkg/location"
)

func sampleAt(ts time.Time, lat, lng float64) models.TrackingSample {
	return models.TrackingSample{
		Point:     geo.Point{Lat: lat, Lng: lng},
		Timestamp: ts,
		Tier:      location.TierHigh,
	}
}

func TestAcceptSample_OnlyWhileTracking(t *testing.T) {
	now := time.Now()

	for _, status := range []delivery.Status{
		delivery.StatusPending,
		delivery.StatusPreparing,
		delivery.StatusDelivered,
		delivery.StatusCancelled,
	} {
		s := tracking.NewSession("d-1", status)
		err := s.AcceptSample(sampleAt(now, -29.68, -53.80))
		assert.ErrorIs(t, err, tracking.ErrNotTracking, "status %s must reject samples", status)
		assert.Equal(t, 0, s.SampleCount())
	}

	for _, status := range []delivery.Status{delivery.StatusOutForDelivery, delivery.StatusInTransit} {
		s := tracking.NewSession("d-1", status)
		assert.NoError(t, s.AcceptSample(sampleAt(now, -29.68, -53.80)), "status %s must accept samples", status)
		assert.Equal(t, 1, s.SampleCount())
	}
}

func TestAcceptSample_RejectsStaleTimestamps(t *testing.T) {
	s := tracking.NewSession("d-1", delivery.StatusInTransit)
	now := time.Now()

	require.NoError(t, s.AcceptSample(sampleAt(now, -29.68, -53.80)))
	err := s.AcceptSample(sampleAt(now.Add(-5*time.Second), -29.681, -53.801))
	assert.ErrorIs(t, err, tracking.ErrStaleSample)
	assert.Equal(t, 1, s.SampleCount(), "trajectory length unchanged after stale sample")

	// Equal timestamps are not stale.
	assert.NoError(t, s.AcceptSample(sampleAt(now, -29.682, -53.802)))
}

func TestTrajectory_AppendOnlyAndMonotonic(t *testing.T) {
	s := tracking.NewSession("d-1", delivery.StatusOutForDelivery)
	base := time.Now()

	timestamps := []time.Duration{0, 10 * time.Second, 20 * time.Second, 15 * time.Second, 30 * time.Second}
	for i, offset := range timestamps {
		_ = s.AcceptSample(sampleAt(base.Add(offset), -29.68+float64(i)*0.001, -53.80))
	}

	// The 15s sample was rejected; four samples remain in order.
	path := s.Trajectory()
	assert.Len(t, path, 4)

	last, ok := s.LastSampleAcceptedAt()
	require.True(t, ok)
	assert.Equal(t, base.Add(30*time.Second), last)
}

func TestCourierLocation_TracksLastSample(t *testing.T) {
	s := tracking.NewSession("d-1", delivery.StatusInTransit)

	_, ok := s.CourierLocation()
	assert.False(t, ok, "no courier location before first sample")

	now := time.Now()
	require.NoError(t, s.AcceptSample(sampleAt(now, -29.68, -53.80)))
	require.NoError(t, s.AcceptSample(sampleAt(now.Add(10*time.Second), -29.685, -53.805)))

	p, ok := s.CourierLocation()
	require.True(t, ok)
	assert.Equal(t, geo.Point{Lat: -29.685, Lng: -53.805}, p)
}

func TestTrajectory_ReturnsCopy(t *testing.T) {
	s := tracking.NewSession("d-1", delivery.StatusInTransit)
	require.NoError(t, s.AcceptSample(sampleAt(time.Now(), -29.68, -53.80)))

	path := s.Trajectory()
	path[0] = geo.Point{Lat: 0, Lng: 0}

	p, ok := s.CourierLocation()
	require.True(t, ok)
	assert.Equal(t, geo.Point{Lat: -29.68, Lng: -53.80}, p, "mutating the projection must not touch the trajectory")
}

func TestRestaurantLocation_SetOnce(t *testing.T) {
	s := tracking.NewSession("d-1", delivery.StatusPending)
	s.SetRestaurantLocation(geo.Point{Lat: -29.68, Lng: -53.80})
	s.SetRestaurantLocation(geo.Point{Lat: 0, Lng: 0})

	p, ok := s.RestaurantLocation()
	require.True(t, ok)
	assert.Equal(t, geo.Point{Lat: -29.68, Lng: -53.80}, p)
}

func TestMarkDeliveryStarted_KeepsFirstTimestamp(t *testing.T) {
	s := tracking.NewSession("d-1", delivery.StatusOutForDelivery)
	first := time.Now()
	s.MarkDeliveryStarted(first)
	s.MarkDeliveryStarted(first.Add(time.Minute))

	got, ok := s.DeliveryStartedAt()
	require.True(t, ok)
	assert.Equal(t, first, got)
}
