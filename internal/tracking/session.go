// Package tracking owns the in-memory delivery session: the cached delivery
// status, the known map points, and the append-only courier trajectory.
package tracking

import (
	"errors"
	"sync"
	"time"

	"github.com/menukit/delivery-tracker/internal/delivery"
	"github.com/menukit/delivery-tracker/internal/models"
	"github.com/menukit/delivery-tracker/pkg/geo"
)

var (
	// ErrStaleSample rejects a sample older than the last accepted one.
	// Out-of-order network delivery is handled by rejection, not reordering.
	ErrStaleSample = errors.New("sample timestamp older than last accepted sample")

	// ErrNotTracking rejects samples while the delivery is not underway.
	ErrNotTracking = errors.New("delivery is not in a tracking status")
)

// Session is the in-memory aggregate for one open delivery. It is owned by a
// single orchestrator instance; the internal mutex only serializes the
// orchestrator's poll timer against the location sample callback.
type Session struct {
	mu sync.Mutex

	deliveryID string
	status     delivery.Status

	restaurantLocation *geo.Point
	customerLocation   *geo.Point

	trajectory []models.TrackingSample

	deliveryStartedAt    *time.Time
	deliveredAt          *time.Time
	lastSampleAcceptedAt *time.Time

	acquiringLocation bool
}

// NewSession creates a session for the given delivery in the given status.
func NewSession(deliveryID string, status delivery.Status) *Session {
	return &Session{
		deliveryID: deliveryID,
		status:     status,
	}
}

// DeliveryID returns the immutable delivery identifier.
func (s *Session) DeliveryID() string {
	return s.deliveryID
}

// Status returns the locally cached delivery status.
func (s *Session) Status() delivery.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus replaces the cached status. Validation of the transition happens
// in the state machine before this is called.
func (s *Session) SetStatus(status delivery.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// SetRestaurantLocation sets the restaurant point. It is set once; later calls
// are ignored.
func (s *Session) SetRestaurantLocation(p geo.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restaurantLocation == nil {
		s.restaurantLocation = &p
	}
}

// SetCustomerLocation sets the customer point, which may arrive late from a
// geocoding step.
func (s *Session) SetCustomerLocation(p geo.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customerLocation = &p
}

// RestaurantLocation returns the restaurant point if known.
func (s *Session) RestaurantLocation() (geo.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restaurantLocation == nil {
		return geo.Point{}, false
	}
	return *s.restaurantLocation, true
}

// CustomerLocation returns the customer point if known.
func (s *Session) CustomerLocation() (geo.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.customerLocation == nil {
		return geo.Point{}, false
	}
	return *s.customerLocation, true
}

// AcceptSample appends the sample to the trajectory. Samples are only accepted
// while the delivery is underway, and timestamps must be monotonic: a sample
// older than the last accepted one is rejected with ErrStaleSample.
func (s *Session) AcceptSample(sample models.TrackingSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.Tracking() {
		return ErrNotTracking
	}
	if n := len(s.trajectory); n > 0 && sample.Timestamp.Before(s.trajectory[n-1].Timestamp) {
		return ErrStaleSample
	}

	s.trajectory = append(s.trajectory, sample)
	t := sample.Timestamp
	s.lastSampleAcceptedAt = &t
	return nil
}

// CourierLocation returns the point of the last accepted sample.
func (s *Session) CourierLocation() (geo.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.trajectory) == 0 {
		return geo.Point{}, false
	}
	return s.trajectory[len(s.trajectory)-1].Point, true
}

// Trajectory returns the traveled path as an ordered copy of points, oldest
// first, for drawing on the map.
func (s *Session) Trajectory() []geo.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := make([]geo.Point, len(s.trajectory))
	for i, sample := range s.trajectory {
		path[i] = sample.Point
	}
	return path
}

// SampleCount returns the number of accepted samples.
func (s *Session) SampleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trajectory)
}

// LastSampleAcceptedAt returns the acceptance time of the newest sample.
func (s *Session) LastSampleAcceptedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSampleAcceptedAt == nil {
		return time.Time{}, false
	}
	return *s.lastSampleAcceptedAt, true
}

// MarkDeliveryStarted records the first moment the courier went out. Later
// calls keep the original timestamp.
func (s *Session) MarkDeliveryStarted(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveryStartedAt == nil {
		s.deliveryStartedAt = &t
	}
}

// DeliveryStartedAt returns when the courier first went out, if ever.
func (s *Session) DeliveryStartedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveryStartedAt == nil {
		return time.Time{}, false
	}
	return *s.deliveryStartedAt, true
}

// MarkDelivered records the completion timestamp.
func (s *Session) MarkDelivered(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveredAt == nil {
		s.deliveredAt = &t
	}
}

// DeliveredAt returns when the delivery completed, if it has.
func (s *Session) DeliveredAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveredAt == nil {
		return time.Time{}, false
	}
	return *s.deliveredAt, true
}

// SetAcquiringLocation records whether the device sensor loop is active.
func (s *Session) SetAcquiringLocation(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquiringLocation = active
}

// AcquiringLocation reports whether the device sensor loop is active.
func (s *Session) AcquiringLocation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquiringLocation
}
