// Package services contains the tracking session orchestrator and the
// registry of open sessions. The orchestrator ties the state machine, the
// location acquisition service, the ingest rules, and the viewport controller
// together and reconciles with the platform API.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/menukit/delivery-tracker/internal/delivery"
	"github.com/menukit/delivery-tracker/internal/models"
	"github.com/menukit/delivery-tracker/internal/tracking"
	"github.com/menukit/delivery-tracker/internal/viewport"
	"github.com/menukit/delivery-tracker/pkg/deliveryapi"
	"github.com/menukit/delivery-tracker/pkg/geo"
	"github.com/menukit/delivery-tracker/pkg/location"
	"github.com/menukit/delivery-tracker/pkg/telemetry"
)

// DeliveryAPI is the platform client surface the orchestrator depends on.
type DeliveryAPI interface {
	GetDelivery(ctx context.Context, deliveryID string) (*deliveryapi.Delivery, error)
	UpdateDelivery(ctx context.Context, deliveryID string, update deliveryapi.UpdateRequest) error
}

// LocationAcquirer is the acquisition surface the orchestrator depends on.
// The orchestrator never touches raw platform handles; subscription ownership
// stays inside the location service.
type LocationAcquirer interface {
	EnsureReady(ctx context.Context) error
	StartContinuous(onSample func(location.Reading), onError func(error)) (*location.Subscription, error)
	Stop(sub *location.Subscription)
}

// Geocoder resolves a customer address when the platform has no coordinates
// for it yet.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (geo.Point, error)
}

// TelemetrySink mirrors accepted samples and status changes to dashboard
// subscribers. May be nil when telemetry is disabled.
type TelemetrySink interface {
	PublishPosition(position telemetry.CourierPosition) error
	PublishStatus(change telemetry.StatusChange) error
}

// Callbacks is the surface exposed upward to the rendering layer.
type Callbacks struct {
	OnViewportChange func(viewport.Directive)
	OnStatusChange   func(status delivery.Status)
	OnTrackingError  func(err error)
}

// TrackingService orchestrates one open delivery tracking session.
type TrackingService struct {
	deliveryID   string
	pollInterval time.Duration

	api       DeliveryAPI
	acquirer  LocationAcquirer
	geocoder  Geocoder
	telemetry TelemetrySink
	callbacks Callbacks
	logger    zerolog.Logger

	session *tracking.Session

	// mu guards sub, lastDirective, and the lifecycle flags. Never held
	// across acquirer.Stop, which waits for the sample loop to exit.
	mu            sync.Mutex
	sub           *location.Subscription
	lastDirective *viewport.Directive
	running       bool
	closed        bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// defaultPollInterval is used when the configuration leaves the refresh
// cadence unset.
const defaultPollInterval = 5 * time.Second

// NewTrackingService creates an orchestrator for the given delivery. Call
// Open to load the session, then Start to begin polling.
func NewTrackingService(deliveryID string, pollInterval time.Duration, api DeliveryAPI,
	acquirer LocationAcquirer, geocoder Geocoder, sink TelemetrySink,
	callbacks Callbacks, logger zerolog.Logger) *TrackingService {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &TrackingService{
		deliveryID:   deliveryID,
		pollInterval: pollInterval,
		api:          api,
		acquirer:     acquirer,
		geocoder:     geocoder,
		telemetry:    sink,
		callbacks:    callbacks,
		logger:       logger.With().Str("delivery_id", deliveryID).Logger(),
	}
}

// Session exposes the in-memory aggregate for read access.
func (t *TrackingService) Session() *tracking.Session {
	return t.session
}

// Open fetches the delivery from the platform and initializes the session. If
// the customer address has no coordinates yet, geocoding runs in the
// background and the customer marker appears once resolved.
func (t *TrackingService) Open(ctx context.Context) error {
	remote, err := t.api.GetDelivery(ctx, t.deliveryID)
	if err != nil {
		return fmt.Errorf("opening tracking session: %w", err)
	}

	status := delivery.Status(remote.DeliveryStatus)
	if !status.Valid() {
		return fmt.Errorf("opening tracking session: unknown delivery status %q", remote.DeliveryStatus)
	}

	t.session = tracking.NewSession(t.deliveryID, status)
	if remote.Restaurant != nil {
		t.session.SetRestaurantLocation(geo.Point{Lat: remote.Restaurant.Latitude, Lng: remote.Restaurant.Longitude})
	}
	if remote.Customer.Location != nil {
		t.session.SetCustomerLocation(geo.Point{Lat: remote.Customer.Location.Latitude, Lng: remote.Customer.Location.Longitude})
	} else if remote.Customer.Address != "" {
		t.resolveCustomerAsync(remote.Customer.Address)
	}

	t.seedTrajectory(remote.Tracking)
	t.evaluateAcquisition()
	t.publishViewport()

	t.logger.Info().Str("status", string(status)).Int("samples", t.session.SampleCount()).Msg("tracking session opened")
	return nil
}

// Start begins the periodic refresh loop.
func (t *TrackingService) Start() error {
	t.mu.Lock()
	if t.session == nil {
		t.mu.Unlock()
		return errors.New("tracking session is not open")
	}
	if t.running {
		t.mu.Unlock()
		return errors.New("tracking service is already running")
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.running = true
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ticker := time.NewTicker(t.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := t.Refresh(t.ctx); err != nil {
					t.logger.Warn().Err(err).Msg("refresh failed")
				}
			case <-t.ctx.Done():
				return
			}
		}
	}()

	t.logger.Info().Dur("poll_interval", t.pollInterval).Msg("tracking service started")
	return nil
}

// Refresh re-fetches the delivery and reconciles. The server is authoritative
// when it reports a status further along the lifecycle, which covers the
// courier app and the operator dashboard disagreeing.
func (t *TrackingService) Refresh(ctx context.Context) error {
	remote, err := t.api.GetDelivery(ctx, t.deliveryID)
	if err != nil {
		return fmt.Errorf("refreshing delivery: %w", err)
	}

	serverStatus := delivery.Status(remote.DeliveryStatus)
	local := t.session.Status()
	if serverStatus.Valid() && delivery.Ahead(serverStatus, local) {
		t.logger.Info().
			Str("local_status", string(local)).
			Str("server_status", string(serverStatus)).
			Msg("adopting server status")
		t.applyStatus(serverStatus)
	}

	if _, known := t.session.CustomerLocation(); !known && remote.Customer.Location != nil {
		t.session.SetCustomerLocation(geo.Point{Lat: remote.Customer.Location.Latitude, Lng: remote.Customer.Location.Longitude})
	}

	t.seedTrajectory(remote.Tracking)
	t.publishViewport()
	return nil
}

// SetStatus requests a status transition. Invalid transitions are rejected
// synchronously with the session unchanged; this is a normal outcome for
// double-click races, not a failure of the session.
func (t *TrackingService) SetStatus(ctx context.Context, requested delivery.Status) error {
	current := t.session.Status()
	next, err := delivery.Transition(current, requested)
	if err != nil {
		return err
	}

	t.applyStatus(next)

	status := string(next)
	if err := t.api.UpdateDelivery(ctx, t.deliveryID, deliveryapi.UpdateRequest{Status: &status}); err != nil {
		// Local state stays applied; the poll loop reconciles once the
		// platform is reachable again.
		t.logger.Error().Err(err).Str("status", status).Msg("failed to push status to platform")
		return err
	}
	return nil
}

// applyStatus caches the new status and performs the side effects that
// belong to the orchestrator: timestamps and acquisition start/stop.
func (t *TrackingService) applyStatus(next delivery.Status) {
	now := time.Now()

	t.session.SetStatus(next)
	if next.Tracking() {
		t.session.MarkDeliveryStarted(now)
	}
	if next == delivery.StatusDelivered {
		t.session.MarkDelivered(now)
	}

	t.evaluateAcquisition()

	if t.telemetry != nil {
		if err := t.telemetry.PublishStatus(telemetry.StatusChange{
			DeliveryID: t.deliveryID,
			Status:     string(next),
			Timestamp:  now,
		}); err != nil {
			t.logger.Warn().Err(err).Msg("failed to publish status telemetry")
		}
	}
	if t.callbacks.OnStatusChange != nil {
		t.callbacks.OnStatusChange(next)
	}
	t.publishViewport()
}

// evaluateAcquisition starts or stops continuous acquisition so that it runs
// exactly while the delivery is underway and the session is open.
func (t *TrackingService) evaluateAcquisition() {
	shouldAcquire := t.session.Status().Tracking()

	t.mu.Lock()
	if t.closed {
		shouldAcquire = false
	}
	current := t.sub
	if shouldAcquire && current != nil {
		t.mu.Unlock()
		return
	}
	if !shouldAcquire && current == nil {
		t.mu.Unlock()
		return
	}
	t.sub = nil
	t.mu.Unlock()

	if current != nil {
		t.acquirer.Stop(current)
		t.session.SetAcquiringLocation(false)
		t.logger.Info().Msg("location acquisition stopped")
		return
	}

	sub, err := t.acquirer.StartContinuous(t.onSample, t.onAcquisitionError)
	if err != nil {
		t.logger.Error().Err(err).Msg("failed to start location acquisition")
		t.surfaceError(err)
		return
	}

	t.mu.Lock()
	t.sub = sub
	t.mu.Unlock()
	t.session.SetAcquiringLocation(true)
	t.logger.Info().Msg("location acquisition started")
}

// onSample ingests one fix from the acquisition service. Samples arriving
// after the session stopped tracking are dropped.
func (t *TrackingService) onSample(reading location.Reading) {
	t.mu.Lock()
	if t.closed || t.sub == nil {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	sample := models.TrackingSample{
		Point:     reading.Point,
		Timestamp: time.Now(),
		Tier:      reading.Tier,
	}

	if err := t.session.AcceptSample(sample); err != nil {
		switch {
		case errors.Is(err, tracking.ErrStaleSample):
			t.logger.Warn().Time("sample_ts", sample.Timestamp).Msg("dropping stale sample")
		case errors.Is(err, tracking.ErrNotTracking):
			t.logger.Warn().Str("status", string(t.session.Status())).Msg("dropping sample, delivery not underway")
		default:
			t.logger.Warn().Err(err).Msg("dropping sample")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.pollInterval)
	defer cancel()
	lat, lng := sample.Point.Lat, sample.Point.Lng
	if err := t.api.UpdateDelivery(ctx, t.deliveryID, deliveryapi.UpdateRequest{Latitude: &lat, Longitude: &lng}); err != nil {
		t.logger.Warn().Err(err).Msg("failed to push tracking point to platform")
	}

	if t.telemetry != nil {
		if err := t.telemetry.PublishPosition(telemetry.CourierPosition{
			DeliveryID: t.deliveryID,
			Latitude:   lat,
			Longitude:  lng,
			Timestamp:  sample.Timestamp,
			Tier:       sample.Tier,
		}); err != nil {
			t.logger.Warn().Err(err).Msg("failed to publish position telemetry")
		}
	}

	t.publishViewport()
}

// onAcquisitionError handles acquisition failures. Transient errors degrade
// to "no live courier position"; permission denial ends acquisition for good.
func (t *TrackingService) onAcquisitionError(err error) {
	if location.Terminal(err) {
		t.mu.Lock()
		t.sub = nil
		t.mu.Unlock()
		t.session.SetAcquiringLocation(false)
		t.logger.Error().Err(err).Msg("location acquisition ended")
	} else {
		t.logger.Warn().Err(err).Msg("location acquisition error")
	}
	t.surfaceError(err)
}

func (t *TrackingService) surfaceError(err error) {
	if t.callbacks.OnTrackingError != nil {
		t.callbacks.OnTrackingError(err)
	}
}

// seedTrajectory merges server-stored tracking points into the session. The
// monotonic-timestamp rule makes this idempotent across refreshes: already
// known points are rejected as stale, duplicates at the same instant are
// tolerated.
func (t *TrackingService) seedTrajectory(points []deliveryapi.TrackingPoint) {
	if !t.session.Status().Tracking() {
		return
	}
	last, haveLast := t.session.LastSampleAcceptedAt()
	for _, p := range points {
		if haveLast && !p.Timestamp.After(last) {
			continue
		}
		sample := models.TrackingSample{
			Point:     geo.Point{Lat: p.Latitude, Lng: p.Longitude},
			Timestamp: p.Timestamp,
			Tier:      location.TierReduced,
		}
		if err := t.session.AcceptSample(sample); err != nil {
			t.logger.Debug().Err(err).Time("sample_ts", p.Timestamp).Msg("skipping server tracking point")
			continue
		}
		last, haveLast = p.Timestamp, true
	}
}

// resolveCustomerAsync geocodes the customer address in the background. The
// geocoder memoizes the address and enforces the upstream rate limit.
func (t *TrackingService) resolveCustomerAsync(address string) {
	if t.geocoder == nil {
		t.logger.Warn().Str("address", address).Msg("no geocoder configured, customer marker stays absent")
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		p, err := t.geocoder.Resolve(ctx, address)
		if err != nil {
			t.logger.Warn().Err(err).Str("address", address).Msg("customer address not resolved")
			t.surfaceError(err)
			return
		}

		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}

		t.session.SetCustomerLocation(p)
		t.publishViewport()
	}()
}

// publishViewport recomputes the framing directive and notifies the rendering
// layer only when it actually changed.
func (t *TrackingService) publishViewport() {
	points := viewport.Points{}
	if p, ok := t.session.RestaurantLocation(); ok {
		points.Restaurant = &p
	}
	if p, ok := t.session.CourierLocation(); ok {
		points.Courier = &p
	}
	if p, ok := t.session.CustomerLocation(); ok {
		points.Customer = &p
	}

	directive := viewport.Compute(points, t.session.Status().Tracking())

	t.mu.Lock()
	if t.lastDirective != nil && *t.lastDirective == directive {
		t.mu.Unlock()
		return
	}
	t.lastDirective = &directive
	t.mu.Unlock()

	if t.callbacks.OnViewportChange != nil {
		t.callbacks.OnViewportChange(directive)
	}
}

// Close stops polling and location acquisition. Safe to call multiple times.
func (t *TrackingService) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	running := t.running
	t.running = false
	sub := t.sub
	t.sub = nil
	t.mu.Unlock()

	if running {
		t.cancel()
	}
	if sub != nil {
		t.acquirer.Stop(sub)
	}
	t.wg.Wait()

	if t.session != nil {
		t.session.SetAcquiringLocation(false)
	}
	t.logger.Info().Msg("tracking session closed")
}
