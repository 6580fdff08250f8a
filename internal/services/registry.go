package services

import (
	"fmt"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// TrackerRegistry holds the open tracking sessions, one orchestrator per
// delivery. Tracking screens for different deliveries can be open at once.
type TrackerRegistry struct {
	sessions cmap.ConcurrentMap[string, *TrackingService]
	logger   zerolog.Logger
}

// NewTrackerRegistry initializes an empty registry.
func NewTrackerRegistry(logger zerolog.Logger) *TrackerRegistry {
	return &TrackerRegistry{
		sessions: cmap.New[*TrackingService](),
		logger:   logger,
	}
}

// Add registers an opened tracking service under its delivery ID.
func (r *TrackerRegistry) Add(svc *TrackingService) error {
	if !r.sessions.SetIfAbsent(svc.deliveryID, svc) {
		return fmt.Errorf("delivery %s is already being tracked", svc.deliveryID)
	}
	r.logger.Info().Str("delivery_id", svc.deliveryID).Msg("tracking session registered")
	return nil
}

// Get returns the tracking service for a delivery, if open.
func (r *TrackerRegistry) Get(deliveryID string) (*TrackingService, bool) {
	return r.sessions.Get(deliveryID)
}

// Close closes and removes one tracking session. Closing an unknown delivery
// is a no-op.
func (r *TrackerRegistry) Close(deliveryID string) {
	if svc, ok := r.sessions.Pop(deliveryID); ok {
		svc.Close()
	}
}

// CloseAll closes every open session. Used on shutdown.
func (r *TrackerRegistry) CloseAll() {
	for entry := range r.sessions.IterBuffered() {
		r.sessions.Remove(entry.Key)
		entry.Val.Close()
	}
}

// Count returns the number of open sessions.
func (r *TrackerRegistry) Count() int {
	return r.sessions.Count()
}
