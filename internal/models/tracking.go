// Package models holds the structs shared across the tracker's internal
// services.
package models

import (
	"time"

	"github.com/menukit/delivery-tracker/pkg/geo"
	"github.com/menukit/delivery-tracker/pkg/location"
)

// TrackingSample is one accepted courier position. Samples are immutable once
// created and are timestamped at acceptance time, not sensor time.
type TrackingSample struct {
	Point     geo.Point     `json:"point"`
	Timestamp time.Time     `json:"timestamp"`
	Tier      location.Tier `json:"source_accuracy_tier"`
}
