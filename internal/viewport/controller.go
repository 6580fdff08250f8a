// Package viewport computes map framing directives from the set of currently
// known delivery points. The controller is pure: identical inputs always
// produce the identical directive, so callers may re-run it on every sample
// without causing spurious map movement.
package viewport

import (
	"math"

	"github.com/menukit/delivery-tracker/pkg/geo"
)

// Kind selects how the rendering layer should apply a directive.
type Kind string

const (
	// KindWorld is the fallback view when no point is known yet.
	KindWorld Kind = "world"
	// KindCenter centers on a single point at a fixed zoom.
	KindCenter Kind = "center"
	// KindBounds fits a bounding box with padding inside a zoom band.
	KindBounds Kind = "bounds"
)

// Directive tells the rendering layer how to frame the map.
type Directive struct {
	Kind         Kind       `json:"kind"`
	Center       geo.Point  `json:"center"`
	Zoom         int        `json:"zoom,omitempty"`
	Bounds       geo.Bounds `json:"bounds,omitempty"`
	PaddingPx    int        `json:"padding_px,omitempty"`
	MinZoom      int        `json:"min_zoom,omitempty"`
	MaxZoom      int        `json:"max_zoom,omitempty"`
	TransitionMs int        `json:"transition_ms"`
}

// Points holds the up-to-three known map points, nil when unknown.
type Points struct {
	Restaurant *geo.Point
	Courier    *geo.Point
	Customer   *geo.Point
}

const (
	// singlePointZoom frames roughly a street block: enough to confirm an
	// address pin without browsing the city.
	singlePointZoom = 17

	// coincidentKm is the distance below which two points count as one for
	// zoom selection.
	coincidentKm = 0.01

	activePaddingPx = 96
	idlePaddingPx   = 48

	activeTransitionMs = 300
	idleTransitionMs   = 800
)

// zoomTier maps a maximum pairwise distance to an allowed zoom band. Bands
// must stay monotonic: a larger distance never gets a tighter band.
type zoomTier struct {
	maxDistanceKm float64
	minZoom       int
	maxZoom       int
}

var zoomTiers = []zoomTier{
	{maxDistanceKm: 0.5, minZoom: 16, maxZoom: 18},
	{maxDistanceKm: 1, minZoom: 15, maxZoom: 17},
	{maxDistanceKm: 3, minZoom: 14, maxZoom: 16},
	{maxDistanceKm: 8, minZoom: 13, maxZoom: 15},
	{maxDistanceKm: 20, minZoom: 11, maxZoom: 14},
	{maxDistanceKm: math.Inf(1), minZoom: 3, maxZoom: 13},
}

// tierFor returns the zoom band for the given maximum pairwise distance.
func tierFor(distanceKm float64) zoomTier {
	for _, t := range zoomTiers {
		if distanceKm < t.maxDistanceKm {
			return t
		}
	}
	return zoomTiers[len(zoomTiers)-1]
}

// Compute produces the framing directive for the currently known points.
// deliveryActive selects the GPS-navigation style framing: larger padding and
// fast transitions that continuously re-fit as the courier moves.
func Compute(points Points, deliveryActive bool) Directive {
	known := knownPoints(points)

	transition := idleTransitionMs
	padding := idlePaddingPx
	if deliveryActive {
		transition = activeTransitionMs
		padding = activePaddingPx
	}

	switch len(known) {
	case 0:
		return Directive{Kind: KindWorld, Zoom: 2, TransitionMs: transition}
	case 1:
		return Directive{
			Kind:         KindCenter,
			Center:       known[0],
			Zoom:         singlePointZoom,
			TransitionMs: transition,
		}
	}

	maxDistance := maxPairwiseDistanceKm(known)
	if maxDistance < coincidentKm {
		// All points stacked on one spot: zoom as if there were a single
		// marker, centered on it.
		return Directive{
			Kind:         KindCenter,
			Center:       known[0],
			Zoom:         singlePointZoom,
			TransitionMs: transition,
		}
	}

	bounds, _ := geo.BoundingBox(known)
	tier := tierFor(maxDistance)

	return Directive{
		Kind:         KindBounds,
		Center:       geo.Midpoint(geo.Point{Lat: bounds.MinLat, Lng: bounds.MinLng}, geo.Point{Lat: bounds.MaxLat, Lng: bounds.MaxLng}),
		Bounds:       bounds,
		PaddingPx:    padding,
		MinZoom:      tier.minZoom,
		MaxZoom:      tier.maxZoom,
		TransitionMs: transition,
	}
}

// knownPoints collects the defined points in stable order: restaurant, then
// courier, then customer.
func knownPoints(points Points) []geo.Point {
	known := make([]geo.Point, 0, 3)
	if points.Restaurant != nil {
		known = append(known, *points.Restaurant)
	}
	if points.Courier != nil {
		known = append(known, *points.Courier)
	}
	if points.Customer != nil {
		known = append(known, *points.Customer)
	}
	return known
}

// maxPairwiseDistanceKm returns the largest great-circle distance among all
// point pairs.
func maxPairwiseDistanceKm(points []geo.Point) float64 {
	max := 0.0
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			if d := geo.DistanceKm(points[i], points[j]); d > max {
				max = d
			}
		}
	}
	return max
}
