// Package deliveryapi is the HTTP/JSON client for the order-management
// platform's delivery endpoints. Persistence, auth, and the rest of the CRUD
// surface live behind this API; the tracker only reads and updates the
// delivery it is tracking.
package deliveryapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// LatLng is a coordinate pair as the platform serializes it.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Customer carries the delivery address and its coordinates once geocoded
// server-side.
type Customer struct {
	Address  string  `json:"address"`
	Location *LatLng `json:"location,omitempty"`
}

// TrackingPoint is one server-stored trajectory entry.
type TrackingPoint struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// Delivery is the platform's view of a delivery.
type Delivery struct {
	DeliveryStatus string          `json:"deliveryStatus"`
	Customer       Customer        `json:"customer"`
	DeliveryPerson *string         `json:"deliveryPerson,omitempty"`
	Restaurant     *LatLng         `json:"restaurant,omitempty"`
	Tracking       []TrackingPoint `json:"tracking"`
}

// UpdateRequest updates the delivery status and/or appends a tracking point
// server-side. Nil fields are omitted.
type UpdateRequest struct {
	Status    *string  `json:"status,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// StatusError reports a non-2xx platform response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("delivery API returned status %d: %s", e.Code, e.Body)
}

// Client talks to the platform delivery endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a delivery API client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// GetDelivery fetches the current status, customer, and trajectory of a
// delivery.
func (c *Client) GetDelivery(ctx context.Context, deliveryID string) (*Delivery, error) {
	endpoint := fmt.Sprintf("%s/delivery/%s", c.baseURL, url.PathEscape(deliveryID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building delivery request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching delivery %s: %w", deliveryID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readStatusError(resp)
	}

	var delivery Delivery
	if err := json.NewDecoder(resp.Body).Decode(&delivery); err != nil {
		return nil, fmt.Errorf("decoding delivery %s: %w", deliveryID, err)
	}
	return &delivery, nil
}

// UpdateDelivery pushes a status change and/or a tracking point.
func (c *Client) UpdateDelivery(ctx context.Context, deliveryID string, update UpdateRequest) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encoding delivery update: %w", err)
	}

	endpoint := fmt.Sprintf("%s/delivery/%s", c.baseURL, url.PathEscape(deliveryID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building delivery update: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("updating delivery %s: %w", deliveryID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return readStatusError(resp)
	}

	c.logger.Debug().Str("delivery_id", deliveryID).Msg("delivery update pushed")
	return nil
}

func readStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: string(body)}
}
