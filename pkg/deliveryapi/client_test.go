package deliveryapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menukit/delivery-tracker/pkg/deliveryapi"
)

func TestGetDelivery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/delivery/d-42", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"deliveryStatus": "in_transit",
			"customer": {"address": "Rua X 12", "location": {"latitude": -29.69, "longitude": -53.81}},
			"deliveryPerson": "carlos",
			"tracking": [
				{"latitude": -29.68, "longitude": -53.80, "timestamp": "2026-08-30T17:00:00Z", "status": "in_transit"}
			]
		}`))
	}))
	defer server.Close()

	client := deliveryapi.NewClient(server.URL, 5*time.Second, zerolog.Nop())

	d, err := client.GetDelivery(context.Background(), "d-42")
	require.NoError(t, err)
	assert.Equal(t, "in_transit", d.DeliveryStatus)
	assert.Equal(t, "Rua X 12", d.Customer.Address)
	require.NotNil(t, d.Customer.Location)
	assert.Equal(t, -29.69, d.Customer.Location.Latitude)
	require.Len(t, d.Tracking, 1)
	assert.Equal(t, -29.68, d.Tracking[0].Latitude)
}

func TestGetDelivery_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such delivery", http.StatusNotFound)
	}))
	defer server.Close()

	client := deliveryapi.NewClient(server.URL, 5*time.Second, zerolog.Nop())

	_, err := client.GetDelivery(context.Background(), "missing")
	var statusErr *deliveryapi.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}

func TestUpdateDelivery_Status(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/delivery/d-42", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := deliveryapi.NewClient(server.URL, 5*time.Second, zerolog.Nop())

	status := "delivered"
	err := client.UpdateDelivery(context.Background(), "d-42", deliveryapi.UpdateRequest{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "delivered", received["status"])
	assert.NotContains(t, received, "latitude", "nil fields must be omitted")
}

func TestUpdateDelivery_TrackingPoint(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := deliveryapi.NewClient(server.URL, 5*time.Second, zerolog.Nop())

	lat, lng := -29.685, -53.805
	err := client.UpdateDelivery(context.Background(), "d-42", deliveryapi.UpdateRequest{Latitude: &lat, Longitude: &lng})
	require.NoError(t, err)
	assert.Equal(t, -29.685, received["latitude"])
	assert.Equal(t, -53.805, received["longitude"])
	assert.NotContains(t, received, "status")
}

func TestUpdateDelivery_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := deliveryapi.NewClient(server.URL, 5*time.Second, zerolog.Nop())

	status := "delivered"
	err := client.UpdateDelivery(context.Background(), "d-42", deliveryapi.UpdateRequest{Status: &status})
	var statusErr *deliveryapi.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
}
