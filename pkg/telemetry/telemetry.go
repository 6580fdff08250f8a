// Package telemetry mirrors accepted courier positions and status changes to
// the dashboard's MQTT broker so open admin maps update live.
package telemetry

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/menukit/delivery-tracker/pkg/location"
)

// CourierPosition is the payload mirrored to dashboard subscribers for every
// accepted sample.
type CourierPosition struct {
	DeliveryID string        `json:"delivery_id"`
	Latitude   float64       `json:"latitude"`
	Longitude  float64       `json:"longitude"`
	Timestamp  time.Time     `json:"timestamp"`
	Tier       location.Tier `json:"source_accuracy_tier"`
}

// StatusChange is the payload published when a delivery changes state.
type StatusChange struct {
	DeliveryID string    `json:"delivery_id"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// MQTTClient is the slice of the paho client the publisher uses.
type MQTTClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher fans accepted samples and status changes out over MQTT.
type Publisher struct {
	client      MQTTClient
	topicPrefix string
	qos         int
	logger      zerolog.Logger
}

// NewPublisher creates an unconnected Publisher. Call Initialize before
// publishing.
func NewPublisher(topicPrefix string, qos int, logger zerolog.Logger) *Publisher {
	return &Publisher{
		topicPrefix: topicPrefix,
		qos:         qos,
		logger:      logger,
	}
}

// Initialize sets up the MQTT client and connects to the broker. caCertPath
// may be empty for plain-TCP brokers.
func (p *Publisher) Initialize(broker, clientID, caCertPath string) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)

	if caCertPath != "" {
		caCert, err := os.ReadFile(caCertPath)
		if err != nil {
			return fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return fmt.Errorf("failed to append CA certificate")
		}
		opts.SetTLSConfig(&tls.Config{RootCAs: caCertPool})
	}

	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// SetClient swaps the underlying client. Used by tests.
func (p *Publisher) SetClient(client MQTTClient) {
	p.client = client
}

// PublishPosition mirrors one accepted sample to the delivery's position
// topic.
func (p *Publisher) PublishPosition(position CourierPosition) error {
	topic := fmt.Sprintf("%s/%s/position", p.topicPrefix, position.DeliveryID)
	return p.publish(topic, position)
}

// PublishStatus mirrors a status change to the delivery's status topic.
func (p *Publisher) PublishStatus(change StatusChange) error {
	topic := fmt.Sprintf("%s/%s/status", p.topicPrefix, change.DeliveryID)
	return p.publish(topic, change)
}

func (p *Publisher) publish(topic string, payload interface{}) error {
	if p.client == nil {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize telemetry payload: %w", err)
	}
	token := p.client.Publish(topic, byte(p.qos), false, body)
	if token.Wait() && token.Error() != nil {
		p.logger.Error().Err(token.Error()).Str("topic", topic).Msg("failed to publish telemetry")
		return token.Error()
	}
	return nil
}

// Disconnect gracefully disconnects the MQTT client.
func (p *Publisher) Disconnect(quiesce uint) {
	if p.client != nil {
		p.client.Disconnect(quiesce)
	}
}
