// Package utils holds the configuration loader shared by the tracker binary.
package utils

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the structure of the configuration file.
type Config struct {
	API struct {
		BaseURL string        `yaml:"base_url"` // Platform REST API base URL
		Timeout time.Duration `yaml:"timeout"`  // HTTP client timeout
	} `yaml:"api"`

	Tracking struct {
		PollInterval time.Duration `yaml:"poll_interval"` // Delivery refresh cadence
	} `yaml:"tracking"`

	Location struct {
		GPSDevicePort          string        `yaml:"gps_device_port"`          // Serial port of the GPS receiver
		GPSDeviceBaudRate      int           `yaml:"gps_baud_rate"`            // Baud rate for the GPS receiver
		MapsAPIKey             string        `yaml:"maps_api_key"`             // Google Maps API key for network positioning
		ModemIndex             int           `yaml:"modem_index"`              // mmcli modem index for cell scans
		EmitInterval           time.Duration `yaml:"emit_interval"`            // Continuous emission throttle
		PollInterval           time.Duration `yaml:"poll_interval"`            // Sensor poll cadence
		HighAccuracyTimeout    time.Duration `yaml:"high_accuracy_timeout"`    // One-shot GPS bound
		ReducedAccuracyTimeout time.Duration `yaml:"reduced_accuracy_timeout"` // One-shot network-positioning bound
		OneShotMaxCacheAge     time.Duration `yaml:"one_shot_max_cache_age"`   // Cache tolerance for the one-shot retry
		ContinuousMaxCacheAge  time.Duration `yaml:"continuous_max_cache_age"` // Cache tolerance while continuous
		WakeLock               bool          `yaml:"wake_lock"`                // Hold a systemd inhibitor while acquiring
	} `yaml:"location"`

	Geocoding struct {
		MapsAPIKey string `yaml:"maps_api_key"` // Google Maps API key for address resolution
	} `yaml:"geocoding"`

	Telemetry struct {
		Enabled       bool   `yaml:"enabled"`        // Enable/disable the MQTT mirror
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID prefix
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate, empty for plain TCP
		TopicPrefix   string `yaml:"topic_prefix"`   // Topic prefix for per-delivery topics
		QOS           int    `yaml:"qos"`            // MQTT QoS level
	} `yaml:"telemetry"`

	Log struct {
		Level string `yaml:"level"` // zerolog level name
	} `yaml:"log"`
}

// LoadConfig loads the YAML configuration from the specified file.
func LoadConfig(filename string) (*Config, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", filename, err)
	}

	var config Config
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", filename, err)
	}

	return &config, nil
}
