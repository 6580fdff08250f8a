package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/menukit/delivery-tracker/internal/delivery"
	"github.com/menukit/delivery-tracker/internal/services"
	"github.com/menukit/delivery-tracker/internal/utils"
	"github.com/menukit/delivery-tracker/internal/viewport"
	"github.com/menukit/delivery-tracker/pkg/deliveryapi"
	"github.com/menukit/delivery-tracker/pkg/geocoding"
	"github.com/menukit/delivery-tracker/pkg/location"
	"github.com/menukit/delivery-tracker/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	deliveryID := flag.String("delivery", "", "delivery ID to track")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	config, err := utils.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(config.Log.Level); err == nil && config.Log.Level != "" {
		logger = logger.Level(level)
	}

	if *deliveryID == "" {
		logger.Fatal().Msg("No delivery ID given, use -delivery")
	}

	// Acquisition tiers: serial GPS first, network positioning as fallback.
	var highTier, reducedTier location.Provider
	if config.Location.GPSDevicePort != "" {
		highTier = location.NewGPSSensorProvider(config.Location.GPSDevicePort, config.Location.GPSDeviceBaudRate)
	}
	if config.Location.MapsAPIKey != "" {
		reducedTier, err = location.NewGoogleGeolocationProvider(config.Location.MapsAPIKey, config.Location.ModemIndex)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create geolocation provider")
		}
	}

	var wakeLock location.WakeLock = location.NewNoopWakeLock()
	if config.Location.WakeLock {
		wakeLock = location.NewSystemdInhibitLock("delivery-tracker", "live delivery tracking")
	}

	acquirer := location.NewService(highTier, reducedTier, wakeLock, logger, location.Options{
		HighAccuracyTimeout:    config.Location.HighAccuracyTimeout,
		ReducedAccuracyTimeout: config.Location.ReducedAccuracyTimeout,
		OneShotMaxCacheAge:     config.Location.OneShotMaxCacheAge,
		EmitInterval:           config.Location.EmitInterval,
		PollInterval:           config.Location.PollInterval,
		ContinuousMaxCacheAge:  config.Location.ContinuousMaxCacheAge,
	})

	var geocoder services.Geocoder
	if config.Geocoding.MapsAPIKey != "" {
		g, err := geocoding.New(config.Geocoding.MapsAPIKey, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create geocoder")
		}
		geocoder = g
	}

	apiClient := deliveryapi.NewClient(config.API.BaseURL, config.API.Timeout, logger)

	var sink services.TelemetrySink
	var publisher *telemetry.Publisher
	if config.Telemetry.Enabled {
		publisher = telemetry.NewPublisher(config.Telemetry.TopicPrefix, config.Telemetry.QOS, logger)
		clientID := config.Telemetry.ClientID + "-" + uuid.New().String()
		if err := publisher.Initialize(config.Telemetry.Broker, clientID, config.Telemetry.CACertificate); err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to telemetry broker")
		}
		sink = publisher
	}

	callbacks := services.Callbacks{
		OnViewportChange: func(directive viewport.Directive) {
			logger.Info().Interface("directive", directive).Msg("viewport updated")
		},
		OnStatusChange: func(status delivery.Status) {
			logger.Info().Str("status", string(status)).Msg("delivery status changed")
		},
		OnTrackingError: func(err error) {
			logger.Warn().Err(err).Msg("tracking error")
		},
	}

	registry := services.NewTrackerRegistry(logger)

	tracker := services.NewTrackingService(*deliveryID, config.Tracking.PollInterval,
		apiClient, acquirer, geocoder, sink, callbacks, logger)

	openCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := tracker.Open(openCtx); err != nil {
		cancel()
		logger.Fatal().Err(err).Msg("Failed to open tracking session")
	}
	cancel()

	if err := registry.Add(tracker); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register tracking session")
	}
	if err := tracker.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start tracking service")
	}
	logger.Info().Str("delivery_id", *deliveryID).Msg("Tracking started")

	// Resolve an initial fix so the map has a courier position before the
	// first continuous emission.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		reading, err := acquirer.RequestOneShot(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("Initial position fix failed")
			return
		}
		logger.Info().
			Float64("lat", reading.Point.Lat).
			Float64("lng", reading.Point.Lng).
			Str("tier", string(reading.Tier)).
			Msg("Initial position fix")
	}()

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	registry.CloseAll()
	if err := acquirer.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close location providers")
	}
	if publisher != nil {
		publisher.Disconnect(250)
	}
}
