package location

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"

	"github.com/menukit/delivery-tracker/pkg/geo"
)

// GPSSensorProvider reads position fixes from a GPS receiver on a serial
// port. This is the high-accuracy tier.
type GPSSensorProvider struct {
	port     string
	baudRate int
}

// NewGPSSensorProvider creates a provider for the GPS device on the given
// serial port.
func NewGPSSensorProvider(port string, baudRate int) *GPSSensorProvider {
	return &GPSSensorProvider{
		port:     port,
		baudRate: baudRate,
	}
}

// GetLocation reads NMEA sentences from the device until a GGA fix arrives or
// the context expires.
func (d *GPSSensorProvider) GetLocation(ctx context.Context) (Reading, error) {
	s, err := serial.OpenPort(&serial.Config{Name: d.port, Baud: d.baudRate, ReadTimeout: time.Second})
	if err != nil {
		if os.IsPermission(err) {
			return Reading{}, fmt.Errorf("opening %s: %w", d.port, ErrPermissionDenied)
		}
		return Reading{}, fmt.Errorf("opening %s: %v: %w", d.port, err, ErrPositionUnavailable)
	}
	defer s.Close()

	type result struct {
		reading Reading
		err     error
	}
	done := make(chan result, 1)

	go func() {
		scanner := bufio.NewScanner(s)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := scanner.Text()
			if !strings.HasPrefix(line, "$GPGGA") {
				continue
			}
			sentence, err := nmea.Parse(line)
			if err != nil {
				continue
			}
			gga, ok := sentence.(nmea.GGA)
			if !ok {
				continue
			}
			if gga.FixQuality == nmea.Invalid {
				continue
			}
			done <- result{reading: Reading{
				Point:    geo.Point{Lat: gga.Latitude, Lng: gga.Longitude},
				Accuracy: float64(gga.HDOP), // HDOP as a proxy for accuracy
				Tier:     TierHigh,
			}}
			return
		}
		if err := scanner.Err(); err != nil {
			done <- result{err: fmt.Errorf("reading %s: %v: %w", d.port, err, ErrPositionUnavailable)}
			return
		}
		done <- result{err: fmt.Errorf("no valid GPS fix on %s: %w", d.port, ErrPositionUnavailable)}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return Reading{}, r.err
		}
		r.reading.CapturedAt = time.Now()
		return r.reading, nil
	case <-ctx.Done():
		return Reading{}, fmt.Errorf("waiting for GPS fix on %s: %w", d.port, ErrTimeout)
	}
}

// Close releases the provider. The serial port is opened per read, so there
// is nothing to tear down.
func (d *GPSSensorProvider) Close() error {
	return nil
}
