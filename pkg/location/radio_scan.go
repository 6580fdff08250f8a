package location

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"

	"googlemaps.github.io/maps"
)

// getWiFiAccessPoints lists nearby WiFi access points via an nmcli scan.
// Couriers move through dense urban areas where WiFi positioning beats
// cell-only positioning by an order of magnitude.
func getWiFiAccessPoints(ctx context.Context) ([]maps.WiFiAccessPoint, error) {
	if _, err := exec.LookPath("nmcli"); err != nil {
		return nil, fmt.Errorf("nmcli not found: %w", err)
	}

	out, err := exec.CommandContext(ctx, "nmcli", "-t", "-f", "BSSID,SIGNAL", "dev", "wifi", "list").Output()
	if err != nil {
		return nil, fmt.Errorf("nmcli scan failed: %w", err)
	}
	return parseWiFiScan(out), nil
}

// parseWiFiScan reads nmcli terse output. In terse mode nmcli escapes the
// colons inside the BSSID, so the signal column is everything after the last
// unescaped colon.
func parseWiFiScan(out []byte) []maps.WiFiAccessPoint {
	var aps []maps.WiFiAccessPoint
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		sep := strings.LastIndex(line, ":")
		if sep < 0 {
			continue
		}
		bssid := strings.ReplaceAll(strings.TrimSpace(line[:sep]), `\:`, ":")
		if _, err := net.ParseMAC(bssid); err != nil {
			continue
		}
		signal, err := strconv.Atoi(strings.TrimSpace(line[sep+1:]))
		if err != nil {
			continue
		}
		aps = append(aps, maps.WiFiAccessPoint{
			MACAddress:     bssid,
			SignalStrength: float64(signal),
		})
	}
	return aps
}

// getCellTowers reads the serving cell of the given modem via mmcli.
func getCellTowers(ctx context.Context, modemIndex int) ([]maps.CellTower, error) {
	if _, err := exec.LookPath("mmcli"); err != nil {
		return nil, fmt.Errorf("mmcli not found: %w", err)
	}

	out, err := exec.CommandContext(ctx, "mmcli", "-m", strconv.Itoa(modemIndex), "--output-keyvalue").Output()
	if err != nil {
		return nil, fmt.Errorf("mmcli query for modem %d failed: %w", modemIndex, err)
	}

	tower, err := parseModemInfo(out)
	if err != nil {
		return nil, err
	}
	return []maps.CellTower{tower}, nil
}

// parseModemInfo extracts the serving cell from mmcli key-value output. MCC
// and MNC are decimal; LAC and cell ID are reported in hex.
func parseModemInfo(out []byte) (maps.CellTower, error) {
	var tower maps.CellTower
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.TrimSpace(key) {
		case "modem.3gpp.mcc":
			if mcc, err := strconv.Atoi(value); err == nil {
				tower.MobileCountryCode = mcc
			}
		case "modem.3gpp.mnc":
			if mnc, err := strconv.Atoi(value); err == nil {
				tower.MobileNetworkCode = mnc
			}
		case "modem.3gpp.lac":
			if lac, err := strconv.ParseInt(value, 16, 32); err == nil {
				tower.LocationAreaCode = int(lac)
			}
		case "modem.3gpp.cid":
			if cid, err := strconv.ParseInt(value, 16, 32); err == nil {
				tower.CellID = int(cid)
			}
		}
	}

	if tower.MobileCountryCode == 0 || tower.MobileNetworkCode == 0 {
		return maps.CellTower{}, errors.New("modem did not report a serving cell")
	}
	return tower, nil
}
