package location

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWiFiScan(t *testing.T) {
	out := []byte("AA\\:14\\:22\\:01\\:23\\:45:82\n" +
		"not-a-mac:55\n" +
		"DE\\:AD\\:BE\\:EF\\:00\\:01:garbage\n" +
		"DE\\:AD\\:BE\\:EF\\:00\\:02:41\n")

	aps := parseWiFiScan(out)
	require.Len(t, aps, 2)
	assert.Equal(t, "AA:14:22:01:23:45", aps[0].MACAddress)
	assert.Equal(t, 82.0, aps[0].SignalStrength)
	assert.Equal(t, "DE:AD:BE:EF:00:02", aps[1].MACAddress)
}

func TestParseWiFiScan_EmptyOutput(t *testing.T) {
	assert.Empty(t, parseWiFiScan(nil))
}

func TestParseModemInfo(t *testing.T) {
	out := []byte("modem.generic.model: Fake Modem\n" +
		"modem.3gpp.mcc: 724\n" +
		"modem.3gpp.mnc: 10\n" +
		"modem.3gpp.lac: 1A2B\n" +
		"modem.3gpp.cid: 00FF\n")

	tower, err := parseModemInfo(out)
	require.NoError(t, err)
	assert.Equal(t, 724, tower.MobileCountryCode)
	assert.Equal(t, 10, tower.MobileNetworkCode)
	assert.Equal(t, 0x1A2B, tower.LocationAreaCode)
	assert.Equal(t, 0xFF, tower.CellID)
}

func TestParseModemInfo_NoServingCell(t *testing.T) {
	_, err := parseModemInfo([]byte("modem.generic.model: Fake Modem\n"))
	assert.Error(t, err)
}
