package persist

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gopper/protocol"
)

func sampleConfig() *Config {
	return &Config{
		AxisStepsPerMM:  [NAxes]float64{80, 80, 400, 100},
		MaxFeedrate:     [NAxes]float64{300, 300, 5, 25},
		MaxAcceleration: [NAxes]float64{1500, 1500,100, 10000},

		Acceleration:        1000,
		RetractAcceleration: 1500,
		TravelAcceleration:  1500,

		MinFeedrate:       0.05,
		MinTravelFeedrate: 0.05,
		MinSegmentTime:    0.02,

		MaxJerk: [NAxes]float64{10, 10, 0.4, 5},

		HomeOffset: [3]float64{0, 0, 0},

		HotendPID: [3]float64{22.2, 1.08, 114},
		BedPID:    [3]float64{10.0, 0.1, 300},

		MinExtrudeTempC: 170,

		Preheat: [NumPreheatPresets]PreheatPreset{
			{HotendC: 180, BedC: 60},
			{HotendC: 200, BedC: 60},
			{HotendC: 240, BedC: 100},
		},

		FanSpeed: [NumFans]uint8{255, 0},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := sampleConfig()
	blob := c.Save()

	loaded, err := Load(blob)
	require.NoError(t, err)
	require.Equal(t, c, loaded)
}

func TestLoadRejectsTruncatedImage(t *testing.T) {
	c := sampleConfig()
	blob := c.Save()

	_, err := Load(blob[:len(blob)-10])
	require.ErrorIs(t, err, ErrCRCMismatch)

	_, err = Load(blob[:1])
	require.ErrorIs(t, err, ErrTruncated)
}

func TestLoadRejectsCorruptedPayload(t *testing.T) {
	c := sampleConfig()
	blob := c.Save()
	blob[2] ^= 0xFF // flip a byte inside the payload, leaving the CRC stale

	_, err := Load(blob)
	require.ErrorIs(t, err, ErrCRCMismatch)
}

func TestLoadRejectsWrongVersion(t *testing.T) {
	c := sampleConfig()
	blob := c.Save()
	// Version is the first two little-endian bytes of the payload; the
	// trailer must be recomputed after tampering with it.
	blob[0], blob[1] = 0xFF, 0xFF
	crc := protocol.CRC16(blob[:len(blob)-2])
	blob[len(blob)-2] = byte(crc)
	blob[len(blob)-1] = byte(crc >> 8)

	_, err := Load(blob)
	require.Error(t, err)
}
