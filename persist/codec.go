package persist

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"gopper/protocol"
)

// Version is the persisted-image format tag. Bump it whenever Config's
// field order or types change; Load refuses to decode a mismatched
// version rather than guess at a layout.
const Version uint16 = 1

// ErrTruncated is returned when data is too short to contain even the
// trailer.
var ErrTruncated = errors.New("persist: truncated image")

// ErrCRCMismatch is returned when the trailing CRC16 does not match the
// payload - a torn write or corrupted storage medium.
var ErrCRCMismatch = errors.New("persist: CRC16 mismatch")

// Save packs c little-endian in the field order spec 6 lists, prefixed
// with the version tag and suffixed with a CRC16 of everything before it.
func (c *Config) Save() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, Version)
	_ = binary.Write(buf, binary.LittleEndian, c.AxisStepsPerMM)
	_ = binary.Write(buf, binary.LittleEndian, c.MaxFeedrate)
	_ = binary.Write(buf, binary.LittleEndian, c.MaxAcceleration)
	_ = binary.Write(buf, binary.LittleEndian, c.Acceleration)
	_ = binary.Write(buf, binary.LittleEndian, c.RetractAcceleration)
	_ = binary.Write(buf, binary.LittleEndian, c.TravelAcceleration)
	_ = binary.Write(buf, binary.LittleEndian, c.MinFeedrate)
	_ = binary.Write(buf, binary.LittleEndian, c.MinTravelFeedrate)
	_ = binary.Write(buf, binary.LittleEndian, c.MinSegmentTime)
	_ = binary.Write(buf, binary.LittleEndian, c.MaxJerk)
	_ = binary.Write(buf, binary.LittleEndian, c.HomeOffset)
	_ = binary.Write(buf, binary.LittleEndian, c.HotendPID)
	_ = binary.Write(buf, binary.LittleEndian, c.BedPID)
	_ = binary.Write(buf, binary.LittleEndian, c.MinExtrudeTempC)
	_ = binary.Write(buf, binary.LittleEndian, c.Preheat)
	_ = binary.Write(buf, binary.LittleEndian, c.FanSpeed)

	payload := buf.Bytes()
	crc := protocol.CRC16(payload)

	out := make([]byte, len(payload)+2)
	copy(out, payload)
	binary.LittleEndian.PutUint16(out[len(payload):], crc)
	return out
}

// Load unpacks and validates a previously Saved image.
func Load(data []byte) (*Config, error) {
	if len(data) < 2 {
		return nil, ErrTruncated
	}
	payload := data[:len(data)-2]
	wantCRC := binary.LittleEndian.Uint16(data[len(data)-2:])
	if protocol.CRC16(payload) != wantCRC {
		return nil, ErrCRCMismatch
	}

	r := bytes.NewReader(payload)
	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != Version {
		return nil, fmt.Errorf("persist: unsupported version %d", version)
	}

	var c Config
	fields := []any{
		&c.AxisStepsPerMM, &c.MaxFeedrate, &c.MaxAcceleration,
		&c.Acceleration, &c.RetractAcceleration, &c.TravelAcceleration,
		&c.MinFeedrate, &c.MinTravelFeedrate, &c.MinSegmentTime,
		&c.MaxJerk, &c.HomeOffset, &c.HotendPID, &c.BedPID,
		&c.MinExtrudeTempC, &c.Preheat, &c.FanSpeed,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}
	return &c, nil
}
