package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"rocketlink/internal/telemetry"
)

const (
	// Size is the length of every outbound frame.
	Size = 78
	// PayloadSize is the upstream float block: 11 little-endian float32.
	PayloadSize = 44

	offTeamID   = 4
	offCounter  = 5
	offStatus   = 74
	offChecksum = 75
)

var (
	startMarker  = [2]byte{0xFF, 0xFF}
	headerMarker = [2]byte{0x54, 0x52}
	endMarker    = [2]byte{0x0D, 0x0A}
)

// ErrPayloadSize is returned when the upstream payload is not PayloadSize bytes.
var ErrPayloadSize = errors.New("packet: payload must be 44 bytes")

// fieldMap lists (source offset in payload, destination offset in frame).
// Frame bytes 22..45 are reserved and stay zero.
var fieldMap = [11][2]int{
	{0, 6},   // altitude
	{4, 10},  // gps altitude
	{8, 14},  // latitude
	{12, 18}, // longitude
	{16, 46}, // gyro x
	{20, 50}, // gyro y
	{24, 54}, // gyro z
	{28, 58}, // accel x
	{32, 62}, // accel y
	{36, 66}, // accel z
	{40, 70}, // angle
}

// Meta is the per-frame metadata written around the float block.
type Meta struct {
	TeamID  uint8
	Counter uint8
	Status  uint8
}

// Encode builds one outbound frame. The float block is copied byte for byte;
// it is never re-interpreted.
func Encode(payload []byte, meta Meta) ([]byte, error) {
	if len(payload) != PayloadSize {
		return nil, fmt.Errorf("%w (got %d)", ErrPayloadSize, len(payload))
	}

	out := make([]byte, Size)
	copy(out[0:2], startMarker[:])
	copy(out[2:4], headerMarker[:])
	out[offTeamID] = meta.TeamID
	out[offCounter] = meta.Counter
	for _, m := range fieldMap {
		copy(out[m[1]:m[1]+4], payload[m[0]:m[0]+4])
	}
	out[offStatus] = meta.Status
	out[offChecksum] = Checksum(out)
	copy(out[76:78], endMarker[:])
	return out, nil
}

// Checksum is the byte sum of frame[4:75] modulo 256.
func Checksum(frame []byte) byte {
	if len(frame) < offChecksum {
		return 0
	}
	var sum byte
	for _, b := range frame[offTeamID:offChecksum] {
		sum += b
	}
	return sum
}

// Payload packs the rocket frame fields into the upstream float block.
func Payload(f telemetry.RocketFrame) []byte {
	vals := [11]float64{
		f.Altitude, f.GPSAltitude, f.Latitude, f.Longitude,
		f.Gyro.X, f.Gyro.Y, f.Gyro.Z,
		f.Accel.X, f.Accel.Y, f.Accel.Z,
		f.Angle,
	}
	out := make([]byte, PayloadSize)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
	}
	return out
}

// Verify checks length, markers and checksum of an encoded frame.
func Verify(frame []byte) error {
	if len(frame) != Size {
		return fmt.Errorf("packet: frame length %d want %d", len(frame), Size)
	}
	if frame[0] != startMarker[0] || frame[1] != startMarker[1] {
		return fmt.Errorf("packet: bad start marker 0x%02x 0x%02x", frame[0], frame[1])
	}
	if frame[2] != headerMarker[0] || frame[3] != headerMarker[1] {
		return fmt.Errorf("packet: bad header 0x%02x 0x%02x", frame[2], frame[3])
	}
	if frame[76] != endMarker[0] || frame[77] != endMarker[1] {
		return fmt.Errorf("packet: bad end marker 0x%02x 0x%02x", frame[76], frame[77])
	}
	if got, want := frame[offChecksum], Checksum(frame); got != want {
		return fmt.Errorf("packet: checksum 0x%02x want 0x%02x", got, want)
	}
	return nil
}

// Fields is the decoded view of a frame, mainly for diagnostics.
type Fields struct {
	Meta
	Values [11]float32
}

func Decode(frame []byte) (Fields, error) {
	if err := Verify(frame); err != nil {
		return Fields{}, err
	}
	out := Fields{Meta: Meta{TeamID: frame[offTeamID], Counter: frame[offCounter], Status: frame[offStatus]}}
	for i, m := range fieldMap {
		out.Values[i] = math.Float32frombits(binary.LittleEndian.Uint32(frame[m[1]:]))
	}
	return out, nil
}
