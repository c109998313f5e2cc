package telemetry

import (
	"log"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
)

const (
	rotationTag = "YPR,"

	// Minimum number of comma-separated fields in a full rocket record.
	rocketFieldCount = 16
)

// DecoderConfig controls optional decoder behavior.
type DecoderConfig struct {
	// TeamID, when set, is stamped into every RocketFrame.
	TeamID *uint8

	// Debug enables a log line for every dropped record.
	Debug bool
}

// DecoderStats counts decode outcomes since construction.
type DecoderStats struct {
	Rotations uint64 `json:"rotations"`
	Slots     uint64 `json:"slots"`
	Frames    uint64 `json:"frames"`
	Dropped   uint64 `json:"dropped"`
}

// Decoder classifies one complete record and parses it into an Event.
//
// Decode never fails: malformed input is dropped or defaulted. It is safe for
// concurrent use.
type Decoder struct {
	cfg DecoderConfig

	rotations atomic.Uint64
	slots     atomic.Uint64
	frames    atomic.Uint64
	dropped   atomic.Uint64
}

func NewDecoder(cfg DecoderConfig) *Decoder {
	return &Decoder{cfg: cfg}
}

// Decode returns nil when the record yields no event.
//
// Grammars are tried in order: rotation tag, key:value, fixed comma list.
func (d *Decoder) Decode(record string) Event {
	record = strings.TrimSpace(record)
	if record == "" {
		return nil
	}
	if strings.HasPrefix(record, rotationTag) {
		return d.decodeRotation(record)
	}
	if strings.Contains(record, ":") {
		return d.decodeSlot(record)
	}
	return d.decodeRocket(record)
}

func (d *Decoder) Stats() DecoderStats {
	return DecoderStats{
		Rotations: d.rotations.Load(),
		Slots:     d.slots.Load(),
		Frames:    d.frames.Load(),
		Dropped:   d.dropped.Load(),
	}
}

func (d *Decoder) decodeRotation(record string) Event {
	parts := strings.Split(record[len(rotationTag):], ",")
	if len(parts) != 3 {
		d.drop("rotation: want 3 fields, got %d record=%q", len(parts), record)
		return nil
	}
	var v [3]float64
	for i, p := range parts {
		f, err := parseFloat(p)
		if err != nil {
			d.drop("rotation: field %d: %v record=%q", i, err, record)
			return nil
		}
		v[i] = f
	}
	d.rotations.Add(1)
	return RotationVector{Yaw: v[0], Pitch: v[1], Roll: v[2]}
}

func (d *Decoder) decodeSlot(record string) Event {
	key, raw, _ := strings.Cut(record, ":")
	val, err := parseFloat(raw)
	if err != nil {
		d.drop("slot: key=%s bad value %q: %v", key, raw, err)
		return nil
	}
	slot, ok := LookupSlot(key)
	if !ok {
		d.drop("slot: unknown key %q", key)
		return nil
	}
	d.slots.Add(1)
	return SlotUpdate{Slot: slot, Value: val}
}

func (d *Decoder) decodeRocket(record string) Event {
	f := strings.Split(record, ",")
	if len(f) < rocketFieldCount {
		d.drop("frame: want %d fields, got %d", rocketFieldCount, len(f))
		return nil
	}

	num := func(i int) float64 {
		v, err := parseFloat(f[i])
		if err != nil {
			return 0
		}
		return v
	}

	out := RocketFrame{
		Counter:            uint16(int64(num(0))),
		Altitude:           num(1),
		GPSAltitude:        num(2),
		Latitude:           num(3),
		Longitude:          num(4),
		PayloadGPSAltitude: num(5),
		PayloadLatitude:    num(6),
		PayloadLongitude:   num(7),
		Gyro:               Vec3{X: num(8), Y: num(9), Z: num(10)},
		Accel:              Vec3{X: num(11), Y: num(12), Z: num(13)},
		Angle:              num(14),
		Status:             uint8(int64(num(15))),
	}
	if d.cfg.TeamID != nil {
		id := *d.cfg.TeamID
		out.TeamID = &id
	}
	d.frames.Add(1)
	return out
}

func (d *Decoder) drop(format string, args ...any) {
	d.dropped.Add(1)
	if d.cfg.Debug {
		log.Printf("telemetry drop "+format, args...)
	}
}

// parseFloat parses ASCII decimal-point numbers. strconv never consults the
// host locale, so "1,5" is rejected rather than read as 1.5. Hex, underscore
// and named forms that strconv also accepts are refused.
func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.IndexFunc(s, notDecimal) >= 0 {
		return 0, strconv.ErrSyntax
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrRange
	}
	return v, nil
}

func notDecimal(r rune) bool {
	return !strings.ContainsRune("0123456789+-.eE", r)
}
