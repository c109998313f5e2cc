package telemetry

import (
	"testing"
)

func TestDecode_RocketFrame(t *testing.T) {
	d := NewDecoder(DecoderConfig{})
	ev := d.Decode("5,120.5,118.2,39.1,32.2,50.0,39.2,32.3,1,2,3,4,5,6,7,1")
	f, ok := ev.(RocketFrame)
	if !ok {
		t.Fatalf("event=%T want RocketFrame", ev)
	}
	if f.Counter != 5 {
		t.Fatalf("counter=%d want 5", f.Counter)
	}
	if f.Altitude != 120.5 {
		t.Fatalf("altitude=%v want 120.5", f.Altitude)
	}
	if f.GPSAltitude != 118.2 || f.Latitude != 39.1 || f.Longitude != 32.2 {
		t.Fatalf("gps=%v/%v/%v", f.GPSAltitude, f.Latitude, f.Longitude)
	}
	if f.PayloadGPSAltitude != 50.0 || f.PayloadLatitude != 39.2 || f.PayloadLongitude != 32.3 {
		t.Fatalf("payload gps=%v/%v/%v", f.PayloadGPSAltitude, f.PayloadLatitude, f.PayloadLongitude)
	}
	if f.Gyro != (Vec3{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("gyro=%+v want (1,2,3)", f.Gyro)
	}
	if f.Accel != (Vec3{X: 4, Y: 5, Z: 6}) {
		t.Fatalf("accel=%+v want (4,5,6)", f.Accel)
	}
	if f.Angle != 7 {
		t.Fatalf("angle=%v want 7", f.Angle)
	}
	if f.Status != 1 {
		t.Fatalf("status=%d want 1", f.Status)
	}
	if f.TeamID != nil || f.PressureRate != nil {
		t.Fatalf("expected no optional metadata")
	}
	if got := d.Stats().Frames; got != 1 {
		t.Fatalf("frames=%d want 1", got)
	}
}

func TestDecode_RocketFrameFieldFallback(t *testing.T) {
	d := NewDecoder(DecoderConfig{})
	ev := d.Decode("x,abc,,1.5,,,,,,,,,,,,nope,extra,fields")
	f, ok := ev.(RocketFrame)
	if !ok {
		t.Fatalf("event=%T want RocketFrame", ev)
	}
	if f.Counter != 0 || f.Altitude != 0 || f.Status != 0 {
		t.Fatalf("expected zero defaults, got %+v", f)
	}
	if f.Latitude != 1.5 {
		t.Fatalf("lat=%v want 1.5", f.Latitude)
	}
}

func TestDecode_RocketFrameCounterWraps(t *testing.T) {
	d := NewDecoder(DecoderConfig{})
	f := d.Decode("65537,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0").(RocketFrame)
	if f.Counter != 1 {
		t.Fatalf("counter=%d want 1", f.Counter)
	}
}

func TestDecode_RocketFrameStampsTeamID(t *testing.T) {
	id := uint8(0x54)
	d := NewDecoder(DecoderConfig{TeamID: &id})
	f := d.Decode("1,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0").(RocketFrame)
	if f.TeamID == nil || *f.TeamID != 0x54 {
		t.Fatalf("team id=%v want 0x54", f.TeamID)
	}
	id = 0x01
	if *f.TeamID != 0x54 {
		t.Fatalf("frame team id must not alias config")
	}
}

func TestDecode_RocketFrameTooShort(t *testing.T) {
	d := NewDecoder(DecoderConfig{})
	if ev := d.Decode("1,2,3,4,5,6,7,8,9,10,11,12,13,14,15"); ev != nil {
		t.Fatalf("event=%+v want nil", ev)
	}
	if got := d.Stats().Dropped; got != 1 {
		t.Fatalf("dropped=%d want 1", got)
	}
}

func TestDecode_Rotation(t *testing.T) {
	d := NewDecoder(DecoderConfig{})
	ev := d.Decode("YPR,10,20,30")
	rv, ok := ev.(RotationVector)
	if !ok {
		t.Fatalf("event=%T want RotationVector", ev)
	}
	if rv != (RotationVector{Yaw: 10, Pitch: 20, Roll: 30}) {
		t.Fatalf("rotation=%+v want (10,20,30)", rv)
	}
}

func TestDecode_RotationRejects(t *testing.T) {
	cases := []string{
		"YPR,10,20",
		"YPR,10,20,30,40",
		"YPR,10,x,30",
		"YPR,",
		"YPR,10,20,NaN",
		"YPR,0x1p3,20,30",
	}
	d := NewDecoder(DecoderConfig{})
	for _, rec := range cases {
		if ev := d.Decode(rec); ev != nil {
			t.Fatalf("record %q: event=%+v want nil", rec, ev)
		}
	}
	if got := d.Stats().Dropped; got != uint64(len(cases)) {
		t.Fatalf("dropped=%d want %d", got, len(cases))
	}
}

func TestDecode_Slot(t *testing.T) {
	d := NewDecoder(DecoderConfig{})
	ev := d.Decode("rocketAltitude:305.25")
	u, ok := ev.(SlotUpdate)
	if !ok {
		t.Fatalf("event=%T want SlotUpdate", ev)
	}
	if u.Slot != SlotRocketAltitude || u.Value != 305.25 {
		t.Fatalf("update=%+v", u)
	}
}

func TestDecode_SlotAllKeys(t *testing.T) {
	keys := []string{
		"rocketAltitude", "payloadAltitude", "rocketAccelZ", "payloadAccelZ",
		"rocketSpeed", "payloadSpeed", "rocketTemperature", "payloadTemperature",
		"rocketPressure", "payloadPressure", "payloadHumidity",
	}
	d := NewDecoder(DecoderConfig{})
	seen := map[Slot]bool{}
	for _, k := range keys {
		u, ok := d.Decode(k + ":1.0").(SlotUpdate)
		if !ok {
			t.Fatalf("key %q not routed", k)
		}
		if u.Slot.String() != k {
			t.Fatalf("slot=%s want %s", u.Slot, k)
		}
		seen[u.Slot] = true
	}
	if len(seen) != 11 {
		t.Fatalf("distinct slots=%d want 11", len(seen))
	}
}

func TestDecode_SlotRejects(t *testing.T) {
	cases := []string{
		"foo:1.0",
		"RocketAltitude:1.0",
		"rocketAltitude:abc",
		"rocketAltitude:1,5",
		"rocketAltitude:",
		"rocketAltitude :1.0",
		"rocketAltitude:0x1p3",
		"rocketAltitude:1_000",
		"rocketAltitude:Inf",
	}
	d := NewDecoder(DecoderConfig{})
	for _, rec := range cases {
		if ev := d.Decode(rec); ev != nil {
			t.Fatalf("record %q: event=%+v want nil", rec, ev)
		}
	}
}

func TestDecode_SlotSplitsOnFirstColon(t *testing.T) {
	d := NewDecoder(DecoderConfig{})
	if ev := d.Decode("rocketAltitude:1:2"); ev != nil {
		t.Fatalf("event=%+v want nil", ev)
	}
}

func TestDecode_Empty(t *testing.T) {
	d := NewDecoder(DecoderConfig{})
	if ev := d.Decode("   "); ev != nil {
		t.Fatalf("event=%+v want nil", ev)
	}
}

func TestParseFloat_DecimalOnly(t *testing.T) {
	good := map[string]float64{"1.5": 1.5, " -2 ": -2, "+3e2": 300, ".25": 0.25}
	for in, want := range good {
		v, err := parseFloat(in)
		if err != nil || v != want {
			t.Fatalf("parseFloat(%q)=%v,%v want %v", in, v, err, want)
		}
	}
	for _, in := range []string{"0x1p3", "0X10", "0x_1p0", "1_0", "inf", "NaN", "1,5", ""} {
		if _, err := parseFloat(in); err == nil {
			t.Fatalf("parseFloat(%q) accepted", in)
		}
	}
}

func TestDecode_RocketFrameHexFieldDefaults(t *testing.T) {
	d := NewDecoder(DecoderConfig{})
	f := d.Decode("5,0x1p3,118.2,0,0,0,0,0,0,0,0,0,0,0,0,1").(RocketFrame)
	if f.Altitude != 0 || f.GPSAltitude != 118.2 {
		t.Fatalf("altitude=%v gps=%v want 0 and 118.2", f.Altitude, f.GPSAltitude)
	}
}
