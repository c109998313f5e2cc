package telemetry

// Event is one decoded record: RotationVector, SlotUpdate or RocketFrame.
type Event interface {
	isEvent()
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// RocketFrame is one full rocket-side reading from the comma-list grammar.
//
// Position 5 of the record is stored as PayloadGPSAltitude. Some ground
// software reuses that column for the rocket GPS altitude; it is kept as
// received here.
type RocketFrame struct {
	Counter uint16 `json:"counter"`

	Altitude    float64 `json:"altitude_m"`
	GPSAltitude float64 `json:"gps_altitude_m"`
	Latitude    float64 `json:"lat_deg"`
	Longitude   float64 `json:"lon_deg"`

	PayloadGPSAltitude float64 `json:"payload_gps_altitude_m"`
	PayloadLatitude    float64 `json:"payload_lat_deg"`
	PayloadLongitude   float64 `json:"payload_lon_deg"`

	Gyro  Vec3    `json:"gyro"`
	Accel Vec3    `json:"accel"`
	Angle float64 `json:"angle_deg"`

	Status uint8 `json:"status"`

	TeamID       *uint8   `json:"team_id,omitempty"`
	CRC          *uint8   `json:"crc,omitempty"`
	PressureRate *float64 `json:"pressure_rate_hpa_s,omitempty"`
}

// WithPressureRate returns a copy of f carrying rate.
func (f RocketFrame) WithPressureRate(rate float64) RocketFrame {
	f.PressureRate = &rate
	return f
}

// PayloadFrame is the payload sub-vehicle reading.
type PayloadFrame struct {
	Altitude    float64 `json:"altitude_m"`
	GPSAltitude float64 `json:"gps_altitude_m"`
	Latitude    float64 `json:"lat_deg"`
	Longitude   float64 `json:"lon_deg"`
	Temperature float64 `json:"temperature_c"`
	Humidity    float64 `json:"humidity_pct"`
	Pressure    float64 `json:"pressure_hpa"`
	Speed       float64 `json:"speed_mps"`
}

// RotationVector is the latest attitude sample, in degrees.
type RotationVector struct {
	Yaw   float64 `json:"yaw_deg"`
	Pitch float64 `json:"pitch_deg"`
	Roll  float64 `json:"roll_deg"`
}

// SlotUpdate is a single named field update from the key:value grammar.
type SlotUpdate struct {
	Slot  Slot
	Value float64
}

func (RocketFrame) isEvent()    {}
func (RotationVector) isEvent() {}
func (SlotUpdate) isEvent()     {}

// Slot names one of the eleven key:value telemetry fields.
type Slot int

const (
	SlotRocketAltitude Slot = iota
	SlotPayloadAltitude
	SlotRocketAccelZ
	SlotPayloadAccelZ
	SlotRocketSpeed
	SlotPayloadSpeed
	SlotRocketTemperature
	SlotPayloadTemperature
	SlotRocketPressure
	SlotPayloadPressure
	SlotPayloadHumidity

	slotCount
)

var slotKeys = [slotCount]string{
	SlotRocketAltitude:     "rocketAltitude",
	SlotPayloadAltitude:    "payloadAltitude",
	SlotRocketAccelZ:       "rocketAccelZ",
	SlotPayloadAccelZ:      "payloadAccelZ",
	SlotRocketSpeed:        "rocketSpeed",
	SlotPayloadSpeed:       "payloadSpeed",
	SlotRocketTemperature:  "rocketTemperature",
	SlotPayloadTemperature: "payloadTemperature",
	SlotRocketPressure:     "rocketPressure",
	SlotPayloadPressure:    "payloadPressure",
	SlotPayloadHumidity:    "payloadHumidity",
}

var slotByKey = func() map[string]Slot {
	m := make(map[string]Slot, slotCount)
	for i, k := range slotKeys {
		m[k] = Slot(i)
	}
	return m
}()

// LookupSlot matches key exactly (case-sensitive).
func LookupSlot(key string) (Slot, bool) {
	s, ok := slotByKey[key]
	return s, ok
}

func (s Slot) String() string {
	if s < 0 || s >= slotCount {
		return "unknown"
	}
	return slotKeys[s]
}

// Payload reports whether the slot belongs to the payload sub-vehicle.
func (s Slot) Payload() bool {
	switch s {
	case SlotPayloadAltitude, SlotPayloadAccelZ, SlotPayloadSpeed,
		SlotPayloadTemperature, SlotPayloadPressure, SlotPayloadHumidity:
		return true
	}
	return false
}

func (s Slot) isAltitude() bool {
	return s == SlotRocketAltitude || s == SlotPayloadAltitude
}

func (s Slot) isTemperature() bool {
	return s == SlotRocketTemperature || s == SlotPayloadTemperature
}
