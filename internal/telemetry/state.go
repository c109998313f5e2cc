package telemetry

import (
	"log"
	"sync"
	"time"
)

// Limits is the plausibility window for altitude and temperature slot values.
// Bounds are inclusive.
type Limits struct {
	AltitudeMinM    float64
	AltitudeMaxM    float64
	TemperatureMinC float64
	TemperatureMaxC float64
}

func DefaultLimits() Limits {
	return Limits{
		AltitudeMinM:    -1000,
		AltitudeMaxM:    50000,
		TemperatureMinC: -50,
		TemperatureMaxC: 85,
	}
}

// Accept reports whether v is plausible for slot. Slots other than altitude
// and temperature are not range checked.
func (l Limits) Accept(slot Slot, v float64) bool {
	switch {
	case slot.isAltitude():
		return v >= l.AltitudeMinM && v <= l.AltitudeMaxM
	case slot.isTemperature():
		return v >= l.TemperatureMinC && v <= l.TemperatureMaxC
	}
	return true
}

// SlotSnapshot is the latest accepted value per key:value slot.
type SlotSnapshot struct {
	Values   map[string]float64 `json:"values"`
	Rejected uint64             `json:"rejected"`

	PressureRateHPaS *float64 `json:"pressure_rate_hpa_s,omitempty"`
}

// State holds the latest accepted slot values.
type State struct {
	limits Limits

	mu       sync.RWMutex
	values   [slotCount]float64
	have     [slotCount]bool
	rejected uint64

	// Payload GPS fields only arrive in rocket comma frames.
	payloadGPSAlt float64
	payloadLat    float64
	payloadLon    float64

	pressureAt   time.Time
	pressureRate float64
	haveRate     bool
}

func NewState(limits Limits) *State {
	return &State{limits: limits}
}

// Apply stores u if it passes the plausibility window. Rejected values leave
// the previous value in place.
func (s *State) Apply(now time.Time, u SlotUpdate) bool {
	if u.Slot < 0 || u.Slot >= slotCount {
		return false
	}
	if !s.limits.Accept(u.Slot, u.Value) {
		s.mu.Lock()
		s.rejected++
		s.mu.Unlock()
		log.Printf("telemetry reject slot=%s value=%g (out of range)", u.Slot, u.Value)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Slot == SlotRocketPressure {
		s.updatePressureRateLocked(now, u.Value)
	}
	s.values[u.Slot] = u.Value
	s.have[u.Slot] = true
	return true
}

func (s *State) updatePressureRateLocked(now time.Time, p float64) {
	if s.have[SlotRocketPressure] && !s.pressureAt.IsZero() {
		dt := now.Sub(s.pressureAt).Seconds()
		if dt > 0 {
			s.pressureRate = (p - s.values[SlotRocketPressure]) / dt
			s.haveRate = true
		}
	}
	s.pressureAt = now
}

// ObserveRocket records the payload GPS columns carried by a rocket frame.
func (s *State) ObserveRocket(f RocketFrame) {
	s.mu.Lock()
	s.payloadGPSAlt = f.PayloadGPSAltitude
	s.payloadLat = f.PayloadLatitude
	s.payloadLon = f.PayloadLongitude
	s.mu.Unlock()
}

// Value returns the latest accepted value for slot.
func (s *State) Value(slot Slot) (float64, bool) {
	if slot < 0 || slot >= slotCount {
		return 0, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[slot], s.have[slot]
}

// PressureRate is the rocket pressure derivative in hPa/s, known after two
// accepted rocketPressure updates.
func (s *State) PressureRate() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pressureRate, s.haveRate
}

// Payload builds a payload frame from the current slots.
func (s *State) Payload() PayloadFrame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return PayloadFrame{
		Altitude:    s.values[SlotPayloadAltitude],
		GPSAltitude: s.payloadGPSAlt,
		Latitude:    s.payloadLat,
		Longitude:   s.payloadLon,
		Temperature: s.values[SlotPayloadTemperature],
		Humidity:    s.values[SlotPayloadHumidity],
		Pressure:    s.values[SlotPayloadPressure],
		Speed:       s.values[SlotPayloadSpeed],
	}
}

func (s *State) Snapshot() SlotSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := SlotSnapshot{Values: make(map[string]float64, slotCount), Rejected: s.rejected}
	for i := Slot(0); i < slotCount; i++ {
		if s.have[i] {
			out.Values[i.String()] = s.values[i]
		}
	}
	if s.haveRate {
		v := s.pressureRate
		out.PressureRateHPaS = &v
	}
	return out
}
