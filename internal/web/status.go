package web

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"rocketlink/internal/engine"
	"rocketlink/internal/hub"
	"rocketlink/internal/link"
	"rocketlink/internal/statusled"
	"rocketlink/internal/telemetry"
	"rocketlink/internal/udp"
)

const (
	subscriberID = "web"

	rawTailMax = 64
	rateWindow = 5 * time.Second
)

// Sources are the live components the status API reads from. Any may be nil.
type Sources struct {
	Hub      *hub.Hub
	Links    *link.Coordinator
	Pipeline *engine.Pipeline
	Mirror   *udp.Broadcaster
	LED      *statusled.LED
}

// RawEntry is one inbound chunk as seen on the raw channel.
type RawEntry struct {
	ReceivedUTC string `json:"received_utc"`
	Text        string `json:"text"`
}

type Status struct {
	startUnixNano int64
	src           Sources
	now           func() time.Time

	attached atomic.Bool

	mu        sync.Mutex
	raw       []RawEntry
	rawTotal  uint64
	frameTime []time.Time
}

func NewStatus(src Sources) *Status {
	s := &Status{src: src, now: time.Now}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	return s
}

// Attach subscribes the status to the raw and rocket channels so the API can
// serve a raw tail and a live frame rate. It is a no-op without a hub.
func (s *Status) Attach() error {
	if s == nil || s.src.Hub == nil || s.attached.Load() {
		return nil
	}
	if err := s.src.Hub.Raw.Subscribe(subscriberID, s.onRaw); err != nil {
		return fmt.Errorf("web: subscribe raw: %w", err)
	}
	if err := s.src.Hub.Rocket.Subscribe(subscriberID, s.onFrame); err != nil {
		s.src.Hub.UnsubscribeAll(subscriberID)
		return fmt.Errorf("web: subscribe rocket: %w", err)
	}
	s.attached.Store(true)
	return nil
}

// Detach removes the status subscriptions.
func (s *Status) Detach() {
	if s == nil || s.src.Hub == nil {
		return
	}
	s.src.Hub.UnsubscribeAll(subscriberID)
	s.attached.Store(false)
}

func (s *Status) onRaw(r hub.RawText) error {
	at := r.ReceivedAt
	if at.IsZero() {
		at = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawTotal++
	s.raw = append(s.raw, RawEntry{ReceivedUTC: at.UTC().Format(time.RFC3339Nano), Text: r.Text})
	if len(s.raw) > rawTailMax {
		s.raw = s.raw[len(s.raw)-rawTailMax:]
	}
	return nil
}

func (s *Status) onFrame(telemetry.RocketFrame) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameTime = append(s.frameTime, now)
	s.pruneLocked(now)
	return nil
}

func (s *Status) pruneLocked(now time.Time) {
	cut := 0
	for cut < len(s.frameTime) && now.Sub(s.frameTime[cut]) > rateWindow {
		cut++
	}
	if cut > 0 {
		s.frameTime = append(s.frameTime[:0], s.frameTime[cut:]...)
	}
}

// RawTail returns up to n of the most recent raw chunks, oldest first.
func (s *Status) RawTail(n int) (entries []RawEntry, total uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.raw) {
		n = len(s.raw)
	}
	return append([]RawEntry(nil), s.raw[len(s.raw)-n:]...), s.rawTotal
}

func (s *Status) frameRate(now time.Time) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	return float64(len(s.frameTime)) / rateWindow.Seconds()
}

type MirrorSnapshot struct {
	Dest string `json:"dest"`
	Sent uint64 `json:"sent"`
}

type LEDSnapshot struct {
	Toggles uint64 `json:"toggles"`
}

type StatusSnapshot struct {
	Service     string  `json:"service"`
	NowUTC      string  `json:"now_utc"`
	UptimeSec   int64   `json:"uptime_sec"`
	FrameRateHz float64 `json:"frame_rate_hz"`

	Input   *link.Snapshot          `json:"input,omitempty"`
	Output  *link.Snapshot          `json:"output,omitempty"`
	Engine  *engine.Stats           `json:"engine,omitempty"`
	Decoder *telemetry.DecoderStats `json:"decoder,omitempty"`
	Slots   *telemetry.SlotSnapshot `json:"slots,omitempty"`
	Hub     *hub.Stats              `json:"hub,omitempty"`
	Mirror  *MirrorSnapshot         `json:"mirror,omitempty"`
	LED     *LEDSnapshot            `json:"status_led,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "rocketlink",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
	}
	if s.attached.Load() {
		snap.FrameRateHz = s.frameRate(s.now())
	}
	if c := s.src.Links; c != nil {
		in := c.Input().Snapshot()
		out := c.Output().Snapshot()
		snap.Input = &in
		snap.Output = &out
	}
	if p := s.src.Pipeline; p != nil {
		st := p.Stats()
		ds := p.Decoder().Stats()
		slots := p.State().Snapshot()
		snap.Engine = &st
		snap.Decoder = &ds
		snap.Slots = &slots
	}
	if h := s.src.Hub; h != nil {
		hs := h.Stats()
		snap.Hub = &hs
	}
	if m := s.src.Mirror; m != nil {
		snap.Mirror = &MirrorSnapshot{Dest: m.Dest(), Sent: m.Sent()}
	}
	if l := s.src.LED; l != nil {
		snap.LED = &LEDSnapshot{Toggles: l.Toggles()}
	}
	return snap
}
