package engine

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"rocketlink/internal/framer"
	"rocketlink/internal/hub"
	"rocketlink/internal/packet"
	"rocketlink/internal/telemetry"
)

// Sender writes one encoded packet. *link.Endpoint satisfies it.
type Sender interface {
	Write(p []byte) error
}

// Config wires a Pipeline.
type Config struct {
	Hub     *hub.Hub
	Decoder *telemetry.Decoder
	State   *telemetry.State

	// Out receives every encoded packet. Nil disables encoding.
	Out Sender

	TeamID uint8

	// MaxRecordBytes bounds framer carry-over; 0 uses the framer default.
	MaxRecordBytes int

	// Now is used for timestamps; defaults to time.Now.
	Now func() time.Time
}

// Stats is the diagnostic view of the pipeline.
type Stats struct {
	Chunks       uint64 `json:"chunks"`
	Records      uint64 `json:"records"`
	Frames       uint64 `json:"frames"`
	Rotations    uint64 `json:"rotations"`
	SlotUpdates  uint64 `json:"slot_updates"`
	PacketsSent  uint64 `json:"packets_sent"`
	SendErrors   uint64 `json:"send_errors"`
	PacketCount  uint8  `json:"packet_counter"`
	LastFrameUTC string `json:"last_frame_utc,omitempty"`

	LastFrame    *telemetry.RocketFrame    `json:"last_frame,omitempty"`
	LastRotation *telemetry.RotationVector `json:"last_rotation,omitempty"`
}

// Pipeline turns raw input chunks into hub events and outbound packets.
type Pipeline struct {
	hub     *hub.Hub
	decoder *telemetry.Decoder
	state   *telemetry.State
	out     Sender
	teamID  uint8
	maxRec  int
	now     func() time.Time

	// sendMu serializes encode+write so the packet counter advances in send
	// order.
	sendMu      sync.Mutex
	counter     uint8
	lastSendErr string

	chunks      atomic.Uint64
	records     atomic.Uint64
	frames      atomic.Uint64
	rotations   atomic.Uint64
	slotUpdates atomic.Uint64
	sent        atomic.Uint64
	sendErrs    atomic.Uint64

	lastMu       sync.RWMutex
	lastFrame    *telemetry.RocketFrame
	lastFrameAt  time.Time
	lastRotation *telemetry.RotationVector
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.Hub == nil {
		return nil, fmt.Errorf("engine: hub is nil")
	}
	if cfg.Decoder == nil {
		cfg.Decoder = telemetry.NewDecoder(telemetry.DecoderConfig{})
	}
	if cfg.State == nil {
		cfg.State = telemetry.NewState(telemetry.DefaultLimits())
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		hub:     cfg.Hub,
		decoder: cfg.Decoder,
		state:   cfg.State,
		out:     cfg.Out,
		teamID:  cfg.TeamID,
		maxRec:  cfg.MaxRecordBytes,
		now:     cfg.Now,
	}, nil
}

// Session owns the framer state of one open input binding.
type Session struct {
	p *Pipeline
	f *framer.Framer
}

// NewSession starts a fresh framer. Call it for every input open so no partial
// record survives a close/open cycle.
func (p *Pipeline) NewSession() *Session {
	return &Session{p: p, f: framer.New(p.maxRec)}
}

// HandleChunk processes one transport read. It is meant to be passed to
// link.Endpoint.Open and must be called from a single goroutine.
func (s *Session) HandleChunk(chunk []byte) {
	s.p.handleChunk(s.f, chunk)
}

// Pending returns the session's unterminated carry-over.
func (s *Session) Pending() string {
	return s.f.Pending()
}

func (p *Pipeline) handleChunk(f *framer.Framer, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	p.chunks.Add(1)
	now := p.now()
	text := string(chunk)

	if p.hub.Raw.Active() {
		p.hub.Raw.Publish(hub.RawText{Text: text, ReceivedAt: now})
	}

	for _, rec := range f.Push(text) {
		p.records.Add(1)
		p.handleRecord(now, rec)
	}
}

func (p *Pipeline) handleRecord(now time.Time, rec string) {
	switch ev := p.decoder.Decode(rec).(type) {
	case nil:
	case telemetry.RotationVector:
		p.rotations.Add(1)
		p.lastMu.Lock()
		p.lastRotation = &ev
		p.lastMu.Unlock()
		p.hub.Rotation.Publish(ev)
	case telemetry.SlotUpdate:
		p.slotUpdates.Add(1)
		if p.state.Apply(now, ev) && ev.Slot.Payload() && p.hub.Payload.Active() {
			p.hub.Payload.Publish(p.state.Payload())
		}
	case telemetry.RocketFrame:
		p.handleFrame(now, ev)
	}
}

func (p *Pipeline) handleFrame(now time.Time, f telemetry.RocketFrame) {
	p.frames.Add(1)
	if rate, ok := p.state.PressureRate(); ok {
		f = f.WithPressureRate(rate)
	}
	p.state.ObserveRocket(f)

	p.lastMu.Lock()
	p.lastFrame = &f
	p.lastFrameAt = now
	p.lastMu.Unlock()

	p.hub.Rocket.Publish(f)

	if p.out != nil {
		p.send(f)
	}
}

func (p *Pipeline) send(f telemetry.RocketFrame) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	frame, err := packet.Encode(packet.Payload(f), packet.Meta{
		TeamID:  p.teamID,
		Counter: p.counter,
		Status:  f.Status,
	})
	if err != nil {
		p.sendErrs.Add(1)
		log.Printf("engine encode failed counter=%d: %v", f.Counter, err)
		return
	}
	if err := p.out.Write(frame); err != nil {
		p.sendErrs.Add(1)
		// Log transitions only; a closed output would otherwise log every frame.
		if msg := err.Error(); msg != p.lastSendErr {
			p.lastSendErr = msg
			log.Printf("engine send failed packet=%d: %v", p.counter, err)
		}
		return
	}
	if p.lastSendErr != "" {
		log.Printf("engine send recovered packet=%d", p.counter)
		p.lastSendErr = ""
	}
	p.counter++
	p.sent.Add(1)
}

func (p *Pipeline) Stats() Stats {
	p.sendMu.Lock()
	counter := p.counter
	p.sendMu.Unlock()

	out := Stats{
		Chunks:      p.chunks.Load(),
		Records:     p.records.Load(),
		Frames:      p.frames.Load(),
		Rotations:   p.rotations.Load(),
		SlotUpdates: p.slotUpdates.Load(),
		PacketsSent: p.sent.Load(),
		SendErrors:  p.sendErrs.Load(),
		PacketCount: counter,
	}
	p.lastMu.RLock()
	if p.lastFrame != nil {
		f := *p.lastFrame
		out.LastFrame = &f
		out.LastFrameUTC = p.lastFrameAt.UTC().Format(time.RFC3339Nano)
	}
	if p.lastRotation != nil {
		r := *p.lastRotation
		out.LastRotation = &r
	}
	p.lastMu.RUnlock()
	return out
}

// State exposes the slot store for status reporting.
func (p *Pipeline) State() *telemetry.State {
	return p.state
}

func (p *Pipeline) Decoder() *telemetry.Decoder {
	return p.decoder
}
