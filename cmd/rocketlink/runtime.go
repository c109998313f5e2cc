package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"rocketlink/internal/config"
	"rocketlink/internal/engine"
	"rocketlink/internal/hub"
	"rocketlink/internal/link"
	"rocketlink/internal/serial"
	"rocketlink/internal/statusled"
	"rocketlink/internal/telemetry"
	"rocketlink/internal/udp"
	"rocketlink/internal/web"
)

type runtime struct {
	cfg config.Config

	hub    *hub.Hub
	links  *link.Coordinator
	pipe   *engine.Pipeline
	mirror *udp.Broadcaster
	led    *statusled.LED
	status *web.Status

	pollInterval    time.Duration
	minBackoff      time.Duration
	maxBackoff      time.Duration
	summaryInterval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newRuntime builds every component from cfg without touching any transport.
// A nil open uses the serial opener.
func newRuntime(cfg config.Config, open link.Opener) (*runtime, error) {
	c := cfg
	if err := config.DefaultAndValidate(&c); err != nil {
		return nil, err
	}

	h := hub.New()
	links := link.NewCoordinator(open)

	teamID := uint8(c.Packet.TeamID)
	dec := telemetry.NewDecoder(telemetry.DecoderConfig{TeamID: &teamID, Debug: c.Log.Debug})
	state := telemetry.NewState(telemetry.Limits{
		AltitudeMinM:    *c.Limits.AltitudeMinM,
		AltitudeMaxM:    *c.Limits.AltitudeMaxM,
		TemperatureMinC: *c.Limits.TemperatureMinC,
		TemperatureMaxC: *c.Limits.TemperatureMaxC,
	})

	r := &runtime{
		cfg:             c,
		hub:             h,
		links:           links,
		pollInterval:    500 * time.Millisecond,
		minBackoff:      250 * time.Millisecond,
		maxBackoff:      10 * time.Second,
		summaryInterval: time.Minute,
	}

	// Keep both senders as untyped nil when disabled so Tee can drop them.
	var out, mirror engine.Sender
	if c.Output.Enable {
		out = links.Output()
	}
	if c.Mirror.Enable {
		b, err := udp.NewBroadcaster(c.Mirror.Dest)
		if err != nil {
			return nil, fmt.Errorf("mirror init: %w", err)
		}
		r.mirror = b
		mirror = b
	}

	pipe, err := engine.New(engine.Config{
		Hub:            h,
		Decoder:        dec,
		State:          state,
		Out:            engine.Tee(out, mirror),
		TeamID:         teamID,
		MaxRecordBytes: c.Input.MaxRecordBytes,
	})
	if err != nil {
		r.Close()
		return nil, err
	}
	r.pipe = pipe

	r.led = statusled.New(statusled.Config{Enable: c.StatusLED.Enable, Pin: c.StatusLED.Pin}, h)
	r.status = web.NewStatus(web.Sources{
		Hub:      h,
		Links:    links,
		Pipeline: pipe,
		Mirror:   r.mirror,
		LED:      r.led,
	})
	return r, nil
}

// Start brings up the optional services and the link supervisors. Failures of
// optional services are logged and the runtime keeps going.
func (r *runtime) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	if err := r.led.Start(); err != nil {
		log.Printf("statusled init failed: %v", err)
	}
	if err := r.status.Attach(); err != nil {
		log.Printf("web status attach failed: %v", err)
	}

	if r.cfg.Output.Enable {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.supervise(ctx, r.links.Output(), r.outputConfig, nil)
		}()
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.supervise(ctx, r.links.Input(), r.inputConfig, func() func([]byte) {
			return r.pipe.NewSession().HandleChunk
		})
	}()

	if r.summaryInterval > 0 {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			t := time.NewTicker(r.summaryInterval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					log.Print(summaryLine(r.pipe.Stats(), r.links.Input().Snapshot(), r.links.Output().Snapshot()))
				}
			}
		}()
	}
}

func (r *runtime) inputConfig() (link.Config, error) {
	name := r.cfg.Input.Port
	if strings.EqualFold(name, "auto") {
		name = serial.AutoDetect(r.cfg.Output.Port)
		if name == "" {
			return link.Config{}, fmt.Errorf("no serial device found for input")
		}
	}
	return link.Config{Name: name, Baud: r.cfg.Input.Baud}, nil
}

func (r *runtime) outputConfig() (link.Config, error) {
	return link.Config{Name: r.cfg.Output.Port, Baud: r.cfg.Output.Baud}, nil
}

// supervise keeps ep open until ctx is done. An endpoint whose read loop
// stopped is closed and reopened with a fresh handler, backing off between
// failed attempts.
func (r *runtime) supervise(ctx context.Context, ep *link.Endpoint, binding func() (link.Config, error), handler func() func([]byte)) {
	backoff := r.minBackoff
	for {
		snap := ep.Snapshot()
		if snap.State != "open" {
			if ep.IsOpen() {
				ep.Close()
			}
			err := r.openEndpoint(ctx, ep, binding, handler)
			if err != nil {
				wait := backoff
				if wait > r.maxBackoff {
					wait = r.maxBackoff
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
				if backoff < r.maxBackoff {
					backoff *= 2
				}
				continue
			}
			backoff = r.minBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.pollInterval):
		}
	}
}

func (r *runtime) openEndpoint(ctx context.Context, ep *link.Endpoint, binding func() (link.Config, error), handler func() func([]byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg, err := binding()
	if err != nil {
		return err
	}
	var onChunk func([]byte)
	if handler != nil {
		onChunk = handler()
	}
	return ep.Open(ctx, cfg, onChunk)
}

func (r *runtime) Close() {
	if r == nil {
		return
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	// A supervisor may have reopened an endpoint just before it saw the
	// cancellation, so the links close only after every supervisor returned.
	r.links.Close()

	if r.status != nil {
		r.status.Detach()
	}
	if r.led != nil {
		if err := r.led.Close(); err != nil {
			log.Printf("statusled close failed: %v", err)
		}
	}
	if r.mirror != nil {
		_ = r.mirror.Close()
		r.mirror = nil
	}
}
