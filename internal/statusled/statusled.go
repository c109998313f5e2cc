// Package statusled blinks a GPIO LED on the ground station for every decoded
// rocket frame, so the operator can see the link is alive without a screen.
package statusled

import (
	"fmt"
	"log"
	"sync"

	"rocketlink/internal/hub"
	"rocketlink/internal/telemetry"
)

const subscriberID = "statusled"

type line interface {
	SetValue(v int) error
	Close() error
}

type Config struct {
	Enable bool
	Pin    int
}

// LED toggles its line on every rocket frame published on the hub.
type LED struct {
	cfg Config
	hub *hub.Hub

	mu     sync.Mutex
	line   line
	on     bool
	toggle uint64
}

func New(cfg Config, h *hub.Hub) *LED {
	return &LED{cfg: cfg, hub: h}
}

// Start opens the GPIO line and subscribes to rocket frames. A disabled LED
// is a no-op.
func (l *LED) Start() error {
	if l == nil || !l.cfg.Enable {
		return nil
	}
	if l.hub == nil {
		return fmt.Errorf("statusled: hub is nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.line != nil {
		return nil
	}
	ln, err := openGPIOFn(l.cfg.Pin)
	if err != nil {
		return err
	}
	l.line = ln
	if err := l.hub.Rocket.Subscribe(subscriberID, l.onFrame); err != nil {
		_ = ln.Close()
		l.line = nil
		return err
	}
	log.Printf("statusled enabled pin=%d", l.cfg.Pin)
	return nil
}

func (l *LED) onFrame(telemetry.RocketFrame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.line == nil {
		return nil
	}
	l.on = !l.on
	v := 0
	if l.on {
		v = 1
	}
	l.toggle++
	return l.line.SetValue(v)
}

// Toggles is the number of frames that flipped the LED.
func (l *LED) Toggles() uint64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.toggle
}

func (l *LED) Close() error {
	if l == nil {
		return nil
	}
	if l.hub != nil {
		l.hub.UnsubscribeAll(subscriberID)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.line == nil {
		return nil
	}
	err := l.line.Close()
	l.line = nil
	l.on = false
	return err
}
