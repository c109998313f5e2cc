package hub

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"rocketlink/internal/telemetry"
)

// RawText is the verbatim text of one received chunk (not necessarily one
// record).
type RawText struct {
	Text       string
	ReceivedAt time.Time
}

type registration[T any] struct {
	id     string
	fn     func(T) error
	active atomic.Bool
}

// Channel is one typed fan-out channel.
//
// Publish runs callbacks synchronously on the caller's goroutine over an
// immutable snapshot of registrations. Subscribe and Unsubscribe may be
// called concurrently with Publish, including from inside a callback.
type Channel[T any] struct {
	name string

	mu   sync.Mutex
	subs atomic.Pointer[[]*registration[T]]

	published atomic.Uint64
	failures  atomic.Uint64
}

func newChannel[T any](name string) *Channel[T] {
	c := &Channel[T]{name: name}
	empty := []*registration[T]{}
	c.subs.Store(&empty)
	return c
}

func (c *Channel[T]) Name() string {
	return c.name
}

// Subscribe registers fn under id. Registrations under one id accumulate.
func (c *Channel[T]) Subscribe(id string, fn func(T) error) error {
	if id == "" {
		return fmt.Errorf("hub: subscriber id is required")
	}
	if fn == nil {
		return fmt.Errorf("hub: callback is nil")
	}
	r := &registration[T]{id: id, fn: fn}
	r.active.Store(true)

	c.mu.Lock()
	defer c.mu.Unlock()
	cur := *c.subs.Load()
	next := make([]*registration[T], 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, r)
	c.subs.Store(&next)
	return nil
}

// Active reports whether any callback is registered. Publishers use it to
// skip building events nobody will see.
func (c *Channel[T]) Active() bool {
	return len(*c.subs.Load()) > 0
}

// Publish invokes every registered callback in registration order. A callback
// that returns an error or panics is logged and skipped; the rest still run.
func (c *Channel[T]) Publish(ev T) {
	subs := *c.subs.Load()
	if len(subs) == 0 {
		return
	}
	c.published.Add(1)
	for _, r := range subs {
		if !r.active.Load() {
			continue
		}
		c.invoke(r, ev)
	}
}

func (c *Channel[T]) invoke(r *registration[T], ev T) {
	defer func() {
		if p := recover(); p != nil {
			c.failures.Add(1)
			log.Printf("hub callback panic channel=%s subscriber=%s: %v", c.name, r.id, p)
		}
	}()
	if err := r.fn(ev); err != nil {
		c.failures.Add(1)
		log.Printf("hub callback error channel=%s subscriber=%s: %v", c.name, r.id, err)
	}
}

func (c *Channel[T]) removeAll(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := *c.subs.Load()
	next := make([]*registration[T], 0, len(cur))
	removed := 0
	for _, r := range cur {
		if r.id == id {
			r.active.Store(false)
			removed++
			continue
		}
		next = append(next, r)
	}
	if removed > 0 {
		c.subs.Store(&next)
	}
	return removed
}

// ChannelStats describes one channel.
type ChannelStats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Failures    uint64 `json:"failures"`
}

func (c *Channel[T]) Stats() ChannelStats {
	return ChannelStats{
		Subscribers: len(*c.subs.Load()),
		Published:   c.published.Load(),
		Failures:    c.failures.Load(),
	}
}

type remover interface {
	removeAll(id string) int
}

// Hub is the subscriber registry. Construct one per process and hand it to
// every producer and consumer.
type Hub struct {
	Raw      *Channel[RawText]
	Rocket   *Channel[telemetry.RocketFrame]
	Payload  *Channel[telemetry.PayloadFrame]
	Rotation *Channel[telemetry.RotationVector]
}

func New() *Hub {
	return &Hub{
		Raw:      newChannel[RawText]("raw"),
		Rocket:   newChannel[telemetry.RocketFrame]("rocket"),
		Payload:  newChannel[telemetry.PayloadFrame]("payload"),
		Rotation: newChannel[telemetry.RotationVector]("rotation"),
	}
}

// UnsubscribeAll removes every registration for id on every channel and
// returns how many were removed. Once it returns, no publish starts a call to
// any of them, including a publish already iterating its snapshot.
func (h *Hub) UnsubscribeAll(id string) int {
	if h == nil {
		return 0
	}
	n := 0
	for _, c := range []remover{h.Raw, h.Rocket, h.Payload, h.Rotation} {
		n += c.removeAll(id)
	}
	return n
}

type Stats struct {
	Raw      ChannelStats `json:"raw"`
	Rocket   ChannelStats `json:"rocket"`
	Payload  ChannelStats `json:"payload"`
	Rotation ChannelStats `json:"rotation"`
}

func (h *Hub) Stats() Stats {
	if h == nil {
		return Stats{}
	}
	return Stats{
		Raw:      h.Raw.Stats(),
		Rocket:   h.Rocket.Stats(),
		Payload:  h.Payload.Stats(),
		Rotation: h.Rotation.Stats(),
	}
}
