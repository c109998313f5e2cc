package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"rocketlink/internal/serial"
)

// Role identifies one of the two endpoints.
type Role int

const (
	Input Role = iota
	Output
)

func (r Role) String() string {
	switch r {
	case Input:
		return "input"
	case Output:
		return "output"
	}
	return "unknown"
}

func (r Role) other() Role {
	if r == Input {
		return Output
	}
	return Input
}

// Config is the immutable binding of an endpoint.
type Config struct {
	Name string
	Baud int
}

// Opener binds a physical transport.
type Opener func(cfg Config) (io.ReadWriteCloser, error)

// SerialOpener opens cfg.Name as a serial device.
func SerialOpener(cfg Config) (io.ReadWriteCloser, error) {
	return serial.Open(cfg.Name, cfg.Baud)
}

const tcpScheme = "tcp://"

// DialTimeout bounds TCPOpener's connect.
var DialTimeout = 5 * time.Second

// TCPOpener dials a serial-over-TCP bridge named "tcp://host:port". Baud is
// ignored; the bridge owns the line settings.
func TCPOpener(cfg Config) (io.ReadWriteCloser, error) {
	addr := strings.TrimPrefix(cfg.Name, tcpScheme)
	if addr == "" {
		return nil, fmt.Errorf("link: tcp address is empty")
	}
	d := &net.Dialer{Timeout: DialTimeout}
	return d.Dial("tcp", addr)
}

// DefaultOpener picks TCPOpener for "tcp://" names and SerialOpener otherwise.
func DefaultOpener(cfg Config) (io.ReadWriteCloser, error) {
	if strings.HasPrefix(strings.ToLower(cfg.Name), tcpScheme) {
		return TCPOpener(cfg)
	}
	return SerialOpener(cfg)
}

var (
	ErrClosed           = errors.New("link: endpoint is closed")
	ErrEndpointConflict = errors.New("link: endpoint already in use")
)

// ConflictError reports an open rejected because the other endpoint holds the
// same physical name.
type ConflictError struct {
	Name   string
	Role   Role
	Holder Role
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("link: %s cannot open %q: already bound as %s", e.Role, e.Name, e.Holder)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrEndpointConflict
}

// Coordinator owns the input and output endpoints and the table of claimed
// endpoint names.
type Coordinator struct {
	claimMu sync.Mutex
	claims  [2]string

	in  *Endpoint
	out *Endpoint
}

func NewCoordinator(open Opener) *Coordinator {
	if open == nil {
		open = DefaultOpener
	}
	c := &Coordinator{}
	c.in = &Endpoint{role: Input, coord: c, open: open, state: "closed"}
	c.out = &Endpoint{role: Output, coord: c, open: open, state: "closed"}
	return c
}

func (c *Coordinator) Input() *Endpoint  { return c.in }
func (c *Coordinator) Output() *Endpoint { return c.out }

// Close closes both endpoints.
func (c *Coordinator) Close() {
	if c == nil {
		return
	}
	c.in.Close()
	c.out.Close()
}

func (c *Coordinator) claim(role Role, name string) error {
	c.claimMu.Lock()
	defer c.claimMu.Unlock()
	if held := c.claims[role.other()]; held != "" && sameName(held, name) {
		return &ConflictError{Name: name, Role: role, Holder: role.other()}
	}
	c.claims[role] = name
	return nil
}

func (c *Coordinator) release(role Role) {
	c.claimMu.Lock()
	c.claims[role] = ""
	c.claimMu.Unlock()
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Snapshot is the diagnostic view of an endpoint.
type Snapshot struct {
	Role      string `json:"role"`
	State     string `json:"state"`
	Name      string `json:"name,omitempty"`
	Baud      int    `json:"baud,omitempty"`
	Bytes     uint64 `json:"bytes"`
	Writes    uint64 `json:"writes"`
	LastError string `json:"last_error,omitempty"`
	OpenedUTC string `json:"opened_utc,omitempty"`
}

// Endpoint is one side of the link: Closed -> Open -> Closed.
type Endpoint struct {
	role  Role
	coord *Coordinator
	open  Opener

	mu     sync.Mutex
	cfg    Config
	port   io.ReadWriteCloser
	cancel context.CancelFunc
	done   chan struct{}

	// statsMu guards the fields below. The read goroutine only takes statsMu,
	// so closeLocked may wait for it while holding mu.
	statsMu  sync.Mutex
	state    string
	lastErr  string
	openedAt time.Time
	bytes    uint64
	writes   uint64
}

// Open binds the endpoint to cfg. Opening again with the same binding is a
// no-op; a different binding closes the current one first. A name held by the
// other endpoint is rejected with a *ConflictError before anything changes.
//
// For the input endpoint onChunk receives every read, on the endpoint's read
// goroutine, until Close. It must not call methods of the same endpoint. It is
// ignored for the output endpoint.
func (e *Endpoint) Open(ctx context.Context, cfg Config, onChunk func([]byte)) error {
	if e == nil {
		return fmt.Errorf("link endpoint is nil")
	}
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		return fmt.Errorf("link: %s name is required", e.role)
	}
	if e.role == Input && onChunk == nil {
		return fmt.Errorf("link: input requires a chunk handler")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.port != nil && e.cfg == cfg {
		return nil
	}
	if err := e.coord.claim(e.role, cfg.Name); err != nil {
		return err
	}
	if e.port != nil {
		e.closeLocked(false)
	}

	port, err := e.open(cfg)
	if err != nil {
		e.coord.release(e.role)
		e.setStatus("error", err.Error())
		log.Printf("link %s open failed name=%s baud=%d: %v", e.role, cfg.Name, cfg.Baud, err)
		return err
	}

	e.cfg = cfg
	e.port = port
	e.statsMu.Lock()
	e.state = "open"
	e.lastErr = ""
	e.openedAt = time.Now().UTC()
	e.statsMu.Unlock()
	log.Printf("link %s open name=%s baud=%d", e.role, cfg.Name, cfg.Baud)

	if e.role == Input {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		e.cancel = cancel
		e.done = done
		go func() {
			defer close(done)
			e.readLoop(runCtx, port, onChunk)
		}()
	}
	return nil
}

// Close releases the binding. It is safe to call when already closed.
func (e *Endpoint) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeLocked(true)
}

// closeLocked tears down the transport. The name claim is kept when release is
// false so a rebind never exposes the name to the other endpoint.
func (e *Endpoint) closeLocked(release bool) {
	if e.port == nil {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	_ = e.port.Close()
	if e.done != nil {
		<-e.done
	}
	log.Printf("link %s closed name=%s", e.role, e.cfg.Name)
	e.port = nil
	e.cancel = nil
	e.done = nil
	e.cfg = Config{}
	e.statsMu.Lock()
	e.state = "closed"
	e.statsMu.Unlock()
	if release {
		e.coord.release(e.role)
	}
}

// Write sends p in a single write. A failed write moves the endpoint to
// "error" so a supervisor can rebind it.
func (e *Endpoint) Write(p []byte) error {
	if e == nil {
		return ErrClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.port == nil {
		return ErrClosed
	}
	n, err := e.port.Write(p)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	if err != nil {
		if e.state == "open" {
			log.Printf("link %s write failed name=%s: %v", e.role, e.cfg.Name, err)
		}
		e.state = "error"
		e.lastErr = err.Error()
		return fmt.Errorf("link %s write: %w", e.role, err)
	}
	e.bytes += uint64(n)
	e.writes++
	return nil
}

// IsOpen reports whether the endpoint is bound.
func (e *Endpoint) IsOpen() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.port != nil
}

func (e *Endpoint) Snapshot() Snapshot {
	if e == nil {
		return Snapshot{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	out := Snapshot{
		Role:      e.role.String(),
		State:     e.state,
		Name:      e.cfg.Name,
		Baud:      e.cfg.Baud,
		Bytes:     e.bytes,
		Writes:    e.writes,
		LastError: e.lastErr,
	}
	if e.port != nil && !e.openedAt.IsZero() {
		out.OpenedUTC = e.openedAt.Format(time.RFC3339Nano)
	}
	return out
}

func (e *Endpoint) readLoop(ctx context.Context, port io.Reader, onChunk func([]byte)) {
	buf := make([]byte, 1024)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			if ctx.Err() != nil {
				return
			}
			chunk := append([]byte(nil), buf[:n]...)
			e.countRead(n)
			onChunk(chunk)
		}
		if err != nil {
			if ctx.Err() == nil {
				e.setReadError(err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (e *Endpoint) countRead(n int) {
	e.statsMu.Lock()
	e.bytes += uint64(n)
	e.statsMu.Unlock()
}

func (e *Endpoint) setReadError(err error) {
	log.Printf("link %s read stopped: %v", e.role, err)
	e.setStatus("error", err.Error())
}

func (e *Endpoint) setStatus(state, lastErr string) {
	e.statsMu.Lock()
	e.state = state
	e.lastErr = lastErr
	e.statsMu.Unlock()
}
