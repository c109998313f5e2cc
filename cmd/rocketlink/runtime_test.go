package main

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"rocketlink/internal/config"
	"rocketlink/internal/link"
	"rocketlink/internal/packet"
)

const rocketRecord = "5,120.5,118.2,39.1,32.2,50.0,39.2,32.3,1,2,3,4,5,6,7,1\r\n"

type fakePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu       sync.Mutex
	writes   [][]byte
	closed   bool
	writeErr error
}

func (p *fakePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.writes = append(p.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	_ = p.w.Close()
	return p.r.Close()
}

func (p *fakePort) written() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.writes...)
}

func (p *fakePort) failWrites(err error) {
	p.mu.Lock()
	p.writeErr = err
	p.mu.Unlock()
}

func (p *fakePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeOpener struct {
	mu    sync.Mutex
	ports map[string][]*fakePort
}

func (o *fakeOpener) open(cfg link.Config) (io.ReadWriteCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ports == nil {
		o.ports = map[string][]*fakePort{}
	}
	r, w := io.Pipe()
	p := &fakePort{r: r, w: w}
	o.ports[cfg.Name] = append(o.ports[cfg.Name], p)
	return p, nil
}

func (o *fakeOpener) opened(name string) []*fakePort {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakePort(nil), o.ports[name]...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func testConfig() config.Config {
	return config.Config{
		Input:  config.InputConfig{Port: "in0"},
		Output: config.OutputConfig{Enable: true, Port: "out0"},
		Packet: config.PacketConfig{TeamID: 84},
	}
}

func startRuntime(t *testing.T, cfg config.Config, op *fakeOpener) *runtime {
	t.Helper()
	rt, err := newRuntime(cfg, op.open)
	if err != nil {
		t.Fatalf("newRuntime() error: %v", err)
	}
	rt.pollInterval = 5 * time.Millisecond
	rt.minBackoff = 5 * time.Millisecond
	rt.maxBackoff = 20 * time.Millisecond
	rt.summaryInterval = 0
	rt.Start(context.Background())
	t.Cleanup(rt.Close)
	return rt
}

func TestNewRuntime_InvalidConfig(t *testing.T) {
	if _, err := newRuntime(config.Config{}, (&fakeOpener{}).open); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRuntime_FrameReachesOutput(t *testing.T) {
	op := &fakeOpener{}
	rt := startRuntime(t, testConfig(), op)

	waitFor(t, "both endpoints open", func() bool {
		return len(op.opened("in0")) == 1 && len(op.opened("out0")) == 1
	})
	in := op.opened("in0")[0]
	out := op.opened("out0")[0]

	if _, err := in.w.Write([]byte(rocketRecord)); err != nil {
		t.Fatalf("write input: %v", err)
	}
	waitFor(t, "packet on output", func() bool { return len(out.written()) == 1 })

	frame := out.written()[0]
	if err := packet.Verify(frame); err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	fields, err := packet.Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if fields.TeamID != 84 || fields.Counter != 0 {
		t.Fatalf("meta=%+v", fields.Meta)
	}

	snap := rt.status.Snapshot(time.Now())
	if snap.Engine == nil || snap.Engine.PacketsSent != 1 {
		t.Fatalf("engine=%+v", snap.Engine)
	}
	if snap.Engine.LastFrame == nil || snap.Engine.LastFrame.TeamID == nil || *snap.Engine.LastFrame.TeamID != 84 {
		t.Fatalf("last frame=%+v", snap.Engine.LastFrame)
	}

	rt.Close()
	if !in.isClosed() || !out.isClosed() {
		t.Fatalf("ports not closed on shutdown")
	}
}

func TestRuntime_ReopensInputAfterReadError(t *testing.T) {
	op := &fakeOpener{}
	rt := startRuntime(t, testConfig(), op)

	waitFor(t, "input open", func() bool { return len(op.opened("in0")) == 1 })
	first := op.opened("in0")[0]

	// A partial record before the failure must not survive into the next
	// binding.
	if _, err := first.w.Write([]byte("5,120.5,")); err != nil {
		t.Fatalf("write input: %v", err)
	}
	_ = first.w.CloseWithError(errors.New("device unplugged"))

	waitFor(t, "input reopened", func() bool { return len(op.opened("in0")) == 2 })
	second := op.opened("in0")[1]
	if _, err := second.w.Write([]byte("118.2,39.1\n")); err != nil {
		t.Fatalf("write input: %v", err)
	}
	if _, err := second.w.Write([]byte(rocketRecord)); err != nil {
		t.Fatalf("write input: %v", err)
	}
	waitFor(t, "one packet", func() bool { return len(op.opened("out0")[0].written()) == 1 })

	if st := rt.pipe.Stats(); st.Frames != 1 {
		t.Fatalf("frames=%d want 1", st.Frames)
	}
}

func TestRuntime_ReopensOutputAfterWriteError(t *testing.T) {
	op := &fakeOpener{}
	rt := startRuntime(t, testConfig(), op)

	waitFor(t, "both endpoints open", func() bool {
		return len(op.opened("in0")) == 1 && len(op.opened("out0")) == 1
	})
	in := op.opened("in0")[0]
	broken := op.opened("out0")[0]
	broken.failWrites(errors.New("input/output error"))

	if _, err := in.w.Write([]byte(rocketRecord)); err != nil {
		t.Fatalf("write input: %v", err)
	}
	waitFor(t, "output reopened", func() bool { return len(op.opened("out0")) == 2 })
	if !broken.isClosed() {
		t.Fatalf("failed output port was not closed")
	}
	waitFor(t, "send error counted", func() bool { return rt.pipe.Stats().SendErrors == 1 })

	fresh := op.opened("out0")[1]
	if _, err := in.w.Write([]byte(rocketRecord)); err != nil {
		t.Fatalf("write input: %v", err)
	}
	waitFor(t, "packet on reopened output", func() bool { return len(fresh.written()) == 1 })
	if err := packet.Verify(fresh.written()[0]); err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if snap := rt.links.Output().Snapshot(); snap.State != "open" {
		t.Fatalf("output state=%q want open", snap.State)
	}
}

func TestRuntime_MirrorsPacketsOverUDP(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error: %v", err)
	}
	defer pc.Close()

	cfg := testConfig()
	cfg.Output.Enable = false
	cfg.Output.Port = ""
	cfg.Mirror = config.MirrorConfig{Enable: true, Dest: pc.LocalAddr().String()}

	op := &fakeOpener{}
	rt := startRuntime(t, cfg, op)
	waitFor(t, "input open", func() bool { return len(op.opened("in0")) == 1 })
	if _, err := op.opened("in0")[0].w.Write([]byte(rocketRecord)); err != nil {
		t.Fatalf("write input: %v", err)
	}

	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom() error: %v", err)
	}
	if n != packet.Size {
		t.Fatalf("datagram len=%d want %d", n, packet.Size)
	}
	if err := packet.Verify(buf[:n]); err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if snap := rt.status.Snapshot(time.Now()); snap.Mirror == nil || snap.Mirror.Sent != 1 {
		t.Fatalf("mirror=%+v", snap.Mirror)
	}
	if len(op.opened("out0")) != 0 {
		t.Fatalf("disabled output was opened")
	}
}
