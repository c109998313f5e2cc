package engine

import (
	"log"
	"sync"
)

// Tee writes to primary and copies every successful write to mirror. Only the
// primary result is returned; mirror failures are logged once per distinct
// error. A nil primary makes the mirror the primary.
func Tee(primary, mirror Sender) Sender {
	if primary == nil {
		return mirror
	}
	if mirror == nil {
		return primary
	}
	return &tee{primary: primary, mirror: mirror}
}

type tee struct {
	primary Sender
	mirror  Sender

	mu      sync.Mutex
	lastErr string
}

func (t *tee) Write(p []byte) error {
	if err := t.primary.Write(p); err != nil {
		return err
	}
	err := t.mirror.Write(p)
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		if msg := err.Error(); msg != t.lastErr {
			t.lastErr = msg
			log.Printf("engine mirror write failed: %v", err)
		}
		return nil
	}
	t.lastErr = ""
	return nil
}
