package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxPartialBytes = 64 * 1024

// LogBuffer keeps the last lines written to the process log for /api/logs.
type LogBuffer struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial string
	dropped uint64
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = 2000
	}
	return &LogBuffer{max: maxLines}
}

// Write implements io.Writer so the buffer can sit behind log.SetOutput.
// Bytes after the last newline are held until the next write completes them.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := b.partial + string(p)
	for {
		i := strings.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		b.appendLineLocked(data[:i])
		data = data[i+1:]
	}
	if len(data) > maxPartialBytes {
		b.appendLineLocked(data)
		data = ""
	}
	b.partial = data
	return len(p), nil
}

func (b *LogBuffer) appendLineLocked(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		over := len(b.lines) - b.max
		b.lines = b.lines[over:]
		b.dropped += uint64(over)
	}
}

type LogsResponse struct {
	NowUTC  string   `json:"now_utc"`
	Dropped uint64   `json:"dropped"`
	Lines   []string `json:"lines"`
}

const (
	defaultLogTail = 200
	maxLogTail     = 5000
)

// Snapshot returns the last tail lines and how many were evicted so far.
func (b *LogBuffer) Snapshot(tail int) (lines []string, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if tail <= 0 {
		tail = defaultLogTail
	}
	start := len(b.lines) - tail
	if start < 0 {
		start = 0
	}
	return append([]string(nil), b.lines[start:]...), b.dropped
}

// Handler serves the tail as JSON, or as plain text with ?format=text.
func (b *LogBuffer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		tail, ok := tailParam(w, r, defaultLogTail, maxLogTail)
		if !ok {
			return
		}

		lines, dropped := b.Snapshot(tail)
		w.Header().Set("Cache-Control", "no-store")
		if !strings.EqualFold(r.URL.Query().Get("format"), "text") {
			writeJSON(w, LogsResponse{
				NowUTC:  time.Now().UTC().Format(time.RFC3339Nano),
				Dropped: dropped,
				Lines:   lines,
			})
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		var sb strings.Builder
		if dropped > 0 {
			fmt.Fprintf(&sb, "[dropped=%d]\n", dropped)
		}
		for _, line := range lines {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		_, _ = w.Write([]byte(sb.String()))
	})
}

// tailParam reads ?tail=N in [1,max]. It writes a 400 and returns false when
// the value is malformed.
func tailParam(w http.ResponseWriter, r *http.Request, def, max int) (int, bool) {
	s := strings.TrimSpace(r.URL.Query().Get("tail"))
	if s == "" {
		return def, true
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 || v > max {
		http.Error(w, fmt.Sprintf("tail must be an integer in [1,%d]", max), http.StatusBadRequest)
		return 0, false
	}
	return v, true
}
