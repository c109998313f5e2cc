package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"
	"time"
)

func Handler(status *Status, logs *LogBuffer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, status.Snapshot(time.Now().UTC()))
	})

	// Recent inbound chunks, verbatim.
	mux.HandleFunc("/api/raw", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		tail, ok := tailParam(w, r, rawTailMax, rawTailMax)
		if !ok {
			return
		}
		entries, total := status.RawTail(tail)
		resp := struct {
			Attached bool       `json:"attached"`
			Total    uint64     `json:"total"`
			Entries  []RawEntry `json:"entries"`
		}{Attached: status.attached.Load(), Total: total, Entries: entries}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, resp)
	})

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		snap := status.Snapshot(time.Now().UTC())
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>rocketlink</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>rocketlink</h1>")
		_, _ = fmt.Fprintf(w, "<p><a href=\"/api/status\">/api/status</a> <a href=\"/api/raw\">/api/raw</a> <a href=\"/api/logs?format=text\">/api/logs</a></p>")
		in, out := "-", "-"
		if snap.Input != nil {
			in = snap.Input.State + " " + snap.Input.Name
		}
		if snap.Output != nil {
			out = snap.Output.State + " " + snap.Output.Name
		}
		var frames, sent uint64
		if snap.Engine != nil {
			frames, sent = snap.Engine.Frames, snap.Engine.PacketsSent
		}
		_, _ = fmt.Fprintf(w, "<pre>input=%s\noutput=%s\nframes=%d\npackets_sent=%d\nframe_rate_hz=%.1f</pre>",
			html.EscapeString(in), html.EscapeString(out), frames, sent, snap.FrameRateHz,
		)
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func newServer(listenAddr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// Serve runs the diagnostics server until ctx is done or listening fails.
func Serve(ctx context.Context, listenAddr string, status *Status, logs *LogBuffer) error {
	if status == nil {
		status = NewStatus(Sources{})
	}
	srv := newServer(listenAddr, Handler(status, logs))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("web shutdown: %v", err)
	}
	return ctx.Err()
}
