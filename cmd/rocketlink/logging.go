package main

import (
	"io"
	"log"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"rocketlink/internal/config"
	"rocketlink/internal/web"
)

// logWriter fans the process log out to console, the /api/logs buffer and,
// when log.path is set, a size-rotated file. The returned close func flushes
// the file and is always non-nil.
func logWriter(cfg config.LogConfig, console io.Writer, logs *web.LogBuffer) (io.Writer, func() error) {
	writers := []io.Writer{}
	if console != nil {
		writers = append(writers, console)
	}
	if logs != nil {
		writers = append(writers, logs)
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return io.MultiWriter(writers...), func() error { return nil }
	}
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	writers = append(writers, file)
	return io.MultiWriter(writers...), file.Close
}

func setupLogging(cfg config.LogConfig, console io.Writer, logs *web.LogBuffer) func() error {
	w, closeFn := logWriter(cfg, console, logs)
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.LUTC)
	return closeFn
}
