package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"rocketlink/internal/config"
	"rocketlink/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./rocketlink.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logs := web.NewLogBuffer(cfg.Log.BufferLines)
	closeLog := setupLogging(cfg.Log, os.Stderr, logs)
	defer func() { _ = closeLog() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(cfg, nil)
	if err != nil {
		log.Fatalf("runtime init failed: %v", err)
	}
	defer rt.Close()

	log.Printf("rocketlink starting")
	log.Printf("input port=%s baud=%d", cfg.Input.Port, cfg.Input.Baud)
	if cfg.Output.Enable {
		log.Printf("output port=%s baud=%d team_id=%d", cfg.Output.Port, cfg.Output.Baud, cfg.Packet.TeamID)
	}
	if cfg.Mirror.Enable {
		log.Printf("mirror udp dest=%s", cfg.Mirror.Dest)
	}
	rt.Start(ctx)

	if listen := strings.TrimSpace(cfg.Web.Listen); listen != "" {
		log.Printf("web listen=%s", listen)
		go func() {
			err := web.Serve(ctx, listen, rt.status, logs)
			if err != nil && ctx.Err() == nil {
				log.Printf("web server stopped: %v", err)
				cancel()
			}
		}()
	}

	<-ctx.Done()
	log.Printf("rocketlink stopping")
}
