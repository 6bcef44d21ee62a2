package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ocx/qrng-diode/internal/collector"
	"github.com/ocx/qrng-diode/internal/config"
	"github.com/ocx/qrng-diode/internal/metrics"
)

func main() {
	log.Println("starting QRNG collector")

	cfg, err := config.LoadCollectorConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	m := metrics.New()
	c, err := collector.New(cfg, m)
	if err != nil {
		log.Fatalf("collector: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("received shutdown signal, draining collector")
		cancel()
	}()

	slog.Info("collector running", "sources", len(cfg.ApplianceURLs), "push_url", cfg.PushURL)
	c.Run(ctx)
	slog.Info("collector stopped")
}
