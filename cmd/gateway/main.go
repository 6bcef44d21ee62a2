package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ocx/qrng-diode/internal/config"
	"github.com/ocx/qrng-diode/internal/gateway"
	"github.com/ocx/qrng-diode/internal/metrics"
)

func main() {
	log.Println("starting QRNG gateway")

	cfg, err := config.LoadGatewayConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	m := metrics.New()
	srv, err := gateway.New(cfg, m)
	if err != nil {
		log.Fatalf("gateway: %v", err)
	}

	stopSync := make(chan struct{})
	if cfg.MetricsEnabled {
		exporter := metrics.NewPrometheusExporter(m)
		go exporter.RunPeriodicSync(stopSync, 5*time.Second)
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: srv.Router(),
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("received shutdown signal, shutting down gateway")
		close(stopSync)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("gateway shutdown error", "error", err)
		}
	}()

	slog.Info("gateway listening", "address", cfg.ListenAddress)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("gateway failed: %v", err)
	}
	slog.Info("gateway stopped")
}
