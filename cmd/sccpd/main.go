package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mpaland/chan-sccp/internal/api"
	"github.com/mpaland/chan-sccp/internal/call"
	"github.com/mpaland/chan-sccp/internal/config"
	"github.com/mpaland/chan-sccp/internal/media"
	"github.com/mpaland/chan-sccp/internal/metrics"
	"github.com/mpaland/chan-sccp/internal/sched"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting sccpd",
		"sccp_port", cfg.SCCPPort,
		"http_port", cfg.HTTPPort,
		"rtp_ports", fmt.Sprintf("%d-%d", cfg.RTPPortMin, cfg.RTPPortMax),
	)

	// Media engine: RTP port pool, session transport, NAT address resolver.
	pool, err := media.NewPortPool(cfg.RTPPortMin, cfg.RTPPortMax, logger)
	if err != nil {
		slog.Error("failed to create rtp port pool", "error", err)
		os.Exit(1)
	}
	mediaTransport := media.NewTransport(pool, logger)

	resolver, err := media.NewResolver(cfg.ExternalHost, cfg.ExternalRefresh, logger)
	if err != nil {
		slog.Error("failed to create external address resolver", "error", err)
		os.Exit(1)
	}

	timer := sched.New(logger)

	startTime := time.Now()

	// Call-control core. The SCCP wire transport and the PBX bridge are
	// registered by the embedding integration; until one is attached the
	// core runs with the offline placeholders below.
	manager := call.NewManager(cfg.CallSettings(), cfg.CodecPrefs(), call.Dependencies{
		Transport: &offlineTransport{logger: logger},
		Bridge:    &offlineBridge{},
		Media:     mediaTransport,
		Scheduler: timer,
		External:  resolver,
	}, logger)

	// Metrics registry with the scrape-time call/media collector.
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(manager, mediaTransport, startTime))

	// HTTP introspection surface.
	handler := api.NewServer(manager, mediaTransport, cfg, registry)
	defer handler.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	mediaTransport.Shutdown()
	resolver.Close()

	slog.Info("sccpd stopped")
}

// offlineTransport stands in for the SCCP wire transport until a protocol
// server is attached. It reports no live station sessions, so call
// operations reject with a session error instead of writing to a
// nonexistent socket.
type offlineTransport struct {
	logger *slog.Logger
}

func (t *offlineTransport) SendInstruction(deviceID string, instr call.Instruction) error {
	t.logger.Debug("dropping station instruction, no wire transport attached",
		"device", deviceID,
		"instruction", instr.Kind.String(),
	)
	return nil
}

func (t *offlineTransport) FindLineInstance(deviceID, lineName string) int { return 0 }

func (t *offlineTransport) HasActiveSession(deviceID string) bool { return false }

// offlineBridge stands in for the PBX bridge integration. Leg allocation
// fails, so outbound attempts surface congestion instead of dialing into
// nothing.
type offlineBridge struct{}

func (b *offlineBridge) AllocateLeg(ch *call.Channel) (call.BridgeLeg, error) {
	return nil, fmt.Errorf("no bridge integration attached: %w", call.ErrLegAllocation)
}

func (b *offlineBridge) Masquerade(dest, src call.BridgeLeg) error {
	return fmt.Errorf("no bridge integration attached: %w", call.ErrMasquerade)
}

func (b *offlineBridge) Park(parkee, announceTo call.BridgeLeg) (int, error) {
	return 0, fmt.Errorf("no bridge integration attached: %w", call.ErrLegAllocation)
}
