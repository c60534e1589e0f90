// Canopy daemon
//
// Standalone process hosting one Canopy zone over gRPC. This binary can
// run as a sidecar or a root/relay zone in a larger deployment.
//
// Usage:
//
//	go run ./cmd/canopyd                     # Default :50051
//	go run ./cmd/canopyd -addr :8080         # Custom port
//	go build -o canopyd ./cmd/canopyd && ./canopyd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dev-feyisayo/canopy/engine/config"
	"github.com/dev-feyisayo/canopy/engine/ids"
	"github.com/dev-feyisayo/canopy/engine/service"
	"github.com/dev-feyisayo/canopy/engine/telemetry"
	grpctransport "github.com/dev-feyisayo/canopy/transport/grpc"
)

func main() {
	addr := flag.String("addr", ":50051", "gRPC listen address for the Channel service")
	collector := flag.String("otel-collector", "localhost:4317", "OTLP/gRPC trace collector endpoint")
	enableTracing := flag.Bool("tracing", false, "export traces to otel-collector")
	disableTelemetry := flag.Bool("no-telemetry", false, "disable the Prometheus metrics sink")
	flag.Parse()

	logger := telemetry.StdLogger{}
	logger.Info("canopy_daemon_starting", "address", *addr)

	if *enableTracing {
		shutdown, err := telemetry.InitTracer("canopyd", *collector)
		if err != nil {
			log.Fatalf("failed to initialize tracing: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("tracer_shutdown_failed", "error", err)
			}
		}()
	}

	cfg := config.DefaultCanopyConfig()
	cfg.EnableTelemetry = !*disableTelemetry

	var sink telemetry.Sink = telemetry.NoopSink{}
	if cfg.EnableTelemetry {
		sink = telemetry.NewPrometheusSink()
	}
	zone := service.New(ids.NewZoneID(), "canopyd-root", cfg, sink)
	logger.Info("zone_created", "zone", zone.Zone())

	srv, err := grpctransport.Listen(context.Background(), *addr, zone, sink)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}
	logger.Info("channel_service_ready", "address", *addr)
	fmt.Printf("\nCanopy daemon running on %s (zone %s)\n", *addr, zone.Zone())
	fmt.Println("Press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown_signal_received", "signal", sig.String())

	srv.GracefulStop()
	logger.Info("canopy_daemon_stopped")
}
