package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dev-feyisayo/canopy/engine/wire"
)

func TestDefaultCanopyConfig(t *testing.T) {
	cfg := DefaultCanopyConfig()
	if cfg.DefaultCodec != wire.CodecJSON {
		t.Fatalf("default codec should be json, got %v", cfg.DefaultCodec)
	}
	if cfg.HeartbeatTimeoutMS <= cfg.HeartbeatIntervalMS {
		t.Fatalf("heartbeat timeout should exceed the heartbeat interval")
	}
}

func TestLoadCanopyConfigYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "canopy.yaml")
	contents := "send_timeout_ms: 1234\nenable_telemetry: false\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := LoadCanopyConfigYAML(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.SendTimeoutMS != 1234 {
		t.Fatalf("expected overridden send timeout, got %d", cfg.SendTimeoutMS)
	}
	if cfg.EnableTelemetry {
		t.Fatalf("expected telemetry disabled by override")
	}
	// Fields not present in the file should keep their defaults.
	if cfg.InboundQueueSize != DefaultCanopyConfig().InboundQueueSize {
		t.Fatalf("unset fields should retain default values")
	}
}

func TestLoadCanopyConfigYAMLMissingFile(t *testing.T) {
	if _, err := LoadCanopyConfigYAML("/nonexistent/canopy.yaml"); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
