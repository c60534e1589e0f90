// Package config provides Canopy's core runtime configuration — timeouts,
// queue sizes, and protocol negotiation defaults. It carries no
// infrastructure addresses (collector endpoints, listen addresses); those
// belong to the concrete transport or binary that embeds Canopy.
package config

import "github.com/dev-feyisayo/canopy/engine/wire"

// CanopyConfig holds the tunables a Service and its transports read at
// construction time.
type CanopyConfig struct {
	// SupportedVersions is the inclusive protocol version range this zone
	// accepts on inbound verbs.
	SupportedVersions wire.SupportedRange `json:"supported_versions" yaml:"supported_versions"`

	// DefaultCodec is the codec tag used when a caller does not specify
	// one.
	DefaultCodec wire.CodecTag `json:"default_codec" yaml:"default_codec"`

	// SendTimeoutMS is the implicit per-send timeout inherited from the
	// transport; pass-throughs propagate the remaining budget downstream
	// through the call context.
	SendTimeoutMS int `json:"send_timeout_ms" yaml:"send_timeout_ms"`

	// HeartbeatIntervalMS is the period between liveness pings a
	// transport uses to detect an ungraceful failure.
	HeartbeatIntervalMS int `json:"heartbeat_interval_ms" yaml:"heartbeat_interval_ms"`

	// HeartbeatTimeoutMS is how long a missed heartbeat run may go before
	// the transport invokes the local transport_down cascade.
	HeartbeatTimeoutMS int `json:"heartbeat_timeout_ms" yaml:"heartbeat_timeout_ms"`

	// InboundQueueSize bounds how many inbound messages a transport will
	// buffer before applying backpressure.
	InboundQueueSize int `json:"inbound_queue_size" yaml:"inbound_queue_size"`

	// EnableTelemetry makes cmd/canopyd give its Service the Prometheus
	// sink; when false the daemon passes telemetry.NoopSink. Service itself
	// does not read it, and tracing is switched separately.
	EnableTelemetry bool `json:"enable_telemetry" yaml:"enable_telemetry"`
}

// DefaultCanopyConfig returns sensible defaults for a single-process
// development setup.
func DefaultCanopyConfig() *CanopyConfig {
	return &CanopyConfig{
		SupportedVersions:   wire.DefaultSupportedRange(),
		DefaultCodec:        wire.CodecJSON,
		SendTimeoutMS:       30_000,
		HeartbeatIntervalMS: 5_000,
		HeartbeatTimeoutMS:  15_000,
		InboundQueueSize:    256,
		EnableTelemetry:     true,
	}
}
