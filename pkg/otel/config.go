package otel

import (
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"urbanmove/pkg/config"
)

// Protocol represents OTLP transport protocol
type Protocol string

const (
	ProtocolGRPC         Protocol = "grpc"
	ProtocolHTTPProtobuf Protocol = "http/protobuf"
	ProtocolHTTPJSON     Protocol = "http/json"
)

// SignalType represents the OTEL signal type
type SignalType string

const (
	SignalTraces  SignalType = "traces"
	SignalMetrics SignalType = "metrics"
)

// ExporterConfig holds parsed OTLP exporter configuration for a signal
type ExporterConfig struct {
	Endpoint    string
	Protocol    Protocol
	Headers     map[string]string
	Timeout     time.Duration
	Insecure    bool
	Compression string
}

// IsTracingEnabled returns true if OTEL tracing is enabled
func IsTracingEnabled() bool {
	return config.IsTrue(config.GetEnv("OTEL_TRACING_ENABLED", "false"))
}

// IsMetricsEnabled returns true if OTEL metrics is enabled
func IsMetricsEnabled() bool {
	return config.IsTrue(config.GetEnv("OTEL_METRICS_ENABLED", "false"))
}

// signalEnv looks up OTEL_EXPORTER_OTLP_<SIGNAL>_<NAME>, then the base
// OTEL_EXPORTER_OTLP_<NAME>.
type signalEnv string

func (s signalEnv) get(name, defaultValue string) string {
	return config.FirstEnv(defaultValue,
		"OTEL_EXPORTER_OTLP_"+string(s)+"_"+name,
		"OTEL_EXPORTER_OTLP_"+name,
	)
}

// GetExporterConfig returns the exporter configuration for a specific signal type.
// It resolves signal-specific environment variables with fallback to base variables.
func GetExporterConfig(signal SignalType) ExporterConfig {
	env := signalEnv(strings.ToUpper(string(signal)))

	// Protocol first: it decides the default endpoint shape.
	protocol := parseProtocol(env.get("PROTOCOL", string(ProtocolHTTPProtobuf)))
	endpoint := resolveEndpoint(signal, env, protocol)

	insecure := strings.HasPrefix(endpoint, "http://")
	if v := env.get("INSECURE", ""); v != "" {
		insecure = config.IsTrue(v)
	}

	return ExporterConfig{
		Endpoint:    endpoint,
		Protocol:    protocol,
		Headers:     parseHeaders(env.get("HEADERS", "")),
		Timeout:     parseDuration(env.get("TIMEOUT", "10s"), 10*time.Second),
		Insecure:    insecure,
		Compression: env.get("COMPRESSION", ""),
	}
}

func parseProtocol(s string) Protocol {
	switch strings.ToLower(s) {
	case "grpc":
		return ProtocolGRPC
	case "http/json":
		return ProtocolHTTPJSON
	default:
		return ProtocolHTTPProtobuf
	}
}

// resolveEndpoint prefers the signal-specific endpoint (used as-is), then the
// base endpoint with the signal path appended, then the protocol default.
func resolveEndpoint(signal SignalType, env signalEnv, protocol Protocol) string {
	if ep := config.GetEnv("OTEL_EXPORTER_OTLP_"+string(env)+"_ENDPOINT", ""); ep != "" {
		return normalizeEndpoint(ep, protocol)
	}
	if ep := config.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""); ep != "" {
		return appendSignalPath(normalizeEndpoint(ep, protocol), signal, protocol)
	}
	if protocol == ProtocolGRPC {
		return "localhost:4317"
	}
	return "http://localhost:4318/v1/" + string(signal)
}

// normalizeEndpoint reduces gRPC endpoints to host:port and gives HTTP ones a scheme.
func normalizeEndpoint(endpoint string, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		endpoint = strings.TrimPrefix(endpoint, "http://")
		endpoint = strings.TrimPrefix(endpoint, "https://")
		if idx := strings.Index(endpoint, "/"); idx != -1 {
			endpoint = endpoint[:idx]
		}
		return endpoint
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	return endpoint
}

func appendSignalPath(endpoint string, signal SignalType, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		return endpoint
	}

	signalPath := "/v1/" + string(signal)
	u, err := url.Parse(endpoint)
	if err != nil {
		return strings.TrimSuffix(endpoint, "/") + signalPath
	}
	if strings.HasSuffix(u.Path, signalPath) {
		return endpoint
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + signalPath
	return u.String()
}

// parseHeaders parses header string in format "key1=value1,key2=value2"
func parseHeaders(headerStr string) map[string]string {
	headers := make(map[string]string)
	if headerStr == "" {
		return headers
	}

	for _, pair := range strings.Split(headerStr, ",") {
		pair = strings.TrimSpace(pair)
		// Values may themselves contain '=' (base64 credentials).
		if idx := strings.Index(pair, "="); idx > 0 {
			key := strings.TrimSpace(pair[:idx])
			headers[key] = pair[idx+1:]
			slog.Debug("Parsed OTEL header", "key", key, "value_length", len(pair)-idx-1)
		}
	}

	return headers
}

// parseDuration accepts Go durations ("10s") and OTEL millisecond integers ("10000").
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}
