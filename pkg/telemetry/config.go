package telemetry

import (
	"os"
	"strconv"
	"strings"

	"github.com/memdump-analysis/pkg/config"
)

// Protocols accepted for the OTLP exporter.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// Config describes how spans are exported.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Protocol       string
	Insecure       bool
	Sampler        string
	SampleRatio    float64
	Headers        map[string]string
	Attributes     map[string]string
}

// FromConfig builds a Config from the telemetry section of the service
// configuration, then applies the standard OTEL_* environment overrides.
func FromConfig(c config.TelemetryConfig, version string) *Config {
	cfg := &Config{
		Enabled:        c.Enabled,
		ServiceName:    c.ServiceName,
		ServiceVersion: version,
		Endpoint:       c.Endpoint,
		Protocol:       normalizeProtocol(c.Protocol),
		Insecure:       c.Insecure,
		Sampler:        c.Sampler,
		SampleRatio:    c.SampleRatio,
		Headers:        copyMap(c.Headers),
		Attributes:     copyMap(c.Attributes),
	}
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("OTEL_ENABLED"); ok {
		c.Enabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"); v != "" {
		c.Protocol = normalizeProtocol(v)
	}
	if v, ok := os.LookupEnv("OTEL_EXPORTER_OTLP_INSECURE"); ok {
		c.Insecure = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("OTEL_TRACES_SAMPLER"); v != "" {
		c.Sampler = v
	}
	if v := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); v != "" {
		if ratio, err := strconv.ParseFloat(v, 64); err == nil {
			c.SampleRatio = ratio
		}
	}
	for k, v := range parseKeyValuePairs(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")) {
		c.Headers[k] = v
	}
	for k, v := range parseKeyValuePairs(os.Getenv("OTEL_RESOURCE_ATTRIBUTES")) {
		c.Attributes[k] = v
	}
}

func normalizeProtocol(p string) string {
	switch strings.ToLower(p) {
	case "http", "http/protobuf":
		return ProtocolHTTP
	default:
		return ProtocolGRPC
	}
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// parseKeyValuePairs parses "k1=v1,k2=v2". Values may contain '='.
func parseKeyValuePairs(s string) map[string]string {
	result := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		result[key] = strings.TrimSpace(value)
	}
	return result
}
