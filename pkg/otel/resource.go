package otel

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"urbanmove/pkg/config"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const (
	// ServiceName is the name reported on every span and metric
	ServiceName = "urbanmove"
)

// Version is set at build time via -ldflags="-X urbanmove/pkg/otel.Version=..."
var Version = "dev"

// serviceInstanceID prefers OTEL_SERVICE_INSTANCE_ID, then the hostname, then the pid.
func serviceInstanceID() string {
	if id := os.Getenv("OTEL_SERVICE_INSTANCE_ID"); id != "" {
		return id
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return fmt.Sprintf("%s-%d", ServiceName, os.Getpid())
}

// NewResource creates the resource shared by the tracing and metrics providers.
func NewResource() (*resource.Resource, error) {
	return resource.New(context.Background(),
		resource.WithHost(),
		resource.WithProcess(),
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(Version),
			semconv.ServiceNamespace(config.GetEnv("OTEL_SERVICE_NAMESPACE", "urbanmove")),
			semconv.ServiceInstanceID(serviceInstanceID()),
			semconv.DeploymentEnvironment(config.GetEnv("OTEL_DEPLOYMENT_ENVIRONMENT", "development")),
			semconv.ProcessRuntimeName("go"),
			semconv.ProcessRuntimeVersion(runtime.Version()),
		),
		// Last, so OTEL_SERVICE_NAME and OTEL_RESOURCE_ATTRIBUTES win.
		resource.WithFromEnv(),
	)
}
