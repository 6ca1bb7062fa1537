//go:build !otel

package metrics

// DefaultServiceName names the OpenTelemetry instrumentation scope.
const DefaultServiceName = "satcom-uplink"

// OTelTracer stands in for the OpenTelemetry adapter in builds without
// -tags otel. It records nothing.
type OTelTracer struct {
	NoOpTracer
}

// NewOTelTracer returns the stand-in tracer.
func NewOTelTracer(string) *OTelTracer { return &OTelTracer{} }

// OTelEnabled reports whether the binary was built with -tags otel.
func OTelEnabled() bool { return false }
