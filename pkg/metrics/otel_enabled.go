//go:build otel

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName names the OpenTelemetry instrumentation scope.
const DefaultServiceName = "satcom-uplink"

// OTelTracer sends uplink spans to the global OpenTelemetry provider.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer returns a tracer from otel.Tracer(serviceName).
func NewOTelTracer(serviceName string) *OTelTracer {
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	return &OTelTracer{tracer: otel.Tracer(serviceName)}
}

// OTelEnabled reports whether the binary was built with -tags otel.
func OTelEnabled() bool { return true }

var otelKinds = map[SpanKind]trace.SpanKind{
	SpanKindInternal: trace.SpanKindInternal,
	SpanKindServer:   trace.SpanKindServer,
	SpanKindClient:   trace.SpanKindClient,
}

func (t *OTelTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	cfg := newSpanConfig(opts)

	kind, ok := otelKinds[cfg.kind]
	if !ok {
		kind = trace.SpanKindInternal
	}
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(toOTelAttributes(cfg.attributes)...),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// toOTelAttributes converts the value types SpanAttributes produces; any
// other value is recorded by its fmt representation.
func toOTelAttributes(attrs map[string]interface{}) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		var kv attribute.KeyValue
		switch val := v.(type) {
		case string:
			kv = attribute.String(k, val)
		case int:
			kv = attribute.Int(k, val)
		case uint16:
			kv = attribute.Int(k, int(val))
		case int64:
			kv = attribute.Int64(k, val)
		case bool:
			kv = attribute.Bool(k, val)
		case float64:
			kv = attribute.Float64(k, val)
		default:
			kv = attribute.String(k, fmt.Sprint(val))
		}
		kvs = append(kvs, kv)
	}
	return kvs
}
