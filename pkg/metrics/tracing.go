package metrics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Span names for uplink operations.
const (
	SpanDatagram = "uplink.datagram" // one datagram on the bus, server kind
	SpanInspect  = "uplink.inspect"  // firewall inspection
	SpanExecute  = "uplink.execute"  // command handler
	SpanBuild    = "uplink.build"    // ground station packet build
	SpanSend     = "uplink.send"     // ground station transmit, client kind
)

// Tracer starts spans. NoOpTracer, SimpleTracer and OTelTracer implement it.
type Tracer interface {
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder)
}

// SpanEnder ends a span. A non-nil err marks it failed.
type SpanEnder func(err error)

// SpanKind is the role of a span.
type SpanKind int

const (
	SpanKindInternal SpanKind = iota
	SpanKindServer
	SpanKindClient
)

// SpanOption configures StartSpan.
type SpanOption func(*spanConfig)

type spanConfig struct {
	kind       SpanKind
	attributes map[string]interface{}
}

func newSpanConfig(opts []SpanOption) spanConfig {
	cfg := spanConfig{attributes: make(map[string]interface{})}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithSpanKind sets the span kind (default SpanKindInternal).
func WithSpanKind(kind SpanKind) SpanOption {
	return func(c *spanConfig) { c.kind = kind }
}

// WithAttributes adds attributes. Repeated options merge, later keys win.
func WithAttributes(attrs map[string]interface{}) SpanOption {
	return func(c *spanConfig) {
		for k, v := range attrs {
			c.attributes[k] = v
		}
	}
}

// SpanAttributes are the uplink attributes attached to spans.
type SpanAttributes struct {
	Source          string
	GroundStationID string
	Command         string
	SequenceCount   int
	Bytes           int
}

// ToMap returns the attributes under their exported keys. Zero values are
// omitted, except the sequence count, which accompanies any command.
func (a SpanAttributes) ToMap() map[string]interface{} {
	m := make(map[string]interface{}, 5)
	if a.Source != "" {
		m["net.peer.address"] = a.Source
	}
	if a.GroundStationID != "" {
		m["uplink.ground_station_id"] = a.GroundStationID
	}
	if a.Command != "" {
		m["uplink.command"] = a.Command
		m["uplink.sequence_count"] = a.SequenceCount
	}
	if a.Bytes > 0 {
		m["network.bytes_received"] = a.Bytes
	}
	return m
}

// NoOpTracer discards spans.
type NoOpTracer struct{}

func (NoOpTracer) StartSpan(ctx context.Context, _ string, _ ...SpanOption) (context.Context, SpanEnder) {
	return ctx, func(error) {}
}

// RecordedSpan is a span completed under a SimpleTracer.
type RecordedSpan struct {
	Name       string
	Kind       SpanKind
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Attributes map[string]interface{}
	Error      error
	TraceID    string
	SpanID     string
	ParentID   string
}

// DefaultSpanCapacity is how many completed spans a SimpleTracer retains.
const DefaultSpanCapacity = 1024

// SimpleTracer keeps the most recent completed spans in memory and can log
// each one at debug level. It backs `--tracing simple` and tests.
type SimpleTracer struct {
	capacity int
	logger   *Logger

	mu    sync.Mutex
	spans []RecordedSpan
	next  int // ring position once len(spans) == capacity
}

// SimpleTracerOption configures NewSimpleTracer.
type SimpleTracerOption func(*SimpleTracer)

// WithSpanCapacity bounds the retained spans; older spans are overwritten.
func WithSpanCapacity(n int) SimpleTracerOption {
	return func(t *SimpleTracer) {
		if n > 0 {
			t.capacity = n
		}
	}
}

// WithSpanLogger logs every completed span to l at debug level.
func WithSpanLogger(l *Logger) SimpleTracerOption {
	return func(t *SimpleTracer) { t.logger = l }
}

// NewSimpleTracer returns an in-memory tracer.
func NewSimpleTracer(opts ...SimpleTracerOption) *SimpleTracer {
	t := &SimpleTracer{capacity: DefaultSpanCapacity}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type spanContextKey struct{}

var spanIDs atomic.Uint64

// nextSpanID returns a process-unique 16-hex-digit span ID.
func nextSpanID() string {
	return fmt.Sprintf("%016x", spanIDs.Add(1))
}

// newTraceID returns a random 32-hex-digit trace ID, the W3C trace-context
// width.
func newTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// StartSpan starts a span that inherits the trace of any span already in
// ctx.
func (t *SimpleTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	cfg := newSpanConfig(opts)
	span := &RecordedSpan{
		Name:       name,
		Kind:       cfg.kind,
		StartTime:  time.Now(),
		Attributes: cfg.attributes,
		SpanID:     nextSpanID(),
	}
	if parent, ok := ctx.Value(spanContextKey{}).(*RecordedSpan); ok {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	} else {
		span.TraceID = newTraceID()
	}

	var once sync.Once
	return context.WithValue(ctx, spanContextKey{}, span), func(err error) {
		once.Do(func() { t.finish(*span, err) })
	}
}

func (t *SimpleTracer) finish(span RecordedSpan, err error) {
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	span.Error = err

	t.mu.Lock()
	if len(t.spans) < t.capacity {
		t.spans = append(t.spans, span)
	} else {
		t.spans[t.next] = span
		t.next = (t.next + 1) % t.capacity
	}
	t.mu.Unlock()

	if t.logger != nil && t.logger.Enabled(LevelDebug) {
		fields := Fields{"span": span.Name, "trace_id": span.TraceID, "duration": span.Duration.String()}
		for k, v := range span.Attributes {
			fields[k] = v
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		t.logger.Debug("span finished", fields)
	}
}

// Spans returns the retained spans, oldest first.
func (t *SimpleTracer) Spans() []RecordedSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]RecordedSpan, 0, len(t.spans))
	out = append(out, t.spans[t.next:]...)
	return append(out, t.spans[:t.next]...)
}

// Reset drops every retained span.
func (t *SimpleTracer) Reset() {
	t.mu.Lock()
	t.spans = t.spans[:0]
	t.next = 0
	t.mu.Unlock()
}

type tracerHolder struct{ Tracer }

var globalTracer atomic.Pointer[tracerHolder]

func init() {
	globalTracer.Store(&tracerHolder{NoOpTracer{}})
}

// SetTracer replaces the process-wide tracer. nil restores NoOpTracer.
func SetTracer(t Tracer) {
	if t == nil {
		t = NoOpTracer{}
	}
	globalTracer.Store(&tracerHolder{t})
}

// GetTracer returns the process-wide tracer.
func GetTracer() Tracer { return globalTracer.Load().Tracer }

// StartSpan starts a span on the process-wide tracer.
func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	return GetTracer().StartSpan(ctx, name, opts...)
}
