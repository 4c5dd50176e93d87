// OpenTelemetry tracing for transport operations.
package telemetry

import (
	"context"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with transport-specific helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  bool // When true, include payloads in span attributes
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return NoopTracer()
	}
	return globalTracer
}

// NoopTracer returns a tracer that records nothing.
func NoopTracer() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
}

// NewTracer creates a tracer with the given name from the global provider.
func NewTracer(name string, debug bool) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(name),
		debug:  debug,
	}
}

// NewTracerFromProvider creates a tracer from an explicit provider.
func NewTracerFromProvider(tp trace.TracerProvider, name string, debug bool) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(name),
		debug:  debug,
	}
}

// SetDebug enables or disables debug mode (payloads in spans).
func (t *Tracer) SetDebug(debug bool) {
	t.debug = debug
}

// Debug returns whether debug mode is enabled.
func (t *Tracer) Debug() bool {
	return t.debug
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Connect Spans ---

// ConnectSpanOptions contains options for connect spans.
type ConnectSpanOptions struct {
	Attempts     int
	ConnectionID string
}

// StartConnectSpan starts a span covering a whole connect sequence.
func (t *Tracer) StartConnectSpan(ctx context.Context, endpoint string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "transport.connect", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("transport.endpoint", endpoint))
	return ctx, span
}

// EndConnectSpan ends a connect span with attributes.
func (t *Tracer) EndConnectSpan(span trace.Span, opts ConnectSpanOptions, err error) {
	attrs := []attribute.KeyValue{
		attribute.Int("transport.attempts", opts.Attempts),
	}
	if opts.ConnectionID != "" {
		attrs = append(attrs, attribute.String("transport.connection_id", opts.ConnectionID))
	}
	span.SetAttributes(attrs...)
	endSpan(span, err)
}

// --- Send Spans ---

// SendSpanOptions contains options for send spans.
type SendSpanOptions struct {
	Attempts int
	Bytes    int
	Payload  string // Only included if debug=true
}

// StartSendSpan starts a span for one outbound message.
func (t *Tracer) StartSendSpan(ctx context.Context, method string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "transport.send", trace.WithSpanKind(trace.SpanKindProducer))
	if method != "" {
		span.SetAttributes(attribute.String("rpc.method", method))
	}
	return ctx, span
}

// EndSendSpan ends a send span with attributes.
func (t *Tracer) EndSendSpan(span trace.Span, opts SendSpanOptions, err error) {
	attrs := []attribute.KeyValue{
		attribute.Int("transport.attempts", opts.Attempts),
		attribute.Int("transport.bytes", opts.Bytes),
	}
	if t.debug && opts.Payload != "" {
		attrs = append(attrs, attribute.String("transport.payload", truncate(opts.Payload, 4000)))
	}
	span.SetAttributes(attrs...)
	endSpan(span, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// --- Context Propagation ---

// InjectHeader writes the trace context of ctx into a handshake header.
func InjectHeader(ctx context.Context, header http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}

// ExtractHeader reads a trace context from a handshake header.
func ExtractHeader(ctx context.Context, header http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(header))
}

// --- Helpers ---

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
