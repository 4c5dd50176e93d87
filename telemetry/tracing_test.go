package telemetry

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecordingTracer(t *testing.T, debug bool) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewTracerFromProvider(tp, "test", debug), sr
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestConnectSpan(t *testing.T) {
	tracer, sr := newRecordingTracer(t, false)

	_, span := tracer.StartConnectSpan(context.Background(), "ws://localhost:8080")
	tracer.EndConnectSpan(span, ConnectSpanOptions{Attempts: 2, ConnectionID: "abc"}, nil)

	ended := sr.Ended()
	require.Len(t, ended, 1)
	s := ended[0]
	assert.Equal(t, "transport.connect", s.Name())
	assert.Equal(t, codes.Ok, s.Status().Code)

	a := attrs(s)
	assert.Equal(t, "ws://localhost:8080", a["transport.endpoint"].AsString())
	assert.Equal(t, int64(2), a["transport.attempts"].AsInt64())
	assert.Equal(t, "abc", a["transport.connection_id"].AsString())
}

func TestConnectSpanError(t *testing.T) {
	tracer, sr := newRecordingTracer(t, false)

	_, span := tracer.StartConnectSpan(context.Background(), "ws://x")
	tracer.EndConnectSpan(span, ConnectSpanOptions{Attempts: 3}, errors.New("refused"))

	s := sr.Ended()[0]
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "refused", s.Status().Description)
	require.Len(t, s.Events(), 1)
	_, hasID := attrs(s)["transport.connection_id"]
	assert.False(t, hasID)
}

func TestSendSpanPayloadOnlyInDebug(t *testing.T) {
	for _, debug := range []bool{false, true} {
		tracer, sr := newRecordingTracer(t, debug)

		_, span := tracer.StartSendSpan(context.Background(), "ping")
		tracer.EndSendSpan(span, SendSpanOptions{Attempts: 1, Bytes: 10, Payload: `{"x":1}`}, nil)

		s := sr.Ended()[0]
		assert.Equal(t, "transport.send", s.Name())
		a := attrs(s)
		assert.Equal(t, "ping", a["rpc.method"].AsString())
		assert.Equal(t, int64(10), a["transport.bytes"].AsInt64())
		_, hasPayload := a["transport.payload"]
		assert.Equal(t, debug, hasPayload)
	}
}

func TestGlobalTracerDefaultsToNoop(t *testing.T) {
	SetGlobalTracer(nil)
	tracer := GetTracer()
	require.NotNil(t, tracer)

	_, span := tracer.StartConnectSpan(context.Background(), "ws://x")
	assert.False(t, span.SpanContext().IsValid())
	tracer.EndConnectSpan(span, ConnectSpanOptions{}, nil)
}

func TestHeaderPropagation(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tracer, _ := newRecordingTracer(t, false)
	ctx, span := tracer.StartSpan(context.Background(), "parent")
	defer span.End()

	header := http.Header{}
	InjectHeader(ctx, header)
	assert.NotEmpty(t, header.Get("traceparent"))

	extracted := ExtractHeader(context.Background(), header)
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(extracted).TraceID())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
