package tracing

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"fieldledger/internal/core"
)

// LogExporter writes finished spans to a logger at debug level. It lets a
// single binary emit traces without a collector.
type LogExporter struct {
	logger core.Logger
}

// NewLogExporter returns an exporter writing to logger.
func NewLogExporter(logger core.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *LogExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		sc := span.SpanContext()
		e.logger.Debug("span",
			"name", span.Name(),
			"trace_id", sc.TraceID().String(),
			"span_id", sc.SpanID().String(),
			"status", span.Status().Code.String(),
			"duration", span.EndTime().Sub(span.StartTime()),
		)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *LogExporter) Shutdown(context.Context) error { return nil }
