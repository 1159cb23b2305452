package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// EventEnvelope wraps operational events (websocket lifecycle) published to
// the events exchange.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	RequestID string      `json:"request_id,omitempty"`
	TraceID   string      `json:"trace_id,omitempty"`
	Payload   interface{} `json:"payload"`
}

// TraceID returns the id of the span on ctx, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Headers returns the correlation headers carried with published messages.
func Headers(ctx context.Context) map[string]string {
	headers := map[string]string{}
	if id := RequestID(ctx); id != "" {
		headers["x-request-id"] = id
	}
	if id := TraceID(ctx); id != "" {
		headers["trace_id"] = id
	}
	return headers
}
