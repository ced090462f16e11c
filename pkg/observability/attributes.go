package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by spans and metrics.
var (
	AttrRequestID = attribute.Key("opsgate.approval.id")
	AttrKind      = attribute.Key("opsgate.approval.kind")
	AttrOp        = attribute.Key("opsgate.approval.op")
	AttrState     = attribute.Key("opsgate.approval.state")

	AttrJob      = attribute.Key("opsgate.job")
	AttrSeverity = attribute.Key("opsgate.sla.severity")
	AttrAlert    = attribute.Key("opsgate.sla.alert")

	AttrTarget  = attribute.Key("opsgate.escalation.target")
	AttrUrgency = attribute.Key("opsgate.escalation.urgency")

	AttrRoute  = attribute.Key("http.route")
	AttrStatus = attribute.Key("http.response.status_code")
)

// TransitionAttrs describes an approval transition. The request id is left
// out to keep metric cardinality bounded.
func TransitionAttrs(op, kind, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrOp.String(op),
		AttrKind.String(kind),
		AttrState.String(state),
	}
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus marks the current span failed when err is non-nil.
func SetSpanStatus(ctx context.Context, err error) {
	if err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
