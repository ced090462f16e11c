// Package notify delivers SLA alerts, escalation decisions and approval
// transitions to downstream sinks. Delivery is fire-and-forget: a failing
// sink is logged and never blocks or fails the job that raised the event.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/hotdash/opsgate/pkg/contracts"
)

// Event types.
const (
	TypeSLAAlert   = "sla.alert"
	TypeEscalation = "escalation.decision"
	TypeApproval   = "approval.transition"
	TypeProposal   = "automation.proposal"
)

// Event is one notification. Key groups events about the same work item or
// approval request.
type Event struct {
	Type    string    `json:"type"`
	Key     string    `json:"key"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// Sink delivers events somewhere.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Send(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// SLAAlertEvent wraps an SLA alert.
func SLAAlertEvent(a contracts.SLAAlert) Event {
	return Event{Type: TypeSLAAlert, Key: a.ItemID, At: a.At, Payload: a}
}

// EscalationEvent wraps an escalation decision for an item.
func EscalationEvent(d contracts.EscalationDecision, at time.Time) Event {
	return Event{Type: TypeEscalation, Key: d.ItemID, At: at, Payload: d}
}

// ApprovalPayload is the body of an approval transition event.
type ApprovalPayload struct {
	Op        string                  `json:"op"`
	RequestID string                  `json:"request_id"`
	Kind      string                  `json:"kind"`
	State     contracts.ApprovalState `json:"state"`
	Summary   string                  `json:"summary"`
	Actor     string                  `json:"actor,omitempty"`
}

// ApprovalEvent describes a committed transition of req.
func ApprovalEvent(op string, req *contracts.ApprovalRequest) Event {
	p := ApprovalPayload{Op: op, RequestID: req.ID, Kind: req.Kind, State: req.State, Summary: req.Summary}
	if n := len(req.History); n > 0 {
		p.Actor = req.History[n-1].Actor
	}
	return Event{Type: TypeApproval, Key: req.ID, At: req.UpdatedAt, Payload: p}
}

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink logs to l, or to the default logger when l is nil.
func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = slog.Default().With("component", "notify")
	}
	return &LogSink{logger: l}
}

func (s *LogSink) Send(ctx context.Context, ev Event) error {
	s.logger.InfoContext(ctx, "notification", "type", ev.Type, "key", ev.Key, "at", ev.At, "payload", ev.Payload)
	return nil
}
