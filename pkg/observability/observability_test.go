package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/hotdash/opsgate/pkg/approval"
	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/sla"
	"github.com/hotdash/opsgate/pkg/store"
)

func newTestProvider(t *testing.T) (*Provider, *sdkmetric.ManualReader, *tracetest.SpanRecorder) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	spans := tracetest.NewSpanRecorder()
	p, err := NewWithProviders(
		sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
	)
	require.NoError(t, err)
	return p, reader, spans
}

// sums collects every int64 sum data point keyed by metric name, adding up
// the points across attribute sets.
func sums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if s, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					out[m.Name] += dp.Value
				}
			}
		}
	}
	return out
}

func TestNewDisabled(t *testing.T) {
	p, err := New(context.Background(), DefaultConfig())
	require.NoError(t, err)
	assert.NotNil(t, p.Tracer())

	_, finish := p.TrackOperation(context.Background(), "noop")
	finish(errors.New("boom"))
	p.RecordSLAReport(context.Background(), sla.Report{Alerts: []contracts.SLAAlert{{ItemID: "x"}}})
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestTrackOperation(t *testing.T) {
	p, reader, spans := newTestProvider(t)

	_, finish := p.TrackOperation(context.Background(), "job.sla", AttrJob.String("sla"))
	finish(nil)
	_, finish = p.TrackOperation(context.Background(), "job.sla", AttrJob.String("sla"))
	finish(errors.New("source down"))

	got := sums(t, reader)
	assert.Equal(t, int64(2), got["opsgate.operations"])
	assert.Equal(t, int64(1), got["opsgate.errors"])
	assert.Zero(t, got["opsgate.operations.active"])

	ended := spans.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "job.sla", ended[1].Name())
	require.Len(t, ended[1].Events(), 1)
	assert.Equal(t, "exception", ended[1].Events()[0].Name)
}

func TestApprovalHook(t *testing.T) {
	p, reader, _ := newTestProvider(t)
	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	m := approval.NewMachine(store.NewMemoryStore()).
		WithClock(func() time.Time { return at }).
		OnTransition(p.ApprovalHook())
	ctx := context.Background()

	req, err := m.Create(ctx, contracts.ApprovalRequest{Kind: contracts.KindSupport, Summary: "reply to ticket"}, "agent")
	require.NoError(t, err)
	_, err = m.Submit(ctx, req.ID, "agent")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sums(t, reader)["opsgate.approval.open"])

	_, err = m.Reject(ctx, req.ID, "lead", "tone")
	require.NoError(t, err)

	got := sums(t, reader)
	assert.Equal(t, int64(3), got["opsgate.approval.transitions"])
	assert.Zero(t, got["opsgate.approval.open"])
}

func TestRecordSLAAndEscalations(t *testing.T) {
	p, reader, _ := newTestProvider(t)
	ctx := context.Background()

	p.RecordSLAReport(ctx, sla.Report{Alerts: []contracts.SLAAlert{
		{ItemID: "a", Kind: contracts.SLAAlertResponse, Severity: contracts.SeverityCritical},
		{ItemID: "b", Kind: contracts.SLAAlertResolution, Severity: contracts.SeverityWarning},
	}})
	p.RecordEscalations(ctx, []contracts.EscalationDecision{
		{ShouldEscalate: true, Target: contracts.RoleManager, Urgency: contracts.UrgencyImmediate},
		{ShouldEscalate: false},
	})

	got := sums(t, reader)
	assert.Equal(t, int64(2), got["opsgate.sla.alerts"])
	assert.Equal(t, int64(1), got["opsgate.escalations"])
}

func TestTransitionAttrs(t *testing.T) {
	attrs := TransitionAttrs("approve", "growth", "approved")
	require.Len(t, attrs, 3)
	assert.Equal(t, attribute.Key("opsgate.approval.op"), attrs[0].Key)
	assert.Equal(t, "growth", attrs[1].Value.AsString())
}

func TestInitLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	l, err := InitLogging("warn", "json", &buf)
	require.NoError(t, err)
	l.Info("hidden")
	Logger("sla").Warn("breach", "item", "t1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"component":"sla"`)
	assert.Contains(t, buf.String(), `"service":"opsgate"`)

	_, err = InitLogging("loud", "text", &buf)
	assert.Error(t, err)
	_, err = InitLogging("INFO", "xml", &buf)
	assert.Error(t, err)
}

func TestHTTPHandler(t *testing.T) {
	p, _, spans := newTestProvider(t)
	var inner trace.SpanContext
	h := p.HTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = trace.SpanContextFromContext(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}), "opsgate.http")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/triage", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, inner.IsValid())
	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, trace.SpanKindServer, ended[0].SpanKind())
	assert.Equal(t, inner.TraceID(), ended[0].SpanContext().TraceID())
}
