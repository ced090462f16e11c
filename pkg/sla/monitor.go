// Package sla derives response and resolution SLA status for work items from
// their timestamps and a caller-supplied now. Nothing here reads the wall
// clock or persists state: status is recomputed on every poll.
package sla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/triage"
)

var (
	// ErrUnknownPriority is returned for an item whose priority has no target.
	ErrUnknownPriority = errors.New("sla: no target for priority")
	// ErrMissingCreatedAt is returned for an item without a creation time.
	ErrMissingCreatedAt = errors.New("sla: item has no creation time")
)

// atRiskDivisor marks a clock at risk when remaining < target/5 (20%).
const atRiskDivisor = 5

// Monitor checks items against an SLA target table.
type Monitor struct {
	targets triage.Targets
	workers int
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithTargets replaces the default SLA table.
func WithTargets(t triage.Targets) Option {
	return func(m *Monitor) { m.targets = t }
}

// WithWorkers bounds batch parallelism.
func WithWorkers(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.workers = n
		}
	}
}

// NewMonitor creates a monitor over the default target table.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{targets: triage.DefaultTargets(), workers: 8}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check computes the SLA status of item at now.
func (m *Monitor) Check(item contracts.WorkItem, now time.Time) (contracts.SLAStatus, error) {
	if item.CreatedAt.IsZero() {
		return contracts.SLAStatus{}, fmt.Errorf("%w: %s", ErrMissingCreatedAt, item.ID)
	}
	target, ok := m.targets.For(item.Priority)
	if !ok {
		return contracts.SLAStatus{}, fmt.Errorf("%w %s: %s", ErrUnknownPriority, item.Priority, item.ID)
	}

	responseAt := item.FirstResponseAt
	if !responseAt.Valid() {
		// A resolved item was necessarily answered.
		responseAt = item.ResolvedAt
	}
	resp := clock(item.CreatedAt, responseAt, target.ResponseMinutes, now)
	reso := clock(item.CreatedAt, item.ResolvedAt, target.ResolutionMinutes, now)

	st := contracts.SLAStatus{
		ItemID:              item.ID,
		Priority:            item.Priority,
		ResponseMinutes:     resp.elapsed,
		ResolutionMinutes:   reso.elapsed,
		ResponseTarget:      target.ResponseMinutes,
		ResolutionTarget:    target.ResolutionMinutes,
		ResponseBreached:    resp.breached,
		ResolutionBreached:  reso.breached,
		ResponseRemaining:   resp.remaining,
		ResolutionRemaining: reso.remaining,
	}
	switch {
	case resp.breached || reso.breached:
		st.State = contracts.SLABreached
	case resp.atRisk(target.ResponseMinutes) || reso.atRisk(target.ResolutionMinutes):
		st.State = contracts.SLAAtRisk
	default:
		st.State = contracts.SLAOnTrack
	}
	return st, nil
}

type clockState struct {
	elapsed   contracts.Optional[int64]
	open      bool
	breached  bool
	remaining int64
	overdue   int64
}

// clock evaluates one SLA clock. Minutes are floored. An event that has
// happened freezes the clock; otherwise it runs against now.
func clock(created time.Time, event contracts.Optional[time.Time], target int64, now time.Time) clockState {
	if at, ok := event.Get(); ok {
		elapsed := minutesBetween(created, at)
		return clockState{
			elapsed:  contracts.Some(elapsed),
			breached: elapsed > target,
			overdue:  elapsed - target,
		}
	}
	remaining := target - minutesBetween(created, now)
	return clockState{
		open:      true,
		breached:  remaining < 0,
		remaining: remaining,
		overdue:   -remaining,
	}
}

// atRisk reports whether less than a fifth of the target remains. A clock
// whose event happened has zero remaining and so counts as at risk unless it
// breached.
func (c clockState) atRisk(target int64) bool {
	return !c.breached && c.remaining*atRiskDivisor < target
}

// warn reports whether an at-risk warning is still actionable: the clock is
// running and has time left.
func (c clockState) warn(target int64) bool {
	return c.open && c.remaining > 0 && c.atRisk(target)
}

// minutesBetween floors the span to whole minutes. Clock skew that puts the end
// before the start counts as zero elapsed.
func minutesBetween(start, end time.Time) int64 {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int64(d / time.Minute)
}

// Alerts returns one alert per breached clock and one per at-risk clock.
// A breach supersedes the warning for the same clock.
func (m *Monitor) Alerts(item contracts.WorkItem, now time.Time) ([]contracts.SLAAlert, error) {
	st, err := m.Check(item, now)
	if err != nil {
		return nil, err
	}
	return alertsFor(item, st, now), nil
}

func alertsFor(item contracts.WorkItem, st contracts.SLAStatus, now time.Time) []contracts.SLAAlert {
	responseAt := item.FirstResponseAt
	if !responseAt.Valid() {
		responseAt = item.ResolvedAt
	}
	resp := clock(item.CreatedAt, responseAt, st.ResponseTarget, now)
	reso := clock(item.CreatedAt, item.ResolvedAt, st.ResolutionTarget, now)

	var alerts []contracts.SLAAlert
	add := func(kind contracts.SLAAlertKind, c clockState, target int64) {
		label := "Response"
		if kind == contracts.SLAAlertResolution {
			label = "Resolution"
		}
		switch {
		case c.breached:
			alerts = append(alerts, contracts.SLAAlert{
				ItemID:   st.ItemID,
				Kind:     kind,
				Severity: contracts.SeverityCritical,
				Message:  fmt.Sprintf("%s SLA breached by %d minutes", label, c.overdue),
				Minutes:  c.overdue,
				At:       now,
			})
		case c.warn(target):
			alerts = append(alerts, contracts.SLAAlert{
				ItemID:   st.ItemID,
				Kind:     kind,
				Severity: contracts.SeverityWarning,
				Message:  fmt.Sprintf("%s SLA at risk: %d minutes remaining", label, c.remaining),
				Minutes:  c.remaining,
				At:       now,
			})
		}
	}
	add(contracts.SLAAlertResponse, resp, st.ResponseTarget)
	add(contracts.SLAAlertResolution, reso, st.ResolutionTarget)
	return alerts
}

// ItemError records an item the batch could not evaluate.
type ItemError struct {
	ItemID string `json:"item_id"`
	Error  string `json:"error"`
}

// Summary aggregates a batch.
type Summary struct {
	Total              int `json:"total"`
	OnTrack            int `json:"on_track"`
	AtRisk             int `json:"at_risk"`
	Breached           int `json:"breached"`
	ResponseBreaches   int `json:"response_breaches"`
	ResolutionBreaches int `json:"resolution_breaches"`
	Skipped            int `json:"skipped"`
}

// Report is the result of a batch run.
type Report struct {
	Statuses []contracts.SLAStatus `json:"statuses"`
	Alerts   []contracts.SLAAlert  `json:"alerts"`
	Skipped  []ItemError           `json:"skipped,omitempty"`
	Summary  Summary               `json:"summary"`
}

// Monitor evaluates every item at now. Malformed items are reported in
// Skipped and never abort the batch. Cancelling ctx stops scheduling new items;
// the report then covers only items fully evaluated before cancellation.
func (m *Monitor) Monitor(ctx context.Context, items []contracts.WorkItem, now time.Time) (Report, error) {
	type result struct {
		done   bool
		status contracts.SLAStatus
		alerts []contracts.SLAAlert
		err    error
	}
	results := make([]result, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			st, err := m.Check(items[i], now)
			if err != nil {
				results[i] = result{done: true, err: err}
				return nil
			}
			results[i] = result{done: true, status: st, alerts: alertsFor(items[i], st, now)}
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Statuses: []contracts.SLAStatus{}, Alerts: []contracts.SLAAlert{}}
	for i, r := range results {
		if !r.done {
			continue
		}
		if r.err != nil {
			rep.Skipped = append(rep.Skipped, ItemError{ItemID: items[i].ID, Error: r.err.Error()})
			rep.Summary.Skipped++
			continue
		}
		rep.Statuses = append(rep.Statuses, r.status)
		rep.Alerts = append(rep.Alerts, r.alerts...)
		rep.Summary.Total++
		switch r.status.State {
		case contracts.SLABreached:
			rep.Summary.Breached++
		case contracts.SLAAtRisk:
			rep.Summary.AtRisk++
		default:
			rep.Summary.OnTrack++
		}
		if r.status.ResponseBreached {
			rep.Summary.ResponseBreaches++
		}
		if r.status.ResolutionBreached {
			rep.Summary.ResolutionBreaches++
		}
	}
	return rep, ctx.Err()
}

var defaultMonitor = NewMonitor()

// CheckSLA checks item against the default SLA table.
func CheckSLA(item contracts.WorkItem, now time.Time) (contracts.SLAStatus, error) {
	return defaultMonitor.Check(item, now)
}

// GenerateAlerts returns alerts for item against the default SLA table.
func GenerateAlerts(item contracts.WorkItem, now time.Time) ([]contracts.SLAAlert, error) {
	return defaultMonitor.Alerts(item, now)
}

// MonitorConversations runs a batch against the default SLA table.
func MonitorConversations(ctx context.Context, items []contracts.WorkItem, now time.Time) (Report, error) {
	return defaultMonitor.Monitor(ctx, items, now)
}
