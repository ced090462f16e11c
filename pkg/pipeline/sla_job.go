// Package pipeline wires the decision engines into the two polling jobs: the
// SLA job (monitor, escalate, notify) and the scan job (scan, draft, submit
// for approval).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/escalation"
	"github.com/hotdash/opsgate/pkg/notify"
	"github.com/hotdash/opsgate/pkg/sla"
	"github.com/hotdash/opsgate/pkg/sources"
	"github.com/hotdash/opsgate/pkg/triage"
)

// Notifier accepts events for fire-and-forget delivery. *notify.Dispatcher
// implements it.
type Notifier interface {
	Notify(ev notify.Event) bool
}

type discard struct{}

func (discard) Notify(notify.Event) bool { return true }

// SLAResult is the outcome of one SLA run.
type SLAResult struct {
	Report      sla.Report                     `json:"report"`
	Escalations []contracts.EscalationDecision `json:"escalations"`
	Notified    int                            `json:"notified"`
}

// SLAJob checks open work items against their SLA targets, evaluates the
// escalation rules for each and notifies about new alerts and escalations.
// An alert or escalation is notified once while the item stays in the feed.
type SLAJob struct {
	source     sources.ConversationSource
	classifier *triage.Classifier
	monitor    *sla.Monitor
	escalation *escalation.Engine
	notifier   Notifier
	clock      func() time.Time
	logger     *slog.Logger

	mu sync.Mutex
	seen map[string]map[string]struct{}
}

// SLAOption configures an SLAJob.
type SLAOption func(*SLAJob)

// WithClassifier sets the triage classifier used for escalation signals.
func WithClassifier(c *triage.Classifier) SLAOption {
	return func(j *SLAJob) { j.classifier = c }
}

// WithMonitor sets the SLA monitor.
func WithMonitor(m *sla.Monitor) SLAOption {
	return func(j *SLAJob) { j.monitor = m }
}

// WithEscalation sets the escalation engine.
func WithEscalation(e *escalation.Engine) SLAOption {
	return func(j *SLAJob) { j.escalation = e }
}

// WithSLANotifier sets where events go.
func WithSLANotifier(n Notifier) SLAOption {
	return func(j *SLAJob) { j.notifier = n }
}

// NewSLAJob returns a job over src with the stock engines.
func NewSLAJob(src sources.ConversationSource, opts ...SLAOption) *SLAJob {
	j := &SLAJob{
		source:     src,
		classifier: triage.New(),
		monitor:    sla.NewMonitor(),
		escalation: escalation.NewEngine(),
		notifier:   discard{},
		clock:      time.Now,
		logger:     slog.Default().With("component", "pipeline", "job", "sla"),
		seen:       make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// WithClock overrides the clock for deterministic testing.
func (j *SLAJob) WithClock(clock func() time.Time) *SLAJob {
	j.clock = clock
	return j
}

// Run performs one pass. Per-item problems are reported in the result and
// never abort the pass.
func (j *SLAJob) Run(ctx context.Context) (SLAResult, error) {
	items, err := j.source.Conversations(ctx)
	if err != nil {
		return SLAResult{}, fmt.Errorf("load work items: %w", err)
	}
	now := j.clock().UTC()

	rep, err := j.monitor.Monitor(ctx, items, now)
	if err != nil {
		return SLAResult{Report: rep}, err
	}
	res := SLAResult{Report: rep, Escalations: []contracts.EscalationDecision{}}

	statuses := make(map[string]*contracts.SLAStatus, len(rep.Statuses))
	for i := range rep.Statuses {
		statuses[rep.Statuses[i].ItemID] = &rep.Statuses[i]
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	current := make(map[string]struct{}, len(items))

	for _, a := range rep.Alerts {
		current[a.ItemID] = struct{}{}
		if j.firstSeen(a.ItemID, "alert:"+string(a.Kind)+":"+string(a.Severity)) && j.notifier.Notify(notify.SLAAlertEvent(a)) {
			res.Notified++
		}
	}

	for _, item := range items {
		st, ok := statuses[item.ID]
		if !ok || closed(item.Status) {
			continue
		}
		current[item.ID] = struct{}{}
		tr := j.classifier.Classify(item)
		d := j.escalation.Evaluate(escalation.Context{
			ItemID:   item.ID,
			Priority: item.Priority,
			SLA:      st,
			History:  item.CustomerHistory,
			Message:  item.Content.OrElse(""),
			Triage:   &tr,
		})
		if !d.ShouldEscalate {
			continue
		}
		res.Escalations = append(res.Escalations, d)
		key := "escalation:" + strings.Join(sortedCopy(d.TriggeredRules), ",")
		if j.firstSeen(item.ID, key) && j.notifier.Notify(notify.EscalationEvent(d, now)) {
			res.Notified++
		}
	}

	for id := range j.seen {
		if _, ok := current[id]; !ok {
			delete(j.seen, id)
		}
	}

	j.logger.InfoContext(ctx, "sla pass finished",
		"items", len(items),
		"breached", rep.Summary.Breached,
		"at_risk", rep.Summary.AtRisk,
		"skipped", rep.Summary.Skipped,
		"escalations", len(res.Escalations),
		"notified", res.Notified,
	)
	return res, nil
}

func (j *SLAJob) firstSeen(itemID, key string) bool {
	keys, ok := j.seen[itemID]
	if !ok {
		keys = make(map[string]struct{})
		j.seen[itemID] = keys
	}
	if _, dup := keys[key]; dup {
		return false
	}
	keys[key] = struct{}{}
	return true
}

func closed(s contracts.WorkItemStatus) bool {
	return s == contracts.WorkItemResolved || s == contracts.WorkItemClosed
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
