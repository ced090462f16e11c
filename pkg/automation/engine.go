// Package automation scans ad performance metrics against configured
// thresholds and proposes actions. Every proposal requires human approval;
// nothing here applies a change.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/signals"
)

// Tool names carried in action steps.
const (
	ToolCampaignPause  = "ads.campaign.pause"
	ToolCampaignResume = "ads.campaign.resume"
	ToolCampaignBudget = "ads.campaign.update_budget"
	ToolKeywordPause   = "ads.keyword.pause"
	ToolKeywordResume  = "ads.keyword.resume"
)

// Rule identifiers used in evidence and data-gap records.
const (
	RulePauseLowCTR     = "pause_low_ctr"
	RulePauseLowROAS    = "pause_low_roas"
	RuleIncreaseBudget  = "increase_budget"
	RuleDecreaseBudget  = "decrease_budget"
	RulePauseKeywordCTR = "pause_keyword_ctr"
	RuleMinSpend        = "min_spend"
	RuleMinImpressions  = "min_keyword_impressions"
)

// ValidationError reports a malformed metric record.
type ValidationError struct {
	EntityID string
	Field    string
	Message  string
}

func (e *ValidationError) Error() string {
	if e.EntityID == "" {
		return fmt.Sprintf("invalid metric: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid metric %s: %s: %s", e.EntityID, e.Field, e.Message)
}

// DataGap records a rule that could not be evaluated for an entity.
type DataGap struct {
	EntityID string `json:"entity_id"`
	Rule     string `json:"rule"`
	Reason   string `json:"reason"`
}

// ItemFailure is a metric whose evaluation failed. Other metrics still scan.
type ItemFailure struct {
	Index    int    `json:"index"`
	EntityID string `json:"entity_id"`
	Error    string `json:"error"`
}

// ScanResult is the outcome of one scan. Actions are ordered by severity,
// highest first, and by input order within a severity.
type ScanResult struct {
	Actions  []contracts.ProposedAction `json:"actions"`
	Gaps     []DataGap                  `json:"gaps"`
	Failures []ItemFailure              `json:"failures"`
}

// Engine evaluates metrics against thresholds.
type Engine struct {
	thresholds Thresholds
	workers    int
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds concurrent evaluation during Scan.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine validates th and returns an engine.
func NewEngine(th Thresholds, opts ...Option) (*Engine, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		thresholds: th,
		workers:    8,
		logger:     slog.Default().With("component", "automation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Thresholds returns the active configuration.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate applies every rule to one metric. It is pure: the same metric and
// thresholds always yield the same actions.
func (e *Engine) Evaluate(m contracts.PerformanceMetric) ([]contracts.ProposedAction, []DataGap, error) {
	if err := validate(m); err != nil {
		return nil, nil, err
	}
	switch m.Kind {
	case contracts.EntityKeyword:
		return e.evaluateKeyword(m)
	default:
		return e.evaluateCampaign(m)
	}
}

func validate(m contracts.PerformanceMetric) error {
	if m.EntityID == "" {
		return &ValidationError{Field: "entity_id", Message: "required"}
	}
	switch m.Kind {
	case contracts.EntityCampaign, "":
	case contracts.EntityKeyword:
		if m.CampaignID == "" {
			return &ValidationError{EntityID: m.EntityID, Field: "campaign_id", Message: "required for keywords"}
		}
	default:
		return &ValidationError{EntityID: m.EntityID, Field: "kind", Message: fmt.Sprintf("unknown entity kind %q", m.Kind)}
	}
	if m.Impressions < 0 || m.Clicks < 0 || m.Conversions < 0 || m.Spend < 0 || m.Revenue < 0 || m.DailyBudget < 0 {
		return &ValidationError{EntityID: m.EntityID, Field: "metrics", Message: "counts and amounts must not be negative"}
	}
	if m.Clicks > m.Impressions {
		return &ValidationError{EntityID: m.EntityID, Field: "clicks", Message: "exceeds impressions"}
	}
	return nil
}

func (e *Engine) evaluateCampaign(m contracts.PerformanceMetric) ([]contracts.ProposedAction, []DataGap, error) {
	th := e.thresholds
	if m.Spend < th.MinSpendForAction {
		return nil, []DataGap{{
			EntityID: m.EntityID,
			Rule:     RuleMinSpend,
			Reason:   fmt.Sprintf("spend %s below minimum %s", m.Spend, th.MinSpendForAction),
		}}, nil
	}

	var gaps []DataGap
	ctr, hasCTR := signals.CTR(m).Get()
	roas, hasROAS := signals.ROAS(m).Get()
	if !hasCTR {
		gaps = append(gaps, DataGap{EntityID: m.EntityID, Rule: RulePauseLowCTR, Reason: "CTR undefined: no impressions"})
	}
	if !hasROAS {
		gaps = append(gaps, DataGap{EntityID: m.EntityID, Rule: RulePauseLowROAS, Reason: "ROAS undefined: no spend"})
	}

	lowCTR := hasCTR && ctr.CmpBasisPoints(th.PauseLowCTRBps) < 0
	lowROAS := hasROAS && roas.CmpMilli(th.PauseLowROASMilli) < 0

	// At most one campaign action; pause wins over any budget change.
	switch {
	case lowCTR || lowROAS:
		return []contracts.ProposedAction{e.pauseCampaign(m, ctr, roas, lowCTR, lowROAS)}, gaps, nil
	case !hasROAS:
		return nil, gaps, nil
	case roas.CmpMilli(th.IncreaseBudgetROASMilli) >= 0:
		return []contracts.ProposedAction{e.increaseBudget(m, roas)}, gaps, nil
	case roas.CmpMilli(th.DecreaseBudgetROASMilli) < 0:
		return []contracts.ProposedAction{e.decreaseBudget(m, roas)}, gaps, nil
	}
	return nil, gaps, nil
}

func (e *Engine) evaluateKeyword(m contracts.PerformanceMetric) ([]contracts.ProposedAction, []DataGap, error) {
	th := e.thresholds
	if m.Spend < th.MinSpendForAction {
		return nil, []DataGap{{
			EntityID: m.EntityID,
			Rule:     RuleMinSpend,
			Reason:   fmt.Sprintf("spend %s below minimum %s", m.Spend, th.MinSpendForAction),
		}}, nil
	}
	if m.Impressions < th.MinKeywordImpressions {
		return nil, []DataGap{{
			EntityID: m.EntityID,
			Rule:     RuleMinImpressions,
			Reason:   fmt.Sprintf("%d impressions below minimum %d", m.Impressions, th.MinKeywordImpressions),
		}}, nil
	}
	ctr, ok := signals.CTR(m).Get()
	if !ok {
		return nil, []DataGap{{EntityID: m.EntityID, Rule: RulePauseKeywordCTR, Reason: "CTR undefined: no impressions"}}, nil
	}
	if ctr.CmpBasisPoints(th.PauseKeywordCTRBps) < 0 {
		return []contracts.ProposedAction{e.pauseKeyword(m, ctr)}, nil, nil
	}
	return nil, nil, nil
}

// Scan evaluates metrics concurrently. A malformed or panicking item is
// recorded in Failures and does not abort the scan. When ctx is cancelled
// before all items finish, Scan returns the items that did finish together
// with ctx.Err().
func (e *Engine) Scan(ctx context.Context, metrics []contracts.PerformanceMetric) (ScanResult, error) {
	type outcome struct {
		done    bool
		actions []contracts.ProposedAction
		gaps    []DataGap
		err     error
	}
	results := make([]outcome, len(metrics))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range metrics {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := &results[i]
			r.actions, r.gaps, r.err = e.safeEvaluate(metrics[i])
			r.done = true
			return nil
		})
	}
	werr := g.Wait()
	if werr == nil {
		werr = ctx.Err()
	}

	res := ScanResult{
		Actions:  []contracts.ProposedAction{},
		Gaps:     []DataGap{},
		Failures: []ItemFailure{},
	}
	for i, r := range results {
		if !r.done {
			continue
		}
		if r.err != nil {
			e.logger.WarnContext(ctx, "metric evaluation failed", "index", i, "entity_id", metrics[i].EntityID, "error", r.err)
			res.Failures = append(res.Failures, ItemFailure{Index: i, EntityID: metrics[i].EntityID, Error: r.err.Error()})
			continue
		}
		for _, gap := range r.gaps {
			e.logger.InfoContext(ctx, "rule skipped", "entity_id", gap.EntityID, "rule", gap.Rule, "reason", gap.Reason)
		}
		res.Actions = append(res.Actions, r.actions...)
		res.Gaps = append(res.Gaps, r.gaps...)
	}
	SortBySeverity(res.Actions)
	if werr != nil {
		return res, werr
	}
	return res, nil
}

func (e *Engine) safeEvaluate(m contracts.PerformanceMetric) (actions []contracts.ProposedAction, gaps []DataGap, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic evaluating %s: %v\n%s", m.EntityID, r, debug.Stack())
		}
	}()
	return e.Evaluate(m)
}

// SortBySeverity orders actions highest severity first, keeping input order
// within a severity.
func SortBySeverity(actions []contracts.ProposedAction) {
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Severity.Rank() > actions[j].Severity.Rank()
	})
}
