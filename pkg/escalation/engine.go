// Package escalation decides whether a work item needs a human and who to
// notify. Every rule in the ordered list is evaluated; the decision is the
// union of all matches so a reviewer can see every reason an item escalated.
package escalation

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/hotdash/opsgate/pkg/contracts"
)

// Context is everything a rule may inspect.
type Context struct {
	ItemID   string
	Priority contracts.Priority
	SLA      *contracts.SLAStatus
	History  *contracts.CustomerHistory
	Message  string
	Triage   *contracts.TriageResult
}

// Predicate decides whether a rule applies. Implementations are Func and
// CELPredicate.
type Predicate interface {
	Matches(c Context) (bool, error)
}

// Func adapts a Go function into a Predicate.
type Func func(c Context) bool

// Matches implements Predicate.
func (f Func) Matches(c Context) (bool, error) {
	return f(c), nil
}

// Rule pairs a predicate with the escalation it triggers.
type Rule struct {
	ID       string
	Name     string
	Target   string
	Urgency  contracts.Urgency
	Channels []contracts.Channel
	When     Predicate
}

// Engine evaluates an ordered rule list. It holds no mutable state.
type Engine struct {
	rules  []Rule
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for predicate evaluation failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRules replaces the rule list.
func WithRules(rules []Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// AppendRules adds rules after the current list.
func AppendRules(rules ...Rule) Option {
	return func(e *Engine) { e.rules = append(e.rules, rules...) }
}

// NewEngine creates an engine over DefaultRules.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		rules:  DefaultRules(),
		logger: slog.Default().With("component", "escalation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns a copy of the rule list.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate collects every matching rule. Urgency is the maximum over matches,
// channels are their union, and the reason lists every matched rule name.
// A predicate that fails to evaluate counts as not matching.
func (e *Engine) Evaluate(c Context) contracts.EscalationDecision {
	d := contracts.EscalationDecision{
		ItemID:         c.ItemID,
		Channels:       []contracts.Channel{},
		TriggeredRules: []string{},
	}

	var (
		names    []string
		channels = map[contracts.Channel]struct{}{}
		best     *Rule
	)
	for i := range e.rules {
		r := &e.rules[i]
		ok, err := r.When.Matches(c)
		if err != nil {
			e.logger.WarnContext(context.Background(), "escalation rule evaluation failed",
				"rule", r.ID, "item_id", c.ItemID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		d.ShouldEscalate = true
		d.TriggeredRules = append(d.TriggeredRules, r.ID)
		names = append(names, r.Name)
		for _, ch := range r.Channels {
			channels[ch] = struct{}{}
		}
		if r.Urgency > d.Urgency {
			d.Urgency = r.Urgency
		}
		if best == nil || outranks(r, best) {
			best = r
		}
	}
	if !d.ShouldEscalate {
		return d
	}

	for ch := range channels {
		d.Channels = append(d.Channels, ch)
	}
	sort.Slice(d.Channels, func(i, j int) bool { return d.Channels[i] < d.Channels[j] })
	d.Reason = strings.Join(names, ", ")
	d.Target = best.Target
	d.Notes = notes(c, d)
	return d
}

var roleRank = map[string]int{
	contracts.RoleSupportTeam:   1,
	contracts.RoleSupportLead:   2,
	contracts.RoleSeniorSupport: 3,
	contracts.RoleManager:       4,
}

// outranks picks the assignee: higher urgency first, then the more senior
// role. Ties keep the earlier rule.
func outranks(a, b *Rule) bool {
	if a.Urgency != b.Urgency {
		return a.Urgency > b.Urgency
	}
	return roleRank[a.Target] > roleRank[b.Target]
}

var defaultEngine = NewEngine()

// Evaluate runs the default rule list.
func Evaluate(c Context) contracts.EscalationDecision {
	return defaultEngine.Evaluate(c)
}
