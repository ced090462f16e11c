package escalation

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/signals"
)

// CELPredicate is a rule predicate written as a CEL expression, so rule packs
// can add escalation rules without a code change.
//
// Available variables:
//
//	priority       string  e.g. "P0_CRITICAL"
//	priority_rank  int     0 (P0) .. 3 (P3)
//	sla            map     state, response_breached, resolution_breached,
//	                       response_remaining, resolution_remaining
//	history        map     previous_issues, unresolved_issues, previous_escalations,
//	                       total_orders, lifetime_value_cents
//	message        string  raw message text
//	categories     list    issue categories mentioned in message
//	anger          double  anger score in [0,1]
type CELPredicate struct {
	expr string
	prg  cel.Program
}

var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
)

func env() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("priority", cel.StringType),
			cel.Variable("priority_rank", cel.IntType),
			cel.Variable("sla", cel.DynType),
			cel.Variable("history", cel.DynType),
			cel.Variable("message", cel.StringType),
			cel.Variable("categories", cel.ListType(cel.StringType)),
			cel.Variable("anger", cel.DoubleType),
		)
	})
	return celEnv, celEnvErr
}

// CompileCEL compiles expr. It fails when the expression does not type-check
// or cannot produce a bool. Dyn results are checked again at evaluation.
func CompileCEL(expr string) (*CELPredicate, error) {
	e, err := env()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := e.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must return bool, got %s", out)
	}
	prg, err := e.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	return &CELPredicate{expr: expr, prg: prg}, nil
}

// Expr returns the source expression.
func (p *CELPredicate) Expr() string {
	return p.expr
}

// Matches implements Predicate.
func (p *CELPredicate) Matches(c Context) (bool, error) {
	out, _, err := p.prg.Eval(activation(c))
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not bool")
	}
	return val, nil
}

func activation(c Context) map[string]any {
	slaVars := map[string]any{
		"state":                string(contracts.SLAOnTrack),
		"response_breached":    false,
		"resolution_breached":  false,
		"response_remaining":   int64(0),
		"resolution_remaining": int64(0),
	}
	if c.SLA != nil {
		slaVars["state"] = string(c.SLA.State)
		slaVars["response_breached"] = c.SLA.ResponseBreached
		slaVars["resolution_breached"] = c.SLA.ResolutionBreached
		slaVars["response_remaining"] = c.SLA.ResponseRemaining
		slaVars["resolution_remaining"] = c.SLA.ResolutionRemaining
	}

	historyVars := map[string]any{
		"previous_issues":      int64(0),
		"unresolved_issues":    int64(0),
		"previous_escalations": int64(0),
		"total_orders":         int64(0),
		"lifetime_value_cents": int64(0),
	}
	if h := c.History; h != nil {
		historyVars["previous_issues"] = int64(h.PreviousIssues)
		historyVars["unresolved_issues"] = int64(h.UnresolvedIssues)
		historyVars["previous_escalations"] = int64(h.PreviousEscalations)
		historyVars["total_orders"] = int64(h.TotalOrders)
		historyVars["lifetime_value_cents"] = h.LifetimeValue.Cents()
	}

	anger := 0.0
	if c.Triage != nil {
		anger = c.Triage.AngerScore
	} else if c.Message != "" {
		anger = signals.ScoreAnger(c.Message, nil).Score
	}

	cats := signals.Categories(c.Message)
	if cats == nil {
		cats = []string{}
	}

	return map[string]any{
		"priority":      c.Priority.String(),
		"priority_rank": int64(c.Priority),
		"sla":           slaVars,
		"history":       historyVars,
		"message":       c.Message,
		"categories":    cats,
		"anger":         anger,
	}
}

// RuleSpec is the declarative form of a rule as it appears in a rule pack.
type RuleSpec struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Target   string   `json:"target" yaml:"target"`
	Urgency  string   `json:"urgency" yaml:"urgency"`
	Channels []string `json:"channels" yaml:"channels"`
	When     string   `json:"when" yaml:"when"`
}

// Build compiles the spec into a Rule.
func (s RuleSpec) Build() (Rule, error) {
	if s.ID == "" {
		return Rule{}, fmt.Errorf("rule id is required")
	}
	urgency, err := contracts.ParseUrgency(s.Urgency)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", s.ID, err)
	}
	if len(s.Channels) == 0 {
		return Rule{}, fmt.Errorf("rule %s: at least one channel is required", s.ID)
	}
	pred, err := CompileCEL(s.When)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", s.ID, err)
	}
	channels := make([]contracts.Channel, len(s.Channels))
	for i, ch := range s.Channels {
		channels[i] = contracts.Channel(ch)
	}
	name := s.Name
	if name == "" {
		name = s.ID
	}
	target := s.Target
	if target == "" {
		target = contracts.RoleSupportTeam
	}
	return Rule{
		ID:       s.ID,
		Name:     name,
		Target:   target,
		Urgency:  urgency,
		Channels: channels,
		When:     pred,
	}, nil
}
