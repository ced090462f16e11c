// Package triage assigns a priority and a human-review flag to inbound work
// items by walking an ordered list of deterministic rules.
//
// Rules are evaluated strictly in order. A terminal rule fixes the result and
// stops evaluation; floor rules only ever raise priority, so adding a signal can
// never make an item less urgent.
package triage

import (
	"strings"

	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/signals"
)

// Classifier is safe for concurrent use; it holds no mutable state.
type Classifier struct {
	thresholds Thresholds
	lexicons   Lexicons
	rules      []Rule
	overrides  []Rule
	targets    Targets
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithThresholds replaces the numeric thresholds of the default rules.
func WithThresholds(th Thresholds) Option {
	return func(c *Classifier) { c.thresholds = th }
}

// WithLexicons replaces the vocabularies of the default rules.
func WithLexicons(lex Lexicons) Option {
	return func(c *Classifier) { c.lexicons = lex }
}

// WithRules replaces the ordered rule list entirely.
func WithRules(rules []Rule) Option {
	return func(c *Classifier) { c.rules = rules }
}

// WithTargets replaces the SLA target table.
func WithTargets(t Targets) Option {
	return func(c *Classifier) { c.targets = t }
}

// New creates a classifier with the default rule list.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		thresholds: DefaultThresholds(),
		lexicons:   DefaultLexicons(),
		targets:    DefaultTargets(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rules == nil {
		c.rules = DefaultRules(c.thresholds, c.lexicons)
	}
	c.overrides = ChannelOverrides()
	return c
}

var defaultClassifier = New()

// Classify runs the default classifier.
func Classify(item contracts.WorkItem) contracts.TriageResult {
	return defaultClassifier.Classify(item)
}

// Classify assigns a priority to item. It never fails: an item without
// content is classified from the remaining signals at the lowest confidence.
func (c *Classifier) Classify(item contracts.WorkItem) contracts.TriageResult {
	f := c.facts(item)

	var (
		reasons []string
		flags   []string
		forced  bool
		fired   bool
	)

	priority := contracts.P2Normal
	if f.HasContent && c.lexicons.LowPriority != nil && c.lexicons.LowPriority.Any(f.Tokens) {
		priority = contracts.P3Low
		flags = append(flags, "low_priority_vocabulary")
	}
	if !f.HasContent {
		flags = append(flags, "missing_content")
	}

	for _, r := range c.rules {
		reason, ok := r.When(&f, priority)
		if !ok {
			continue
		}
		reasons = append(reasons, reason)
		if r.Flag != "" {
			flags = append(flags, r.Flag)
		}
		switch r.Effect {
		case EffectTerminal:
			return contracts.TriageResult{
				Priority:        r.Priority,
				EscalateToHuman: true,
				Confidence:      r.Confidence,
				Reasons:         reasons,
				Flags:           flags,
				AngerScore:      f.Anger.Score,
			}
		case EffectFloor:
			priority = priority.Raise(r.Priority)
			fired = true
		case EffectForce:
			priority = priority.Raise(r.Priority)
			forced = true
			fired = true
		case EffectOverride:
			priority = r.Priority
		}
	}

	escalate := forced || priority == contracts.P0Critical || priority == contracts.P1High

	confidence := c.thresholds.DefaultConfidence
	switch {
	case !f.HasContent:
		confidence = c.thresholds.MissingContentConfidence
	case fired:
		confidence = c.thresholds.SignalConfidence
	}

	for _, r := range c.overrides {
		reason, ok := r.When(&f, priority)
		if !ok {
			continue
		}
		priority = r.Priority
		reasons = append(reasons, reason)
		if r.Flag != "" {
			flags = append(flags, r.Flag)
		}
	}

	if len(reasons) == 0 {
		if f.HasContent {
			reasons = append(reasons, "No priority signals detected")
		} else {
			reasons = append(reasons, "No message content; default classification")
		}
	}

	return contracts.TriageResult{
		Priority:        priority,
		EscalateToHuman: escalate,
		Confidence:      confidence,
		Reasons:         reasons,
		Flags:           flags,
		AngerScore:      f.Anger.Score,
	}
}

// SLATarget returns the response and resolution targets for p.
func (c *Classifier) SLATarget(p contracts.Priority) (contracts.SLATarget, bool) {
	return c.targets.For(p)
}

func (c *Classifier) facts(item contracts.WorkItem) Facts {
	f := Facts{Item: item}
	if content, ok := item.Content.Get(); ok && strings.TrimSpace(content) != "" {
		text := content
		if item.Subject != "" {
			text = item.Subject + "\n" + content
		}
		f.HasContent = true
		f.Tokens = signals.Tokens(text)
		f.Anger = signals.ScoreAnger(text, c.lexicons.Anger)
	}
	if v, ok := item.OrderValue.Get(); ok {
		f.OrderValue = v
		f.HasOrderValue = true
	}
	if item.CustomerHistory != nil {
		f.UnresolvedOpen = item.CustomerHistory.UnresolvedIssues
	}
	return f
}
