package triage

import (
	"fmt"
	"strings"

	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/signals"
)

// Effect is what a matching rule does to the running classification.
type Effect int

const (
	// EffectTerminal fixes priority and confidence and stops evaluation.
	EffectTerminal Effect = iota
	// EffectFloor raises priority to at least the rule's priority.
	EffectFloor
	// EffectForce raises the floor and forces a human review.
	EffectForce
	// EffectOverride replaces the priority when the rule's guard holds.
	EffectOverride
)

func (e Effect) String() string {
	switch e {
	case EffectTerminal:
		return "terminal"
	case EffectFloor:
		return "floor"
	case EffectForce:
		return "force"
	case EffectOverride:
		return "override"
	default:
		return fmt.Sprintf("Effect(%d)", int(e))
	}
}

// Facts are the signals extracted once per item and shared by every rule.
type Facts struct {
	Item           contracts.WorkItem
	HasContent     bool
	Tokens         []string
	Anger          signals.Anger
	OrderValue     contracts.Money
	HasOrderValue  bool
	UnresolvedOpen int
}

// Rule is one predicate+effect pair. When returns a reason when it matches.
// current is the priority accumulated so far.
type Rule struct {
	Name       string
	Effect     Effect
	Priority   contracts.Priority
	Confidence float64
	Flag       string
	When       func(f *Facts, current contracts.Priority) (reason string, ok bool)
}

// Thresholds are the numeric inputs of the default rules.
type Thresholds struct {
	HighValueOrder           contracts.Money `json:"high_value_order" yaml:"high_value_order"`
	RefundEscalateOrder      contracts.Money `json:"refund_escalate_order" yaml:"refund_escalate_order"`
	MaxUnresolvedIssues      int             `json:"max_unresolved_issues" yaml:"max_unresolved_issues"`
	CriticalConfidence       float64         `json:"critical_confidence" yaml:"critical_confidence"`
	HistoryConfidence        float64         `json:"history_confidence" yaml:"history_confidence"`
	SignalConfidence         float64         `json:"signal_confidence" yaml:"signal_confidence"`
	DefaultConfidence        float64         `json:"default_confidence" yaml:"default_confidence"`
	MissingContentConfidence float64         `json:"missing_content_confidence" yaml:"missing_content_confidence"`
}

// DefaultThresholds returns the stock triage thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighValueOrder:           contracts.Dollars(500),
		RefundEscalateOrder:      contracts.Dollars(100),
		MaxUnresolvedIssues:      2,
		CriticalConfidence:       0.95,
		HistoryConfidence:        0.9,
		SignalConfidence:         0.8,
		DefaultConfidence:        0.75,
		MissingContentConfidence: 0.5,
	}
}

// Lexicons are the vocabularies the default rules scan.
type Lexicons struct {
	Critical    *signals.Lexicon
	Anger       *signals.Lexicon
	Defect      *signals.Lexicon
	Refund      *signals.Lexicon
	LowPriority *signals.Lexicon
}

// DefaultLexicons returns the built-in vocabularies.
func DefaultLexicons() Lexicons {
	return Lexicons{
		Critical:    signals.CriticalTerms,
		Anger:       signals.AngerTerms,
		Defect:      signals.DefectTerms,
		Refund:      signals.RefundTerms,
		LowPriority: signals.LowPriorityTerms,
	}
}

// DefaultRules builds the ordered rule list. Order matters: the critical
// keyword and history checks run before any softer signal.
func DefaultRules(th Thresholds, lex Lexicons) []Rule {
	return []Rule{
		{
			Name:       "critical_keyword",
			Effect:     EffectTerminal,
			Priority:   contracts.P0Critical,
			Confidence: th.CriticalConfidence,
			Flag:       "critical_keyword",
			When: func(f *Facts, _ contracts.Priority) (string, bool) {
				hits := lex.Critical.Match(f.Tokens)
				if len(hits) == 0 {
					return "", false
				}
				return "Critical keyword detected: " + strings.Join(hits, ", "), true
			},
		},
		{
			Name:       "unresolved_history",
			Effect:     EffectTerminal,
			Priority:   contracts.P0Critical,
			Confidence: th.HistoryConfidence,
			Flag:       "repeat_customer_issues",
			When: func(f *Facts, _ contracts.Priority) (string, bool) {
				if f.UnresolvedOpen <= th.MaxUnresolvedIssues {
					return "", false
				}
				return fmt.Sprintf("Customer has %d unresolved issues", f.UnresolvedOpen), true
			},
		},
		{
			Name:     "negative_sentiment",
			Effect:   EffectFloor,
			Priority: contracts.P1High,
			Flag:     "angry_customer",
			When: func(f *Facts, _ contracts.Priority) (string, bool) {
				if !f.Anger.Angry() {
					return "", false
				}
				return fmt.Sprintf("Negative sentiment detected (anger score %.2f)", f.Anger.Score), true
			},
		},
		{
			Name:     "high_value_order",
			Effect:   EffectFloor,
			Priority: contracts.P1High,
			Flag:     "high_value_order",
			When: func(f *Facts, _ contracts.Priority) (string, bool) {
				if !f.HasOrderValue || f.OrderValue <= th.HighValueOrder {
					return "", false
				}
				return fmt.Sprintf("High-value order (%s)", f.OrderValue), true
			},
		},
		{
			Name:     "product_defect",
			Effect:   EffectFloor,
			Priority: contracts.P1High,
			Flag:     "product_defect",
			When: func(f *Facts, _ contracts.Priority) (string, bool) {
				hits := lex.Defect.Match(f.Tokens)
				if len(hits) == 0 {
					return "", false
				}
				return "Product defect reported: " + strings.Join(hits, ", "), true
			},
		},
		{
			Name:     "refund_request",
			Effect:   EffectForce,
			Priority: contracts.P1High,
			Flag:     "refund_request",
			When: func(f *Facts, _ contracts.Priority) (string, bool) {
				if !f.HasOrderValue || f.OrderValue <= th.RefundEscalateOrder {
					return "", false
				}
				if !lex.Refund.Any(f.Tokens) {
					return "", false
				}
				return fmt.Sprintf("Refund requested on %s order", f.OrderValue), true
			},
		},
	}
}

// ChannelOverrides run after the default escalation decision.
func ChannelOverrides() []Rule {
	return []Rule{
		{
			Name:     "sms_channel",
			Effect:   EffectOverride,
			Priority: contracts.P2Normal,
			Flag:     "synchronous_channel",
			When: func(f *Facts, current contracts.Priority) (string, bool) {
				if f.Item.Channel != contracts.ChannelSMS || current != contracts.P3Low {
					return "", false
				}
				return "SMS channel raises low priority to normal", true
			},
		},
	}
}
