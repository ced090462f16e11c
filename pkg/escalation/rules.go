package escalation

import (
	"fmt"
	"strings"

	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/signals"
)

// VIP thresholds.
var (
	VIPLifetimeValue = contracts.Dollars(1000)
	VIPOrderCount    = 10
)

const repeatEscalationLimit = 2

// DefaultRules returns the stock rule list in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "legal_threat",
			Name:     "Legal threat",
			Target:   contracts.RoleManager,
			Urgency:  contracts.UrgencyImmediate,
			Channels: []contracts.Channel{contracts.ChannelEmail, contracts.ChannelSMS, contracts.ChannelChat},
			When: Func(func(c Context) bool {
				return signals.LegalTerms.Any(signals.Tokens(c.Message))
			}),
		},
		{
			ID:       "sla_breach",
			Name:     "SLA breached",
			Target:   contracts.RoleSupportLead,
			Urgency:  contracts.UrgencyUrgent,
			Channels: []contracts.Channel{contracts.ChannelEmail, contracts.ChannelChat},
			When: Func(func(c Context) bool {
				return c.SLA != nil && c.SLA.State == contracts.SLABreached
			}),
		},
		{
			ID:       "p0_critical",
			Name:     "Critical priority",
			Target:   contracts.RoleSupportLead,
			Urgency:  contracts.UrgencyUrgent,
			Channels: []contracts.Channel{contracts.ChannelEmail, contracts.ChannelSMS},
			When: Func(func(c Context) bool {
				return c.Priority == contracts.P0Critical
			}),
		},
		{
			ID:       "vip_customer",
			Name:     "VIP customer",
			Target:   contracts.RoleSeniorSupport,
			Urgency:  contracts.UrgencyUrgent,
			Channels: []contracts.Channel{contracts.ChannelEmail},
			When:     Func(isVIP),
		},
		{
			ID:       "refund_request",
			Name:     "Refund request",
			Target:   contracts.RoleSupportLead,
			Urgency:  contracts.UrgencyNormal,
			Channels: []contracts.Channel{contracts.ChannelEmail},
			When: Func(func(c Context) bool {
				return signals.RefundTerms.Any(signals.Tokens(c.Message))
			}),
		},
		{
			ID:       "repeat_escalations",
			Name:     "Repeated escalations",
			Target:   contracts.RoleSeniorSupport,
			Urgency:  contracts.UrgencyNormal,
			Channels: []contracts.Channel{contracts.ChannelEmail},
			When: Func(func(c Context) bool {
				return c.History != nil && c.History.PreviousEscalations >= repeatEscalationLimit
			}),
		},
		{
			ID:       "multiple_issues",
			Name:     "Multiple issues",
			Target:   contracts.RoleSupportTeam,
			Urgency:  contracts.UrgencyNormal,
			Channels: []contracts.Channel{contracts.ChannelChat},
			When: Func(func(c Context) bool {
				return len(signals.Categories(c.Message)) >= 2
			}),
		},
		{
			ID:       "negative_sentiment",
			Name:     "Negative sentiment",
			Target:   contracts.RoleSupportLead,
			Urgency:  contracts.UrgencyNormal,
			Channels: []contracts.Channel{contracts.ChannelChat},
			When: Func(func(c Context) bool {
				if c.Triage != nil {
					return c.Triage.AngerScore > 0.5
				}
				return signals.ScoreAnger(c.Message, nil).Angry()
			}),
		},
		{
			ID:       "sla_at_risk",
			Name:     "SLA at risk",
			Target:   contracts.RoleSupportTeam,
			Urgency:  contracts.UrgencyNormal,
			Channels: []contracts.Channel{contracts.ChannelChat},
			When: Func(func(c Context) bool {
				return c.SLA != nil && c.SLA.State == contracts.SLAAtRisk && runningAtRisk(c.SLA)
			}),
		},
	}
}

// runningAtRisk reports whether a clock that is still running is close to its
// target. Answered or resolved clocks cannot breach any more.
func runningAtRisk(st *contracts.SLAStatus) bool {
	if !st.ResponseMinutes.Valid() && st.ResponseRemaining >= 0 && st.ResponseRemaining*5 < st.ResponseTarget {
		return true
	}
	return !st.ResolutionMinutes.Valid() && st.ResolutionRemaining >= 0 && st.ResolutionRemaining*5 < st.ResolutionTarget
}

func isVIP(c Context) bool {
	if c.History == nil {
		return false
	}
	return c.History.LifetimeValue >= VIPLifetimeValue || c.History.TotalOrders >= VIPOrderCount
}

// notes builds the human-readable context line attached to a decision.
func notes(c Context, d contracts.EscalationDecision) string {
	parts := []string{fmt.Sprintf("Priority %s", c.Priority)}
	if c.SLA != nil && c.SLA.State != contracts.SLAOnTrack {
		parts = append(parts, fmt.Sprintf("SLA %s (response %d min remaining)", c.SLA.State, c.SLA.ResponseRemaining))
	}
	if c.History != nil {
		if isVIP(c) {
			parts = append(parts, fmt.Sprintf("VIP customer (LTV %s, %d orders)", c.History.LifetimeValue, c.History.TotalOrders))
		}
		if c.History.UnresolvedIssues > 0 {
			parts = append(parts, fmt.Sprintf("%d unresolved issues", c.History.UnresolvedIssues))
		}
	}
	if cats := signals.Categories(c.Message); len(cats) > 0 {
		parts = append(parts, "Topics: "+strings.Join(cats, ", "))
	}
	parts = append(parts, fmt.Sprintf("Route to %s via %s", d.Target, joinChannels(d.Channels)))
	return strings.Join(parts, "; ")
}

func joinChannels(chs []contracts.Channel) string {
	s := make([]string, len(chs))
	for i, c := range chs {
		s[i] = string(c)
	}
	return strings.Join(s, ", ")
}
