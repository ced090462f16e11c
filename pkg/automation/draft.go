package automation

import (
	"fmt"

	"github.com/hotdash/opsgate/pkg/contracts"
)

var actionVerbs = map[contracts.ActionType]string{
	contracts.ActionPauseCampaign:  "Pause campaign",
	contracts.ActionIncreaseBudget: "Increase budget for",
	contracts.ActionDecreaseBudget: "Decrease budget for",
	contracts.ActionPauseKeyword:   "Pause keyword",
}

var actionRisks = map[contracts.ActionType]string{
	contracts.ActionPauseCampaign:  "Campaign stops serving; remaining conversions are lost until resumed",
	contracts.ActionIncreaseBudget: "Additional spend may return below the observed ROAS",
	contracts.ActionDecreaseBudget: "Reduced reach may lower conversions more than spend",
	contracts.ActionPauseKeyword:   "Keyword stops matching queries until resumed",
}

// ToApprovalDraft turns a proposal into an approval request draft carrying
// its evidence, projected impact, risk and rollback. The approval machine
// assigns the ID, state and timestamps.
func ToApprovalDraft(a contracts.ProposedAction, createdBy string) contracts.ApprovalRequest {
	verb, ok := actionVerbs[a.Type]
	if !ok {
		verb = string(a.Type)
	}
	summary := fmt.Sprintf("%s %q", verb, a.TargetName)
	m := a.Evidence.Metrics

	steps := make([]contracts.ActionStep, len(a.Steps))
	copy(steps, a.Steps)
	rollback := make([]contracts.ActionStep, len(a.Rollback.Steps))
	copy(rollback, a.Rollback.Steps)

	thresholds := make(map[string]any, len(a.Evidence.Thresholds))
	for _, t := range a.Evidence.Thresholds {
		thresholds[t.Name] = t.Value
	}

	return contracts.ApprovalRequest{
		Kind:        contracts.KindGrowth,
		Summary:     summary,
		CreatedBy:   createdBy,
		Fingerprint: a.Fingerprint(),
		Evidence: &contracts.EvidenceBlock{
			Summary: fmt.Sprintf("%s: %s", summary, a.Reason),
			WhyNow:  fmt.Sprintf("Spend %s, revenue %s, CTR %s, ROAS %s, %d conversions",
				m.Spend, m.Revenue, a.Evidence.CTR, a.Evidence.ROAS, m.Conversions),
			Details: map[string]any{
				"entity_id":     a.TargetID,
				"entity_kind":   string(m.Kind),
				"impressions":   m.Impressions,
				"clicks":        m.Clicks,
				"conversions":   m.Conversions,
				"spend_minor":   m.Spend.Cents(),
				"revenue_minor": m.Revenue.Cents(),
				"ctr":           a.Evidence.CTR,
				"roas":          a.Evidence.ROAS,
				"thresholds":    thresholds,
				"severity":      string(a.Severity),
			},
		},
		Impact: &contracts.ImpactBlock{
			Projected:    a.Evidence.Projected.Summary,
			SpendDelta:   a.Evidence.Projected.SpendDelta,
			RevenueDelta: a.Evidence.Projected.RevenueDelta,
			Savings:      a.Evidence.Projected.Savings,
		},
		Risk: &contracts.RiskBlock{
			Level:       a.Severity,
			Description: actionRisks[a.Type],
		},
		Rollback: &contracts.RollbackBlock{
			Description: a.Rollback.Description,
			Steps:       rollback,
		},
		Actions: steps,
	}
}

// Stats summarises a set of proposals.
type Stats struct {
	Total            int             `json:"total"`
	ByType           map[string]int  `json:"by_type"`
	BySeverity       map[string]int  `json:"by_severity"`
	EstimatedSavings contracts.Money `json:"estimated_savings"`
	EstimatedRevenue contracts.Money `json:"estimated_revenue"`
}

// Summarize aggregates proposals. Revenue counts only positive projections.
func Summarize(actions []contracts.ProposedAction) Stats {
	s := Stats{
		Total:      len(actions),
		ByType:     map[string]int{},
		BySeverity: map[string]int{},
	}
	for _, a := range actions {
		s.ByType[string(a.Type)]++
		s.BySeverity[string(a.Severity)]++
		s.EstimatedSavings += a.Evidence.Projected.Savings
		if d := a.Evidence.Projected.RevenueDelta; d > 0 {
			s.EstimatedRevenue += d
		}
	}
	return s
}
