package automation

import (
	"fmt"
	"strings"

	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/signals"
)

func (e *Engine) evidence(m contracts.PerformanceMetric, refs []contracts.ThresholdRef, impact contracts.Impact) contracts.ActionEvidence {
	return contracts.ActionEvidence{
		Metrics:    m,
		CTR:        signals.DisplayRatio(signals.CTR(m), signals.Ratio.Percent),
		ROAS:       signals.DisplayRatio(signals.ROAS(m), signals.Ratio.Multiple),
		Thresholds: refs,
		Projected:  impact,
	}
}

func displayName(m contracts.PerformanceMetric) string {
	if m.Name != "" {
		return m.Name
	}
	return m.EntityID
}

func (e *Engine) pauseCampaign(m contracts.PerformanceMetric, ctr, roas signals.Ratio, lowCTR, lowROAS bool) contracts.ProposedAction {
	th := e.thresholds
	var reasons []string
	var refs []contracts.ThresholdRef
	if lowCTR {
		reasons = append(reasons, fmt.Sprintf("Low CTR (%s) - below %s threshold", ctr.Percent(), signals.FormatBasisPoints(th.PauseLowCTRBps)))
		refs = append(refs, contracts.ThresholdRef{Name: RulePauseLowCTR, Value: signals.FormatBasisPoints(th.PauseLowCTRBps)})
	}
	if lowROAS {
		reasons = append(reasons, fmt.Sprintf("Low ROAS (%s) - below %s threshold", roas.Multiple(), signals.FormatMilli(th.PauseLowROASMilli)))
		refs = append(refs, contracts.ThresholdRef{Name: RulePauseLowROAS, Value: signals.FormatMilli(th.PauseLowROASMilli)})
	}

	severity := contracts.SeverityHigh
	if lowCTR && !lowROAS {
		severity = contracts.SeverityMedium
	}

	impact := contracts.Impact{
		SpendDelta:   -m.Spend,
		RevenueDelta: -m.Revenue,
		Savings:      m.Spend,
		Summary:      fmt.Sprintf("Stop %s/day spend; forgo %s revenue (%d conversions)", m.Spend, m.Revenue, m.Conversions),
	}
	args := map[string]any{"campaign_id": m.EntityID}

	return contracts.ProposedAction{
		Type:       contracts.ActionPauseCampaign,
		TargetID:   m.EntityID,
		TargetName: displayName(m),
		Reason:     strings.Join(reasons, "; "),
		Severity:   severity,
		Evidence:   e.evidence(m, refs, impact),
		Steps:      []contracts.ActionStep{{Tool: ToolCampaignPause, Args: args}},
		Rollback: contracts.Rollback{
			Description: fmt.Sprintf("Resume campaign %q", displayName(m)),
			Steps:       []contracts.ActionStep{{Tool: ToolCampaignResume, Args: map[string]any{"campaign_id": m.EntityID}}},
		},
		RequiresApproval: true,
	}
}

// budgetBase is the budget a change is computed from: the daily budget when
// known, otherwise observed spend.
func budgetBase(m contracts.PerformanceMetric) contracts.Money {
	if m.DailyBudget > 0 {
		return m.DailyBudget
	}
	return m.Spend
}

func budgetStep(campaignID string, budget, previous contracts.Money) contracts.ActionStep {
	return contracts.ActionStep{
		Tool: ToolCampaignBudget,
		Args: map[string]any{
			"campaign_id":           campaignID,
			"budget_minor":          budget.Cents(),
			"previous_budget_minor": previous.Cents(),
		},
	}
}

func (e *Engine) increaseBudget(m contracts.PerformanceMetric, roas signals.Ratio) contracts.ProposedAction {
	th := e.thresholds
	base := budgetBase(m)
	delta := base.PercentOf(th.BudgetIncreasePct)
	next := base + delta
	revenue := roas.MulMoney(delta)

	impact := contracts.Impact{
		SpendDelta:   delta,
		RevenueDelta: revenue,
		Summary:      fmt.Sprintf("+%s/day spend, projected +%s/day revenue at %s ROAS", delta, revenue, roas.Multiple()),
	}
	refs := []contracts.ThresholdRef{{Name: RuleIncreaseBudget, Value: signals.FormatMilli(th.IncreaseBudgetROASMilli)}}

	return contracts.ProposedAction{
		Type:       contracts.ActionIncreaseBudget,
		TargetID:   m.EntityID,
		TargetName: displayName(m),
		Reason:     fmt.Sprintf("High ROAS (%s) - above %s threshold, scaling budget +%d%%",
			roas.Multiple(), signals.FormatMilli(th.IncreaseBudgetROASMilli), th.BudgetIncreasePct),
		Severity: contracts.SeverityLow,
		Evidence: e.evidence(m, refs, impact),
		Steps:    []contracts.ActionStep{budgetStep(m.EntityID, next, base)},
		Rollback: contracts.Rollback{
			Description: fmt.Sprintf("Restore daily budget to %s", base),
			Steps:       []contracts.ActionStep{budgetStep(m.EntityID, base, next)},
		},
		RequiresApproval: true,
	}
}

func (e *Engine) decreaseBudget(m contracts.PerformanceMetric, roas signals.Ratio) contracts.ProposedAction {
	th := e.thresholds
	base := budgetBase(m)
	delta := base.PercentOf(th.BudgetDecreasePct)
	next := base - delta
	revenue := roas.MulMoney(delta)

	impact := contracts.Impact{
		SpendDelta:   -delta,
		RevenueDelta: -revenue,
		Savings:      delta,
		Summary:      fmt.Sprintf("-%s/day spend, projected -%s/day revenue at %s ROAS", delta, revenue, roas.Multiple()),
	}
	refs := []contracts.ThresholdRef{{Name: RuleDecreaseBudget, Value: signals.FormatMilli(th.DecreaseBudgetROASMilli)}}

	return contracts.ProposedAction{
		Type:       contracts.ActionDecreaseBudget,
		TargetID:   m.EntityID,
		TargetName: displayName(m),
		Reason:     fmt.Sprintf("Below-target ROAS (%s) - under %s target, reducing budget %d%%",
			roas.Multiple(), signals.FormatMilli(th.DecreaseBudgetROASMilli), th.BudgetDecreasePct),
		Severity: contracts.SeverityMedium,
		Evidence: e.evidence(m, refs, impact),
		Steps:    []contracts.ActionStep{budgetStep(m.EntityID, next, base)},
		Rollback: contracts.Rollback{
			Description: fmt.Sprintf("Restore daily budget to %s", base),
			Steps:       []contracts.ActionStep{budgetStep(m.EntityID, base, next)},
		},
		RequiresApproval: true,
	}
}

func (e *Engine) pauseKeyword(m contracts.PerformanceMetric, ctr signals.Ratio) contracts.ProposedAction {
	th := e.thresholds
	args := func() map[string]any {
		return map[string]any{
			"campaign_id": m.CampaignID,
			"ad_group_id": m.AdGroupID,
			"keyword_id":  m.EntityID,
		}
	}
	impact := contracts.Impact{
		SpendDelta:   -m.Spend,
		RevenueDelta: -m.Revenue,
		Savings:      m.Spend,
		Summary:      fmt.Sprintf("Save %s/day on keyword %q (%d clicks, %d conversions)", m.Spend, displayName(m), m.Clicks, m.Conversions),
	}
	refs := []contracts.ThresholdRef{{Name: RulePauseKeywordCTR, Value: signals.FormatBasisPoints(th.PauseKeywordCTRBps)}}

	return contracts.ProposedAction{
		Type:             contracts.ActionPauseKeyword,
		TargetID:         m.EntityID,
		TargetName:       displayName(m),
		Reason:           fmt.Sprintf("Keyword CTR (%s) - below %s threshold", ctr.Percent(), signals.FormatBasisPoints(th.PauseKeywordCTRBps)),
		Severity:         contracts.SeverityLow,
		Evidence:         e.evidence(m, refs, impact),
		Steps:            []contracts.ActionStep{{Tool: ToolKeywordPause, Args: args()}},
		Rollback:         contracts.Rollback{Description: fmt.Sprintf("Resume keyword %q", displayName(m)), Steps: []contracts.ActionStep{{Tool: ToolKeywordResume, Args: args()}}},
		RequiresApproval: true,
	}
}
