package automation

import (
	"fmt"
	"math"
	"strings"

	"github.com/hotdash/opsgate/pkg/contracts"
)

// Thresholds configures the automation rules. Ratio thresholds are integers:
// CTR in basis points of the ratio (1.00% = 100) and ROAS in thousandths
// (1.5x = 1500). Float inputs are converted once, at configuration load.
type Thresholds struct {
	PauseLowCTRBps          int64           `json:"pause_low_ctr_bps" yaml:"pause_low_ctr_bps"`
	PauseLowROASMilli       int64           `json:"pause_low_roas_milli" yaml:"pause_low_roas_milli"`
	IncreaseBudgetROASMilli int64           `json:"increase_budget_roas_milli" yaml:"increase_budget_roas_milli"`
	DecreaseBudgetROASMilli int64           `json:"decrease_budget_roas_milli" yaml:"decrease_budget_roas_milli"`
	PauseKeywordCTRBps      int64           `json:"pause_keyword_ctr_bps" yaml:"pause_keyword_ctr_bps"`
	MinSpendForAction       contracts.Money `json:"min_spend_for_action" yaml:"min_spend_for_action"`
	MinKeywordImpressions   int64           `json:"min_keyword_impressions" yaml:"min_keyword_impressions"`
	BudgetIncreasePct       int64           `json:"budget_increase_pct" yaml:"budget_increase_pct"`
	BudgetDecreasePct       int64           `json:"budget_decrease_pct" yaml:"budget_decrease_pct"`
}

// DefaultThresholds returns the stock configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PauseLowCTRBps:          100,
		PauseLowROASMilli:       1000,
		IncreaseBudgetROASMilli: 3000,
		DecreaseBudgetROASMilli: 1500,
		PauseKeywordCTRBps:      50,
		MinSpendForAction:       contracts.Dollars(50),
		MinKeywordImpressions:   500,
		BudgetIncreasePct:       20,
		BudgetDecreasePct:       30,
	}
}

// Validate reports every out-of-range value.
func (t Thresholds) Validate() error {
	var problems []string
	nonNeg := map[string]int64{
		"pause_low_ctr_bps":          t.PauseLowCTRBps,
		"pause_low_roas_milli":       t.PauseLowROASMilli,
		"increase_budget_roas_milli": t.IncreaseBudgetROASMilli,
		"decrease_budget_roas_milli": t.DecreaseBudgetROASMilli,
		"pause_keyword_ctr_bps":      t.PauseKeywordCTRBps,
		"min_spend_for_action":       int64(t.MinSpendForAction),
		"min_keyword_impressions":    t.MinKeywordImpressions,
	}
	for _, name := range []string{
		"pause_low_ctr_bps", "pause_low_roas_milli", "increase_budget_roas_milli",
		"decrease_budget_roas_milli", "pause_keyword_ctr_bps", "min_spend_for_action",
		"min_keyword_impressions",
	} {
		if nonNeg[name] < 0 {
			problems = append(problems, name+" must not be negative")
		}
	}
	if t.PauseLowCTRBps > 10000 || t.PauseKeywordCTRBps > 10000 {
		problems = append(problems, "CTR thresholds must not exceed 100%")
	}
	if t.DecreaseBudgetROASMilli < t.PauseLowROASMilli {
		problems = append(problems, "decrease_budget_roas_milli must be >= pause_low_roas_milli")
	}
	if t.IncreaseBudgetROASMilli <= t.DecreaseBudgetROASMilli {
		problems = append(problems, "increase_budget_roas_milli must be > decrease_budget_roas_milli")
	}
	if t.BudgetIncreasePct <= 0 {
		problems = append(problems, "budget_increase_pct must be positive")
	}
	if t.BudgetDecreasePct <= 0 || t.BudgetDecreasePct >= 100 {
		problems = append(problems, "budget_decrease_pct must be between 1 and 99")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid thresholds: %s", strings.Join(problems, "; "))
	}
	return nil
}

// PercentToBps converts a percentage such as 1.0 (meaning 1%) to basis points.
func PercentToBps(pct float64) int64 {
	return int64(math.Round(pct * 100))
}

// MultipleToMilli converts a multiplier such as 1.5 to thousandths.
func MultipleToMilli(x float64) int64 {
	return int64(math.Round(x * 1000))
}
