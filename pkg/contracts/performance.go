package contracts

// EntityKind distinguishes campaign-level metrics from keyword-level metrics.
type EntityKind string

const (
	EntityCampaign EntityKind = "campaign"
	EntityKeyword  EntityKind = "keyword"
)

// PerformanceMetric is a per-entity ad performance snapshot. Ratios such as CTR
// and ROAS are derived on demand from the raw counts and are never stored.
type PerformanceMetric struct {
	EntityID    string     `json:"entity_id" yaml:"entity_id"`
	Name        string     `json:"name" yaml:"name"`
	Kind        EntityKind `json:"kind" yaml:"kind"`
	CampaignID  string     `json:"campaign_id,omitempty" yaml:"campaign_id"`
	AdGroupID   string     `json:"ad_group_id,omitempty" yaml:"ad_group_id"`
	MatchType   string     `json:"match_type,omitempty" yaml:"match_type"`
	Impressions int64      `json:"impressions" yaml:"impressions"`
	Clicks      int64      `json:"clicks" yaml:"clicks"`
	Conversions int64      `json:"conversions" yaml:"conversions"`
	Spend       Money      `json:"spend" yaml:"spend"`
	Revenue     Money      `json:"revenue" yaml:"revenue"`
	DailyBudget Money      `json:"daily_budget,omitempty" yaml:"daily_budget"`
}

// ActionType enumerates the actions the automation engine can propose.
type ActionType string

const (
	ActionPauseCampaign  ActionType = "pause_campaign"
	ActionIncreaseBudget ActionType = "increase_budget"
	ActionDecreaseBudget ActionType = "decrease_budget"
	ActionPauseKeyword   ActionType = "pause_keyword"
)

// ActionStep is one tool invocation an executor performs.
type ActionStep struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// ThresholdRef names a threshold that fired and its configured value.
type ThresholdRef struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Impact is the projected effect of an action, in minor units.
type Impact struct {
	SpendDelta   Money  `json:"spend_delta"`
	RevenueDelta Money  `json:"revenue_delta"`
	Savings      Money  `json:"savings"`
	Summary      string `json:"summary"`
}

// ActionEvidence captures the metrics that triggered a proposal.
type ActionEvidence struct {
	Metrics    PerformanceMetric `json:"metrics"`
	CTR        string            `json:"ctr"`
	ROAS       string            `json:"roas"`
	Thresholds []ThresholdRef    `json:"thresholds"`
	Projected  Impact            `json:"projected"`
}

// Rollback describes the exact inverse of an action.
type Rollback struct {
	Description string       `json:"description"`
	Steps       []ActionStep `json:"steps"`
}

// ProposedAction is an automation suggestion. It always requires human approval.
type ProposedAction struct {
	Type             ActionType     `json:"type"`
	TargetID         string         `json:"target_id"`
	TargetName       string         `json:"target_name"`
	Reason           string         `json:"reason"`
	Severity         Severity       `json:"severity"`
	Evidence         ActionEvidence `json:"evidence"`
	Steps            []ActionStep   `json:"steps"`
	Rollback         Rollback       `json:"rollback"`
	RequiresApproval bool           `json:"requires_approval"`
}

// Fingerprint identifies an action by type and target so repeated scans do not
// queue duplicates for the same entity.
func (a ProposedAction) Fingerprint() string {
	return string(a.Type) + ":" + a.TargetID
}
