package contracts

// EscalationDecision is the output of the escalation engine for one work item.
//
// Channels is the union of the channels of every matched rule, sorted.
// Urgency is the maximum urgency over matched rules. TriggeredRules preserves
// rule-list order.
type EscalationDecision struct {
	ItemID         string    `json:"item_id,omitempty"`
	ShouldEscalate bool      `json:"should_escalate"`
	Target         string    `json:"target,omitempty"`
	Urgency        Urgency   `json:"urgency"`
	Channels       []Channel `json:"channels"`
	Reason         string    `json:"reason"`
	TriggeredRules []string  `json:"triggered_rules"`
	Notes          string    `json:"notes,omitempty"`
}

// Roles a decision can target.
const (
	RoleSupportTeam   = "support_team"
	RoleSupportLead   = "support_lead"
	RoleSeniorSupport = "senior_support"
	RoleManager       = "manager"
)
