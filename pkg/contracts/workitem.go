package contracts

import "time"

// WorkItemStatus is the lifecycle state of an inbound work item as reported by
// the upstream help desk. The core never writes it.
type WorkItemStatus string

const (
	WorkItemOpen     WorkItemStatus = "open"
	WorkItemPending  WorkItemStatus = "pending"
	WorkItemResolved WorkItemStatus = "resolved"
	WorkItemClosed   WorkItemStatus = "closed"
)

// WorkItem is an inbound customer conversation or ticket.
type WorkItem struct {
	ID              string              `json:"id" yaml:"id"`
	CustomerID      string              `json:"customer_id,omitempty" yaml:"customer_id"`
	Channel         Channel             `json:"channel" yaml:"channel"`
	Subject         string              `json:"subject,omitempty" yaml:"subject"`
	Content         Optional[string]    `json:"content" yaml:"content"`
	Status          WorkItemStatus      `json:"status" yaml:"status"`
	Priority        Priority            `json:"priority" yaml:"priority"`
	OrderValue      Optional[Money]     `json:"order_value" yaml:"order_value"`
	CustomerHistory *CustomerHistory    `json:"customer_history,omitempty" yaml:"customer_history"`
	CreatedAt       time.Time           `json:"created_at" yaml:"created_at"`
	FirstResponseAt Optional[time.Time] `json:"first_response_at" yaml:"first_response_at"`
	ResolvedAt      Optional[time.Time] `json:"resolved_at" yaml:"resolved_at"`
	Metadata        map[string]string   `json:"metadata,omitempty" yaml:"metadata"`
}

// CustomerHistory summarizes what is known about the customer behind a work item.
type CustomerHistory struct {
	PreviousIssues      int   `json:"previous_issues" yaml:"previous_issues"`
	UnresolvedIssues    int   `json:"unresolved_issues" yaml:"unresolved_issues"`
	PreviousEscalations int   `json:"previous_escalations" yaml:"previous_escalations"`
	TotalOrders         int   `json:"total_orders" yaml:"total_orders"`
	LifetimeValue       Money `json:"lifetime_value" yaml:"lifetime_value"`
}

// TriageResult is the output of the triage classifier.
type TriageResult struct {
	Priority        Priority `json:"priority"`
	EscalateToHuman bool     `json:"escalate_to_human"`
	Confidence      float64  `json:"confidence"`
	Reasons         []string `json:"reasons"`
	Flags           []string `json:"flags,omitempty"`
	AngerScore      float64  `json:"anger_score"`
}

// SLAState is the derived tri-state of an SLAStatus.
type SLAState string

const (
	SLAOnTrack  SLAState = "on_track"
	SLAAtRisk   SLAState = "at_risk"
	SLABreached SLAState = "breached"
)

// SLATarget holds response and resolution targets in minutes.
type SLATarget struct {
	ResponseMinutes   int64 `json:"response_minutes" yaml:"response_minutes"`
	ResolutionMinutes int64 `json:"resolution_minutes" yaml:"resolution_minutes"`
}

// SLAStatus is recomputed from WorkItem timestamps on every poll. It is never
// authoritative state.
type SLAStatus struct {
	ItemID              string          `json:"item_id"`
	Priority            Priority        `json:"priority"`
	ResponseMinutes     Optional[int64] `json:"response_minutes"`
	ResolutionMinutes   Optional[int64] `json:"resolution_minutes"`
	ResponseTarget      int64           `json:"response_target_minutes"`
	ResolutionTarget    int64           `json:"resolution_target_minutes"`
	ResponseBreached    bool            `json:"response_breached"`
	ResolutionBreached  bool            `json:"resolution_breached"`
	ResponseRemaining   int64           `json:"response_remaining_minutes"`
	ResolutionRemaining int64           `json:"resolution_remaining_minutes"`
	State               SLAState        `json:"state"`
}

// SLAAlertKind distinguishes the two SLA clocks.
type SLAAlertKind string

const (
	SLAAlertResponse   SLAAlertKind = "response"
	SLAAlertResolution SLAAlertKind = "resolution"
)

// SLAAlert is emitted for each breached or at-risk SLA clock.
type SLAAlert struct {
	ItemID   string       `json:"item_id"`
	Kind     SLAAlertKind `json:"kind"`
	Severity Severity     `json:"severity"`
	Message  string       `json:"message"`
	Minutes  int64        `json:"minutes"`
	At       time.Time    `json:"at"`
}
