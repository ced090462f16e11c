package contracts

import "time"

// ApprovalState is the lifecycle state of an ApprovalRequest. Only the
// approval state machine moves a request between states.
type ApprovalState string

const (
	ApprovalDraft         ApprovalState = "draft"
	ApprovalPendingReview ApprovalState = "pending_review"
	ApprovalApproved      ApprovalState = "approved"
	ApprovalRejected      ApprovalState = "rejected"
	ApprovalApplied       ApprovalState = "applied"
)

// ApprovalStates lists every state in lifecycle order.
var ApprovalStates = []ApprovalState{
	ApprovalDraft, ApprovalPendingReview, ApprovalApproved, ApprovalRejected, ApprovalApplied,
}

// Terminal reports whether no further transition is possible.
func (s ApprovalState) Terminal() bool {
	return s == ApprovalRejected || s == ApprovalApplied
}

// Valid reports whether s is a known state.
func (s ApprovalState) Valid() bool {
	for _, v := range ApprovalStates {
		if s == v {
			return true
		}
	}
	return false
}

// Approval kinds.
const (
	KindGrowth  = "growth"
	KindSupport = "support"
)

// EvidenceBlock tells a reviewer what changed and why now.
type EvidenceBlock struct {
	Summary string         `json:"summary"`
	WhyNow  string         `json:"why_now,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// ImpactBlock is the projected effect of applying the request.
type ImpactBlock struct {
	Projected    string `json:"projected"`
	SpendDelta   Money  `json:"spend_delta"`
	RevenueDelta Money  `json:"revenue_delta"`
	Savings      Money  `json:"savings"`
}

// RiskBlock lists what could go wrong.
type RiskBlock struct {
	Level       Severity `json:"level"`
	Description string   `json:"description"`
}

// RollbackBlock describes how to undo the request once applied.
type RollbackBlock struct {
	Description string       `json:"description"`
	Steps       []ActionStep `json:"steps"`
}

// HistoryAction names a recorded transition.
type HistoryAction string

const (
	HistoryCreated   HistoryAction = "created"
	HistorySubmitted HistoryAction = "submitted"
	HistoryApproved  HistoryAction = "approved"
	HistoryRejected  HistoryAction = "rejected"
	HistoryApplied   HistoryAction = "applied"
	HistoryApplyFail HistoryAction = "apply_failed"
	HistoryDryRun    HistoryAction = "dry_run"
)

// HistoryEntry is one audit line on a request.
type HistoryEntry struct {
	Action HistoryAction `json:"action"`
	Actor  string        `json:"actor"`
	At     time.Time     `json:"at"`
	Note   string        `json:"note,omitempty"`
}

// ApprovalRequest is the unit the approval state machine manages.
type ApprovalRequest struct {
	ID               string         `json:"id"`
	Kind             string         `json:"kind"`
	State            ApprovalState  `json:"state"`
	Summary          string         `json:"summary"`
	CreatedBy        string         `json:"created_by"`
	Reviewer         string         `json:"reviewer,omitempty"`
	Fingerprint      string         `json:"fingerprint,omitempty"`
	Evidence         *EvidenceBlock `json:"evidence,omitempty"`
	Impact           *ImpactBlock   `json:"impact,omitempty"`
	Risk             *RiskBlock     `json:"risk,omitempty"`
	Rollback         *RollbackBlock `json:"rollback,omitempty"`
	Actions          []ActionStep   `json:"actions"`
	Receipts         []Receipt      `json:"receipts"`
	History          []HistoryEntry `json:"history"`
	Grade            *QualityGrade  `json:"grade,omitempty"`
	RejectReason     string         `json:"reject_reason,omitempty"`
	ValidationErrors []string       `json:"validation_errors,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Version          int64          `json:"version"`
}
