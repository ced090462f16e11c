// Package approval is the state machine for approval requests:
//
//	draft -> pending_review -> approved -> applied
//	                        \-> rejected
//
// It is the only code that changes ApprovalRequest.State. Writers on one
// request are serialised by a Locker and by the store's version check, so two
// concurrent reviewers can never both move a request out of pending_review.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hotdash/opsgate/pkg/canonicalize"
	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/executor"
	"github.com/hotdash/opsgate/pkg/store"
)

// Hook observes committed transitions.
type Hook func(ctx context.Context, op string, req *contracts.ApprovalRequest)

// Machine drives approval requests through their lifecycle.
type Machine struct {
	store  store.ApprovalStore
	locker store.Locker
	clock  func() time.Time
	newID  func() string
	logger *slog.Logger
	hooks  []Hook
}

// NewMachine returns a machine over s with an in-process lock.
func NewMachine(s store.ApprovalStore) *Machine {
	return &Machine{
		store:  s,
		locker: store.NewKeyedMutex(),
		clock:  time.Now,
		newID:  uuid.NewString,
		logger: slog.Default().With("component", "approval"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (m *Machine) WithClock(clock func() time.Time) *Machine {
	m.clock = clock
	return m
}

// WithLocker replaces the per-request lock, e.g. with a store.RedisLocker.
func (m *Machine) WithLocker(l store.Locker) *Machine {
	m.locker = l
	return m
}

// WithLogger overrides the component logger.
func (m *Machine) WithLogger(l *slog.Logger) *Machine {
	m.logger = l
	return m
}

// OnTransition registers a hook called after every committed transition.
func (m *Machine) OnTransition(h Hook) *Machine {
	m.hooks = append(m.hooks, h)
	return m
}

// Store returns the underlying store.
func (m *Machine) Store() store.ApprovalStore {
	return m.store
}

// Create stores draft as a new request in state draft. ID, state, version and
// timestamps on draft are ignored except a non-empty ID, which is kept.
func (m *Machine) Create(ctx context.Context, draft contracts.ApprovalRequest, actor string) (*contracts.ApprovalRequest, error) {
	var missing []string
	if draft.Kind == "" {
		missing = append(missing, MsgKindRequired)
	}
	if draft.Summary == "" {
		missing = append(missing, MsgSummaryRequired)
	}
	if len(missing) > 0 {
		return nil, &ValidationError{RequestID: draft.ID, Op: "create", Fields: missing}
	}

	now := m.clock().UTC()
	req := draft
	if req.ID == "" {
		req.ID = m.newID()
	}
	if req.CreatedBy == "" {
		req.CreatedBy = actor
	}
	req.State = contracts.ApprovalDraft
	req.Reviewer = ""
	req.RejectReason = ""
	req.Grade = nil
	req.ValidationErrors = nil
	req.Actions = nonNil(req.Actions)
	req.Receipts = []contracts.Receipt{}
	req.History = []contracts.HistoryEntry{{Action: contracts.HistoryCreated, Actor: actor, At: now}}
	req.CreatedAt = now
	req.UpdatedAt = now

	if err := m.store.Create(ctx, &req); err != nil {
		return nil, fmt.Errorf("create approval: %w", err)
	}
	m.logger.InfoContext(ctx, "approval created", "request_id", req.ID, "kind", req.Kind, "actor", actor)
	m.notify(ctx, "create", &req)
	return &req, nil
}

// Get returns a request by id.
func (m *Machine) Get(ctx context.Context, id string) (*contracts.ApprovalRequest, error) {
	req, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, mapStoreErr(id, err)
	}
	return req, nil
}

// List returns requests matching f, newest first.
func (m *Machine) List(ctx context.Context, f store.Filter) ([]*contracts.ApprovalRequest, error) {
	return m.store.List(ctx, f)
}

// Submit moves a draft to pending_review.
func (m *Machine) Submit(ctx context.Context, id, actor string) (*contracts.ApprovalRequest, error) {
	return m.mutate(ctx, id, "submit", func(req *contracts.ApprovalRequest, now time.Time) (bool, error) {
		if req.State != contracts.ApprovalDraft {
			return false, &StateConflictError{RequestID: id, State: req.State, Op: "submit"}
		}
		req.State = contracts.ApprovalPendingReview
		req.History = append(req.History, contracts.HistoryEntry{Action: contracts.HistorySubmitted, Actor: actor, At: now})
		return true, nil
	})
}

// GradeInput is a reviewer's optional quality grading given at approval.
type GradeInput struct {
	Tone     int    `json:"tone"`
	Accuracy int    `json:"accuracy"`
	Policy   int    `json:"policy"`
	Original string `json:"original,omitempty"`
	Edited   string `json:"edited,omitempty"`
}

// Approve moves a pending request to approved. It fails with a
// ValidationError, leaving the request in pending_review, unless the evidence
// summary is non-empty and both the rollback and the action list have at least
// one step. The missing fields are also recorded on the request for reviewers
// to see.
func (m *Machine) Approve(ctx context.Context, id, reviewer string, grade *GradeInput) (*contracts.ApprovalRequest, error) {
	return m.mutate(ctx, id, "approve", func(req *contracts.ApprovalRequest, now time.Time) (bool, error) {
		if req.State != contracts.ApprovalPendingReview {
			return false, &StateConflictError{RequestID: id, State: req.State, Op: "approve"}
		}
		missing := Validate(req)
		if reviewer == "" {
			missing = append(missing, MsgReviewerRequired)
		}
		var g *contracts.QualityGrade
		if grade != nil {
			qg, problems := NewGrade(*grade)
			missing = append(missing, problems...)
			g = &qg
		}
		if len(missing) > 0 {
			req.ValidationErrors = missing
			return true, &ValidationError{RequestID: id, Op: "approve", Fields: missing}
		}

		req.State = contracts.ApprovalApproved
		req.Reviewer = reviewer
		req.Grade = g
		req.ValidationErrors = nil
		req.History = append(req.History, contracts.HistoryEntry{Action: contracts.HistoryApproved, Actor: reviewer, At: now})
		return true, nil
	})
}

// Reject moves a pending request to rejected. A reason is mandatory.
func (m *Machine) Reject(ctx context.Context, id, reviewer, reason string) (*contracts.ApprovalRequest, error) {
	return m.mutate(ctx, id, "reject", func(req *contracts.ApprovalRequest, now time.Time) (bool, error) {
		if req.State != contracts.ApprovalPendingReview {
			return false, &StateConflictError{RequestID: id, State: req.State, Op: "reject"}
		}
		var missing []string
		if reviewer == "" {
			missing = append(missing, MsgReviewerRequired)
		}
		if reason == "" {
			missing = append(missing, MsgReasonRequired)
		}
		if len(missing) > 0 {
			return false, &ValidationError{RequestID: id, Op: "reject", Fields: missing}
		}
		req.State = contracts.ApprovalRejected
		req.Reviewer = reviewer
		req.RejectReason = reason
		req.History = append(req.History, contracts.HistoryEntry{Action: contracts.HistoryRejected, Actor: reviewer, At: now, Note: reason})
		return true, nil
	})
}

// Apply executes an approved request through exec while holding the request
// lock, appends the receipt, and moves the request to applied only when the
// receipt confirms success. Applying an applied request returns the stored
// record unchanged together with a StateConflictError matching
// ErrAlreadyApplied; exec is not called again.
func (m *Machine) Apply(ctx context.Context, id, actor string, exec executor.Executor) (*contracts.ApprovalRequest, error) {
	return m.mutate(ctx, id, "apply", func(req *contracts.ApprovalRequest, now time.Time) (bool, error) {
		if req.State != contracts.ApprovalApproved {
			return false, &StateConflictError{RequestID: id, State: req.State, Op: "apply"}
		}
		receipt, err := exec.Execute(ctx, req)
		if err != nil {
			failed := contracts.Receipt{
				ReceiptID: m.newID(),
				RequestID: id,
				Status:    contracts.ReceiptFailed,
				Steps:     req.Actions,
				Error:     err.Error(),
			}
			if herr := m.appendReceipt(req, &failed, now); herr != nil {
				return false, herr
			}
			req.History = append(req.History, contracts.HistoryEntry{Action: contracts.HistoryApplyFail, Actor: actor, At: now, Note: err.Error()})
			return true, &ExecutionError{RequestID: id, Receipt: failed, Err: err}
		}
		return m.record(req, receipt, actor, now)
	})
}

// RecordApplied records the outcome reported by an executor running outside
// this process. A successful receipt moves the request to applied.
func (m *Machine) RecordApplied(ctx context.Context, id, actor string, receipt contracts.Receipt) (*contracts.ApprovalRequest, error) {
	return m.mutate(ctx, id, "apply", func(req *contracts.ApprovalRequest, now time.Time) (bool, error) {
		if req.State != contracts.ApprovalApproved {
			return false, &StateConflictError{RequestID: id, State: req.State, Op: "apply"}
		}
		return m.record(req, &receipt, actor, now)
	})
}

func (m *Machine) record(req *contracts.ApprovalRequest, receipt *contracts.Receipt, actor string, now time.Time) (bool, error) {
	if err := m.appendReceipt(req, receipt, now); err != nil {
		return false, err
	}
	switch {
	case receipt.Succeeded():
		req.State = contracts.ApprovalApplied
		req.History = append(req.History, contracts.HistoryEntry{Action: contracts.HistoryApplied, Actor: actor, At: now, Note: receipt.ReceiptID})
		return true, nil
	case receipt.Status == contracts.ReceiptDryRun:
		req.History = append(req.History, contracts.HistoryEntry{Action: contracts.HistoryDryRun, Actor: actor, At: now, Note: receipt.ReceiptID})
		return true, nil
	default:
		req.History = append(req.History, contracts.HistoryEntry{Action: contracts.HistoryApplyFail, Actor: actor, At: now, Note: receipt.Error})
		return true, &ExecutionError{RequestID: req.ID, Receipt: *receipt}
	}
}

// appendReceipt stamps r and appends it. ContentHash covers the receipt with
// its PrevHash, chaining every receipt to the one before it.
func (m *Machine) appendReceipt(req *contracts.ApprovalRequest, r *contracts.Receipt, now time.Time) error {
	if r.ReceiptID == "" {
		r.ReceiptID = m.newID()
	}
	r.RequestID = req.ID
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	if r.Steps == nil {
		r.Steps = req.Actions
	}
	r.PrevHash = ""
	if n := len(req.Receipts); n > 0 {
		r.PrevHash = req.Receipts[n-1].ContentHash
	}
	r.ContentHash = ""
	h, err := canonicalize.CanonicalHash(r)
	if err != nil {
		return fmt.Errorf("hash receipt: %w", err)
	}
	r.ContentHash = h
	req.Receipts = append(req.Receipts, *r)
	return nil
}

// mutate loads id under its lock, applies fn, and writes the result when fn
// asks to commit. fn's error is returned after the write.
func (m *Machine) mutate(ctx context.Context, id, op string, fn func(req *contracts.ApprovalRequest, now time.Time) (bool, error)) (*contracts.ApprovalRequest, error) {
	unlock, err := m.locker.Lock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("approval %s: %w", id, err)
	}
	defer unlock()

	req, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, mapStoreErr(id, err)
	}
	before := req.State
	now := m.clock().UTC()

	commit, opErr := fn(req, now)
	if !commit {
		if opErr != nil {
			m.logger.InfoContext(ctx, "approval transition refused", "request_id", id, "op", op, "state", req.State, "error", opErr)
		}
		return req, opErr
	}

	req.UpdatedAt = now
	if err := m.store.Update(ctx, req); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, &StateConflictError{RequestID: id, State: before, Op: op, Concurrent: true}
		}
		return nil, fmt.Errorf("approval %s: %s: %w", id, op, err)
	}
	if opErr != nil {
		m.logger.InfoContext(ctx, "approval transition failed", "request_id", id, "op", op, "state", req.State, "error", opErr)
		return req, opErr
	}
	m.logger.InfoContext(ctx, "approval transition", "request_id", id, "op", op, "from", before, "to", req.State)
	m.notify(ctx, op, req)
	return req, nil
}

func (m *Machine) notify(ctx context.Context, op string, req *contracts.ApprovalRequest) {
	for _, h := range m.hooks {
		h(ctx, op, req)
	}
}

func mapStoreErr(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fmt.Errorf("approval %s: %w", id, err)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
