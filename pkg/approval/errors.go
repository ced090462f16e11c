package approval

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hotdash/opsgate/pkg/contracts"
)

var (
	ErrNotFound         = errors.New("approval request not found")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrAlreadyApplied   = errors.New("already applied")
	ErrExecutionFailed  = errors.New("execution failed")
)

// Gate messages reported in ValidationError.Fields.
const (
	MsgEvidenceRequired = "Evidence summary is required"
	MsgRollbackRequired = "Rollback steps are required"
	MsgActionsRequired  = "At least one action is required"
	MsgReviewerRequired = "Reviewer is required"
	MsgReasonRequired   = "Rejection reason is required"
	MsgSummaryRequired  = "Summary is required"
	MsgKindRequired     = "Kind is required"
)

// ValidationError lists every field that blocked a transition.
type ValidationError struct {
	RequestID string
	Op        string
	Fields    []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("approval %s: cannot %s: %s", e.RequestID, e.Op, strings.Join(e.Fields, "; "))
}

// StateConflictError is returned for a transition the current state does not
// allow, including any transition out of a terminal state and a write that
// lost a race with another reviewer.
type StateConflictError struct {
	RequestID string
	State     contracts.ApprovalState
	Op        string
	// Concurrent is set when the state changed between read and write.
	Concurrent bool
}

func (e *StateConflictError) Error() string {
	if e.Concurrent {
		return fmt.Sprintf("approval %s: cannot %s: modified concurrently: %s", e.RequestID, e.Op, ErrAlreadyProcessed)
	}
	return fmt.Sprintf("approval %s: cannot %s from state %q: %s", e.RequestID, e.Op, e.State, ErrAlreadyProcessed)
}

// Is matches ErrAlreadyProcessed, and ErrAlreadyApplied for applied requests.
func (e *StateConflictError) Is(target error) bool {
	switch target {
	case ErrAlreadyProcessed:
		return true
	case ErrAlreadyApplied:
		return e.State == contracts.ApprovalApplied
	}
	return false
}

// ExecutionError carries the receipt of a failed or unconfirmed execution.
// The request stays approved and may be applied again.
type ExecutionError struct {
	RequestID string
	Receipt   contracts.Receipt
	Err       error
}

func (e *ExecutionError) Error() string {
	msg := e.Receipt.Error
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("approval %s: %s: %s", e.RequestID, ErrExecutionFailed, msg)
}

func (e *ExecutionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrExecutionFailed, e.Err}
	}
	return []error{ErrExecutionFailed}
}
