package approval_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotdash/opsgate/pkg/approval"
	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/executor"
	"github.com/hotdash/opsgate/pkg/store"
)

var t0 = time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)

func newMachine() *approval.Machine {
	now := t0
	return approval.NewMachine(store.NewMemoryStore()).WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	})
}

func growthDraft() contracts.ApprovalRequest {
	return contracts.ApprovalRequest{
		Kind:        contracts.KindGrowth,
		Summary:     `Pause campaign "Spring"`,
		Fingerprint: "pause_campaign:c1",
		Evidence:    &contracts.EvidenceBlock{Summary: "Low CTR (0.60%) - below 1.00% threshold"},
		Rollback: &contracts.RollbackBlock{
			Description: "Resume campaign",
			Steps:       []contracts.ActionStep{{Tool: "ads.campaign.resume", Args: map[string]any{"campaign_id": "c1"}}},
		},
		Actions: []contracts.ActionStep{{Tool: "ads.campaign.pause", Args: map[string]any{"campaign_id": "c1"}}},
	}
}

func pending(t *testing.T, m *approval.Machine, draft contracts.ApprovalRequest) *contracts.ApprovalRequest {
	t.Helper()
	ctx := context.Background()
	req, err := m.Create(ctx, draft, "automation")
	require.NoError(t, err)
	req, err = m.Submit(ctx, req.ID, "automation")
	require.NoError(t, err)
	return req
}

type countingExecutor struct {
	calls  int32
	status contracts.ReceiptStatus
	err    error
}

func (c *countingExecutor) Execute(_ context.Context, req *contracts.ApprovalRequest) (*contracts.Receipt, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.err != nil {
		return nil, c.err
	}
	status := c.status
	if status == "" {
		status = contracts.ReceiptSucceeded
	}
	r := &contracts.Receipt{Status: status, ExecutorID: "test", ExternalRef: "ads-op-1"}
	if status == contracts.ReceiptFailed {
		r.Error = "quota exceeded"
	}
	return r, nil
}

func TestLifecycle(t *testing.T) {
	m := newMachine()
	ctx := context.Background()

	req, err := m.Create(ctx, growthDraft(), "automation")
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, contracts.ApprovalDraft, req.State)
	assert.Equal(t, int64(1), req.Version)

	req, err = m.Submit(ctx, req.ID, "automation")
	require.NoError(t, err)
	assert.Equal(t, contracts.ApprovalPendingReview, req.State)

	req, err = m.Approve(ctx, req.ID, "justin", nil)
	require.NoError(t, err)
	assert.Equal(t, contracts.ApprovalApproved, req.State)
	assert.Equal(t, "justin", req.Reviewer)

	exec := &countingExecutor{}
	req, err = m.Apply(ctx, req.ID, "justin", exec)
	require.NoError(t, err)
	assert.Equal(t, contracts.ApprovalApplied, req.State)
	require.Len(t, req.Receipts, 1)
	r := req.Receipts[0]
	assert.Equal(t, req.ID, r.RequestID)
	assert.NotEmpty(t, r.ReceiptID)
	assert.Len(t, r.ContentHash, 64)
	assert.Empty(t, r.PrevHash)

	actions := make([]contracts.HistoryAction, len(req.History))
	for i, h := range req.History {
		actions[i] = h.Action
	}
	assert.Equal(t, []contracts.HistoryAction{
		contracts.HistoryCreated, contracts.HistorySubmitted, contracts.HistoryApproved, contracts.HistoryApplied,
	}, actions)
	assert.True(t, req.UpdatedAt.After(req.CreatedAt))
}

func TestApprove_RequiresRollbackSteps(t *testing.T) {
	m := newMachine()
	draft := growthDraft()
	draft.Rollback.Steps = []contracts.ActionStep{}
	req := pending(t, m, draft)

	_, err := m.Approve(context.Background(), req.ID, "justin", nil)
	var ve *approval.ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.Equal(t, []string{approval.MsgRollbackRequired}, ve.Fields)
	assert.Contains(t, err.Error(), "Rollback steps are required")

	got, err := m.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.ApprovalPendingReview, got.State)
	assert.Equal(t, []string{approval.MsgRollbackRequired}, got.ValidationErrors)
}

func TestApprove_RequiresActions(t *testing.T) {
	m := newMachine()
	draft := growthDraft()
	draft.Actions = nil
	req := pending(t, m, draft)

	_, err := m.Approve(context.Background(), req.ID, "justin", nil)
	var ve *approval.ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.Equal(t, []string{approval.MsgActionsRequired}, ve.Fields)

	got, err := m.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.ApprovalPendingReview, got.State)
}

func TestApprove_ListsEveryMissingField(t *testing.T) {
	m := newMachine()
	draft := growthDraft()
	draft.Evidence = &contracts.EvidenceBlock{Summary: "   "}
	draft.Rollback = nil
	req := pending(t, m, draft)

	_, err := m.Approve(context.Background(), req.ID, "", nil)
	var ve *approval.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{approval.MsgEvidenceRequired, approval.MsgRollbackRequired, approval.MsgReviewerRequired}, ve.Fields)
}

func TestApprove_GradesValidatedAndRecorded(t *testing.T) {
	m := newMachine()
	draft := growthDraft()
	draft.Kind = contracts.KindSupport
	req := pending(t, m, draft)

	_, err := m.Approve(context.Background(), req.ID, "justin", &approval.GradeInput{Tone: 6, Accuracy: 5, Policy: 0})
	var ve *approval.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"Tone grade must be between 1 and 5", "Policy grade must be between 1 and 5"}, ve.Fields)

	got, err := m.Approve(context.Background(), req.ID, "justin", &approval.GradeInput{
		Tone:     5, Accuracy: 4, Policy: 5,
		Original: "Thanks for reaching out! Your order ships today.",
		Edited:   "Thanks for reaching out! Your order shipped today.",
	})
	require.NoError(t, err)
	require.NotNil(t, got.Grade)
	assert.Equal(t, contracts.EditMinor, got.Grade.EditType)
	assert.Equal(t, 3, got.Grade.EditDistance)
	assert.Empty(t, got.ValidationErrors)
}

func TestReject(t *testing.T) {
	m := newMachine()
	req := pending(t, m, growthDraft())

	_, err := m.Reject(context.Background(), req.ID, "justin", "")
	var ve *approval.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{approval.MsgReasonRequired}, ve.Fields)

	got, err := m.Reject(context.Background(), req.ID, "justin", "seasonal campaign, keep running")
	require.NoError(t, err)
	assert.Equal(t, contracts.ApprovalRejected, got.State)
	assert.Equal(t, "seasonal campaign, keep running", got.RejectReason)
}

func TestTerminalStatesRefuseEveryTransition(t *testing.T) {
	m := newMachine()
	ctx := context.Background()
	rejected := pending(t, m, growthDraft())
	_, err := m.Reject(ctx, rejected.ID, "justin", "no")
	require.NoError(t, err)

	exec := &countingExecutor{}
	ops := map[string]func() error{
		"submit":  func() error { _, err := m.Submit(ctx, rejected.ID, "x"); return err },
		"approve": func() error { _, err := m.Approve(ctx, rejected.ID, "x", nil); return err },
		"reject":  func() error { _, err := m.Reject(ctx, rejected.ID, "x", "again"); return err },
		"apply":   func() error { _, err := m.Apply(ctx, rejected.ID, "x", exec); return err },
	}
	for name, op := range ops {
		err := op()
		assert.ErrorIs(t, err, approval.ErrAlreadyProcessed, name)
		var sc *approval.StateConflictError
		require.ErrorAs(t, err, &sc, name)
		assert.Equal(t, contracts.ApprovalRejected, sc.State)
	}
	assert.Zero(t, exec.calls)
}

func TestNoStateIsSkipped(t *testing.T) {
	m := newMachine()
	ctx := context.Background()
	req, err := m.Create(ctx, growthDraft(), "automation")
	require.NoError(t, err)

	_, err = m.Approve(ctx, req.ID, "justin", nil)
	assert.ErrorIs(t, err, approval.ErrAlreadyProcessed)
	_, err = m.Apply(ctx, req.ID, "justin", &countingExecutor{})
	assert.ErrorIs(t, err, approval.ErrAlreadyProcessed)

	req = pending(t, m, growthDraft())
	_, err = m.Apply(ctx, req.ID, "justin", &countingExecutor{})
	assert.ErrorIs(t, err, approval.ErrAlreadyProcessed)
}

func TestApplyTwiceIsNoOp(t *testing.T) {
	m := newMachine()
	ctx := context.Background()
	req := pending(t, m, growthDraft())
	_, err := m.Approve(ctx, req.ID, "justin", nil)
	require.NoError(t, err)

	exec := &countingExecutor{}
	applied, err := m.Apply(ctx, req.ID, "justin", exec)
	require.NoError(t, err)
	before, err := json.Marshal(applied)
	require.NoError(t, err)

	again, err := m.Apply(ctx, req.ID, "justin", exec)
	assert.ErrorIs(t, err, approval.ErrAlreadyApplied)
	assert.ErrorIs(t, err, approval.ErrAlreadyProcessed)
	require.NotNil(t, again)
	after, err := json.Marshal(again)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	assert.Equal(t, int32(1), exec.calls)

	stored, err := m.Get(ctx, req.ID)
	require.NoError(t, err)
	storedJSON, err := json.Marshal(stored)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(storedJSON))
}

func TestApplyFailureKeepsApprovedAndChainsReceipts(t *testing.T) {
	m := newMachine()
	ctx := context.Background()
	req := pending(t, m, growthDraft())
	_, err := m.Approve(ctx, req.ID, "justin", nil)
	require.NoError(t, err)

	got, err := m.Apply(ctx, req.ID, "justin", &countingExecutor{err: errors.New("ads api timeout")})
	assert.ErrorIs(t, err, approval.ErrExecutionFailed)
	require.NotNil(t, got)
	assert.Equal(t, contracts.ApprovalApproved, got.State)
	require.Len(t, got.Receipts, 1)
	assert.Equal(t, contracts.ReceiptFailed, got.Receipts[0].Status)

	got, err = m.Apply(ctx, req.ID, "justin", &countingExecutor{status: contracts.ReceiptFailed})
	var ee *approval.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "quota exceeded", ee.Receipt.Error)
	assert.Equal(t, contracts.ApprovalApproved, got.State)

	got, err = m.Apply(ctx, req.ID, "justin", &countingExecutor{})
	require.NoError(t, err)
	assert.Equal(t, contracts.ApprovalApplied, got.State)
	require.Len(t, got.Receipts, 3)
	for i := 1; i < len(got.Receipts); i++ {
		assert.Equal(t, got.Receipts[i-1].ContentHash, got.Receipts[i].PrevHash)
	}
	last := got.History[len(got.History)-1]
	assert.Equal(t, contracts.HistoryApplied, last.Action)
}

func TestApplyDryRunStaysApproved(t *testing.T) {
	m := newMachine()
	ctx := context.Background()
	req := pending(t, m, growthDraft())
	_, err := m.Approve(ctx, req.ID, "justin", nil)
	require.NoError(t, err)

	got, err := m.Apply(ctx, req.ID, "cli", executor.NewDryRun())
	require.NoError(t, err)
	assert.Equal(t, contracts.ApprovalApproved, got.State)
	assert.Equal(t, contracts.HistoryDryRun, got.History[len(got.History)-1].Action)
	assert.Equal(t, contracts.ReceiptDryRun, got.Receipts[0].Status)
}

func TestRecordApplied(t *testing.T) {
	m := newMachine()
	ctx := context.Background()
	req := pending(t, m, growthDraft())
	_, err := m.Approve(ctx, req.ID, "justin", nil)
	require.NoError(t, err)

	got, err := m.RecordApplied(ctx, req.ID, "ads-worker", contracts.Receipt{Status: contracts.ReceiptSucceeded, ExternalRef: "op-9"})
	require.NoError(t, err)
	assert.Equal(t, contracts.ApprovalApplied, got.State)
	assert.Equal(t, "op-9", got.Receipts[0].ExternalRef)

	_, err = m.RecordApplied(ctx, req.ID, "ads-worker", contracts.Receipt{Status: contracts.ReceiptSucceeded})
	assert.ErrorIs(t, err, approval.ErrAlreadyApplied)
}

func TestConcurrentReviewersExactlyOneWins(t *testing.T) {
	m := newMachine()
	ctx := context.Background()
	req := pending(t, m, growthDraft())

	var wins, conflicts int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = m.Approve(ctx, req.ID, "a", nil)
			} else {
				_, err = m.Reject(ctx, req.ID, "b", "no")
			}
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, approval.ErrAlreadyProcessed):
				atomic.AddInt32(&conflicts, 1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(15), conflicts)
}

// racingStore lets another writer update the record between the machine's
// read and its write.
type racingStore struct {
	*store.MemoryStore
	once sync.Once
}

func (r *racingStore) Get(ctx context.Context, id string) (*contracts.ApprovalRequest, error) {
	req, err := r.MemoryStore.Get(ctx, id)
	if err != nil || req.State != contracts.ApprovalPendingReview {
		return req, err
	}
	r.once.Do(func() {
		other, _ := r.MemoryStore.Get(ctx, id)
		other.State = contracts.ApprovalRejected
		_ = r.MemoryStore.Update(ctx, other)
	})
	return req, nil
}

func TestLostCompareAndSwapIsConflict(t *testing.T) {
	rs := &racingStore{MemoryStore: store.NewMemoryStore()}
	m := approval.NewMachine(rs)
	ctx := context.Background()
	req, err := m.Create(ctx, growthDraft(), "automation")
	require.NoError(t, err)
	_, err = m.Submit(ctx, req.ID, "automation")
	require.NoError(t, err)

	_, err = m.Approve(ctx, req.ID, "justin", nil)
	var sc *approval.StateConflictError
	require.ErrorAs(t, err, &sc)
	assert.True(t, sc.Concurrent)
	assert.ErrorIs(t, err, approval.ErrAlreadyProcessed)

	got, err := m.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.ApprovalRejected, got.State)
}

func TestCreateValidationAndNotFound(t *testing.T) {
	m := newMachine()
	ctx := context.Background()

	_, err := m.Create(ctx, contracts.ApprovalRequest{}, "x")
	var ve *approval.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{approval.MsgKindRequired, approval.MsgSummaryRequired}, ve.Fields)

	_, err = m.Get(ctx, "missing")
	assert.ErrorIs(t, err, approval.ErrNotFound)
	_, err = m.Submit(ctx, "missing", "x")
	assert.ErrorIs(t, err, approval.ErrNotFound)
}

func TestHooksSeeCommittedTransitions(t *testing.T) {
	var ops []string
	m := newMachine().OnTransition(func(_ context.Context, op string, _ *contracts.ApprovalRequest) {
		ops = append(ops, op)
	})
	req := pending(t, m, growthDraft())
	_, _ = m.Reject(context.Background(), req.ID, "justin", "")
	_, err := m.Reject(context.Background(), req.ID, "justin", "duplicate")
	require.NoError(t, err)
	assert.Equal(t, []string{"create", "submit", "reject"}, ops)
}

func TestCountsAndMetrics(t *testing.T) {
	assert.Equal(t, 0.0, approval.Count(nil).ApprovalRate)

	m := newMachine()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		req := pending(t, m, growthDraft())
		if i < 2 {
			_, err := m.Approve(ctx, req.ID, "justin", &approval.GradeInput{Tone: 4, Accuracy: 4, Policy: 5})
			require.NoError(t, err)
		} else {
			_, err := m.Reject(ctx, req.ID, "justin", "no")
			require.NoError(t, err)
		}
	}
	_, err := m.Create(ctx, growthDraft(), "automation")
	require.NoError(t, err)

	metrics, err := m.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, approval.Counts{Draft: 1, Approved: 2, Rejected: 1, ApprovalRate: 2.0 / 3.0}, metrics.Counts)
	assert.Equal(t, 2, metrics.Quality.Graded)
	assert.InDelta(t, 4.0, metrics.Quality.AvgTone, 1e-9)
	assert.Len(t, metrics.Quality.Alerts, 2)
}
