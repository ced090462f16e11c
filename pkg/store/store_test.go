package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotdash/opsgate/pkg/contracts"
)

func sample(id string, state contracts.ApprovalState, created time.Time) *contracts.ApprovalRequest {
	return &contracts.ApprovalRequest{
		ID:          id,
		Kind:        contracts.KindGrowth,
		State:       state,
		Summary:     "Pause campaign " + id,
		CreatedBy:   "automation",
		Fingerprint: "pause_campaign:" + id,
		Evidence:    &contracts.EvidenceBlock{Summary: "Low CTR (0.60%) - below 1.00% threshold"},
		Rollback: &contracts.RollbackBlock{
			Description: "Resume",
			Steps:       []contracts.ActionStep{{Tool: "ads.campaign.resume", Args: map[string]any{"campaign_id": id}}},
		},
		Actions:   []contracts.ActionStep{{Tool: "ads.campaign.pause", Args: map[string]any{"campaign_id": id}}},
		Receipts:  []contracts.Receipt{},
		History:   []contracts.HistoryEntry{{Action: contracts.HistoryCreated, Actor: "automation", At: created}},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// exerciseStore runs the behaviour every ApprovalStore must share.
func exerciseStore(t *testing.T, s ApprovalStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		req := sample(fmt.Sprintf("req-%d", i), contracts.ApprovalPendingReview, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.Create(ctx, req))
		assert.Equal(t, int64(1), req.Version)
	}

	err := s.Create(ctx, sample("req-0", contracts.ApprovalDraft, base))
	assert.True(t, errors.Is(err, ErrDuplicateID), "got %v", err)

	got, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "Pause campaign req-1", got.Summary)
	assert.Equal(t, "req-1", got.Rollback.Steps[0].Args["campaign_id"])

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	// Two writers read version 1; only the first update lands.
	a, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	b, err := s.Get(ctx, "req-1")
	require.NoError(t, err)

	a.State = contracts.ApprovalApproved
	require.NoError(t, s.Update(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	b.State = contracts.ApprovalRejected
	err = s.Update(ctx, b)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, int64(1), b.Version)

	got, err = s.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, contracts.ApprovalApproved, got.State)

	missing := sample("ghost", contracts.ApprovalDraft, base)
	missing.Version = 1
	assert.ErrorIs(t, s.Update(ctx, missing), ErrNotFound)

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "req-2", all[0].ID, "newest first")

	pending, err := s.List(ctx, Filter{State: contracts.ApprovalPendingReview})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	paged, err := s.List(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "req-1", paged[0].ID)

	skipped, err := s.List(ctx, Filter{Offset: 2})
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	assert.Equal(t, "req-0", skipped[0].ID)

	byFP, err := s.List(ctx, Filter{Fingerprint: "pause_campaign:req-0"})
	require.NoError(t, err)
	require.Len(t, byFP, 1)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	req := sample("r", contracts.ApprovalDraft, time.Now())
	require.NoError(t, s.Create(ctx, req))

	req.Summary = "mutated after create"
	got, err := s.Get(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "Pause campaign r", got.Summary)

	got.Actions[0].Tool = "mutated"
	again, err := s.Get(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "ads.campaign.pause", again.Actions[0].Tool)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryStore().Get(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestQuestionMarks(t *testing.T) {
	assert.Equal(t, "SELECT 1 WHERE a = ? AND b = ?", questionMarks("SELECT 1 WHERE a = $1 AND b = $2"))
}
