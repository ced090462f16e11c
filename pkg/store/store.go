// Package store persists approval requests. Every implementation enforces
// optimistic concurrency: an update succeeds only against the version it was
// read at, so two writers can never both move a request out of one state.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hotdash/opsgate/pkg/contracts"
)

var (
	ErrNotFound        = errors.New("approval request not found")
	ErrVersionConflict = errors.New("approval request was modified concurrently")
	ErrDuplicateID     = errors.New("approval request already exists")
)

// Filter narrows List. Zero fields match everything. Results are ordered by
// creation time, newest first.
type Filter struct {
	State       contracts.ApprovalState
	Kind        string
	Fingerprint string
	Limit       int
	Offset      int
}

// ApprovalStore is the persistence boundary of the approval state machine.
type ApprovalStore interface {
	// Create inserts req with Version 1.
	Create(ctx context.Context, req *contracts.ApprovalRequest) error
	Get(ctx context.Context, id string) (*contracts.ApprovalRequest, error)
	// Update replaces the stored record if its version equals req.Version,
	// then increments req.Version.
	Update(ctx context.Context, req *contracts.ApprovalRequest) error
	List(ctx context.Context, f Filter) ([]*contracts.ApprovalRequest, error)
	Close() error
}

// MemoryStore is an in-process ApprovalStore. Records are deep-copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string][]byte
	meta map[string]*contracts.ApprovalRequest
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[string][]byte),
		meta: make(map[string]*contracts.ApprovalRequest),
	}
}

func (s *MemoryStore) Create(ctx context.Context, req *contracts.ApprovalRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[req.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, req.ID)
	}
	req.Version = 1
	return s.put(req)
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*contracts.ApprovalRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return decode(raw)
}

func (s *MemoryStore) Update(ctx context.Context, req *contracts.ApprovalRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.meta[req.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, req.ID)
	}
	if cur.Version != req.Version {
		return fmt.Errorf("%w: %s at version %d, have %d", ErrVersionConflict, req.ID, cur.Version, req.Version)
	}
	req.Version++
	if err := s.put(req); err != nil {
		req.Version--
		return err
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]*contracts.ApprovalRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, m := range s.meta {
		if matches(m, f) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.meta[ids[i]], s.meta[ids[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	ids = page(ids, f)
	out := make([]*contracts.ApprovalRequest, 0, len(ids))
	for _, id := range ids {
		r, err := decode(s.rows[id])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) put(req *contracts.ApprovalRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode approval %s: %w", req.ID, err)
	}
	s.rows[req.ID] = raw
	s.meta[req.ID] = &contracts.ApprovalRequest{
		ID:          req.ID,
		Kind:        req.Kind,
		State:       req.State,
		Fingerprint: req.Fingerprint,
		CreatedAt:   req.CreatedAt,
		Version:     req.Version,
	}
	return nil
}

func matches(m *contracts.ApprovalRequest, f Filter) bool {
	if f.State != "" && m.State != f.State {
		return false
	}
	if f.Kind != "" && m.Kind != f.Kind {
		return false
	}
	if f.Fingerprint != "" && m.Fingerprint != f.Fingerprint {
		return false
	}
	return true
}

func page[T any](items []T, f Filter) []T {
	if f.Offset > 0 {
		if f.Offset >= len(items) {
			return items[:0]
		}
		items = items[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(items) {
		items = items[:f.Limit]
	}
	return items
}

func decode(raw []byte) (*contracts.ApprovalRequest, error) {
	var r contracts.ApprovalRequest
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode approval: %w", err)
	}
	return &r, nil
}
