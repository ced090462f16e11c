package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hotdash/opsgate/pkg/canonicalize"
	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/store"
)

// Entry records one archived request.
type Entry struct {
	RequestID string    `json:"request_id"`
	Hash      string    `json:"hash"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Manifest lists the objects written by one export, sorted by request id.
type Manifest struct {
	ExportedAt time.Time `json:"exported_at"`
	Entries    []Entry   `json:"entries"`
	// Hash is where the manifest itself was stored.
	Hash string `json:"-"`
}

// Exporter copies applied approval requests into a Store.
type Exporter struct {
	store  Store
	clock  func() time.Time
	logger *slog.Logger
}

// NewExporter returns an exporter writing to s.
func NewExporter(s Store) *Exporter {
	return &Exporter{
		store:  s,
		clock:  time.Now,
		logger: slog.Default().With("component", "archive"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (e *Exporter) WithClock(clock func() time.Time) *Exporter {
	e.clock = clock
	return e
}

// Export stores the canonical JSON of every applied request in reqs and a
// manifest of what was written. Requests in other states are ignored.
func (e *Exporter) Export(ctx context.Context, reqs []*contracts.ApprovalRequest) (Manifest, error) {
	m := Manifest{ExportedAt: e.clock().UTC(), Entries: []Entry{}}
	for _, r := range reqs {
		if r.State != contracts.ApprovalApplied {
			continue
		}
		if err := ctx.Err(); err != nil {
			return m, err
		}
		data, err := canonicalize.JCS(r)
		if err != nil {
			return m, fmt.Errorf("canonicalize %s: %w", r.ID, err)
		}
		hash, err := e.store.Put(ctx, data)
		if err != nil {
			return m, fmt.Errorf("archive %s: %w", r.ID, err)
		}
		m.Entries = append(m.Entries, Entry{RequestID: r.ID, Hash: hash, UpdatedAt: r.UpdatedAt})
	}
	sort.Slice(m.Entries, func(i, j int) bool { return m.Entries[i].RequestID < m.Entries[j].RequestID })

	data, err := canonicalize.JCS(m)
	if err != nil {
		return m, fmt.Errorf("canonicalize manifest: %w", err)
	}
	if m.Hash, err = e.store.Put(ctx, data); err != nil {
		return m, fmt.Errorf("archive manifest: %w", err)
	}
	e.logger.InfoContext(ctx, "approvals archived", "count", len(m.Entries), "manifest", m.Hash)
	return m, nil
}

// ExportApplied loads every applied request from s and exports it.
func (e *Exporter) ExportApplied(ctx context.Context, s store.ApprovalStore) (Manifest, error) {
	reqs, err := s.List(ctx, store.Filter{State: contracts.ApprovalApplied})
	if err != nil {
		return Manifest{}, fmt.Errorf("list applied approvals: %w", err)
	}
	return e.Export(ctx, reqs)
}
