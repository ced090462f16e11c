package approval

import (
	"context"

	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/store"
)

// Counts tallies requests by state.
type Counts struct {
	Draft    int `json:"draft"`
	Pending  int `json:"pending_review"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Applied  int `json:"applied"`
	// ApprovalRate is approved/(approved+rejected), where approved includes
	// requests that were later applied. It is 0 with no decisions.
	ApprovalRate float64 `json:"approval_rate"`
}

// Count tallies reqs.
func Count(reqs []*contracts.ApprovalRequest) Counts {
	var c Counts
	for _, r := range reqs {
		switch r.State {
		case contracts.ApprovalDraft:
			c.Draft++
		case contracts.ApprovalPendingReview:
			c.Pending++
		case contracts.ApprovalApproved:
			c.Approved++
		case contracts.ApprovalRejected:
			c.Rejected++
		case contracts.ApprovalApplied:
			c.Applied++
		}
	}
	decided := c.Approved + c.Applied + c.Rejected
	if decided > 0 {
		c.ApprovalRate = float64(c.Approved+c.Applied) / float64(decided)
	}
	return c
}

// Metrics is the dashboard summary over every stored request.
type Metrics struct {
	Counts  Counts                   `json:"counts"`
	Quality contracts.QualityMetrics `json:"quality"`
}

// Metrics loads every request and summarises it.
func (m *Machine) Metrics(ctx context.Context) (Metrics, error) {
	all, err := m.store.List(ctx, store.Filter{})
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{Counts: Count(all), Quality: ComputeQualityMetrics(all)}, nil
}
