package sla

import (
	"time"

	"github.com/hotdash/opsgate/pkg/contracts"
)

// Compliance summarizes how a set of items fared against their SLAs.
type Compliance struct {
	Total                 int     `json:"total"`
	Responded             int     `json:"responded"`
	Resolved              int     `json:"resolved"`
	ResponseCompliance    float64 `json:"response_compliance_pct"`
	ResolutionCompliance  float64 `json:"resolution_compliance_pct"`
	AvgResponseMinutes    float64 `json:"avg_response_minutes"`
	AvgResolutionMinutes  float64 `json:"avg_resolution_minutes"`
	ResponseBreaches      int     `json:"response_breaches"`
	ResolutionBreaches    int     `json:"resolution_breaches"`
	CurrentlyAtRiskOrOver int     `json:"currently_at_risk_or_over"`
}

// ComplianceMetrics computes compliance rates over items at now. Only items
// whose event happened count toward a rate; the denominators are guarded so an
// empty set yields 100% compliance and zero averages. Malformed items are
// ignored.
func (m *Monitor) ComplianceMetrics(items []contracts.WorkItem, now time.Time) Compliance {
	var (
		c                    Compliance
		respOK, resoOK       int
		respTotal, resoTotal int64
	)
	for _, it := range items {
		st, err := m.Check(it, now)
		if err != nil {
			continue
		}
		c.Total++
		if st.State != contracts.SLAOnTrack && !st.ResolutionMinutes.Valid() {
			c.CurrentlyAtRiskOrOver++
		}
		if st.ResponseBreached {
			c.ResponseBreaches++
		}
		if st.ResolutionBreached {
			c.ResolutionBreaches++
		}
		if v, ok := st.ResponseMinutes.Get(); ok {
			c.Responded++
			respTotal += v
			if !st.ResponseBreached {
				respOK++
			}
		}
		if v, ok := st.ResolutionMinutes.Get(); ok {
			c.Resolved++
			resoTotal += v
			if !st.ResolutionBreached {
				resoOK++
			}
		}
	}
	c.ResponseCompliance = rate(respOK, c.Responded)
	c.ResolutionCompliance = rate(resoOK, c.Resolved)
	if c.Responded > 0 {
		c.AvgResponseMinutes = float64(respTotal) / float64(c.Responded)
	}
	if c.Resolved > 0 {
		c.AvgResolutionMinutes = float64(resoTotal) / float64(c.Resolved)
	}
	return c
}

func rate(ok, n int) float64 {
	if n == 0 {
		return 100
	}
	return float64(ok) / float64(n) * 100
}

// ComplianceMetrics runs against the default SLA table.
func ComplianceMetrics(items []contracts.WorkItem, now time.Time) Compliance {
	return defaultMonitor.ComplianceMetrics(items, now)
}
