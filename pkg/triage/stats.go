package triage

import "github.com/hotdash/opsgate/pkg/contracts"

// Stats summarizes a batch of triage results.
type Stats struct {
	Total          int            `json:"total"`
	ByPriority     map[string]int `json:"by_priority"`
	Escalated      int            `json:"escalated"`
	EscalationRate float64        `json:"escalation_rate_pct"`
	AvgConfidence  float64        `json:"avg_confidence"`
}

// Summarize counts results per priority. An empty batch yields zero rates.
func Summarize(results []contracts.TriageResult) Stats {
	s := Stats{ByPriority: make(map[string]int, len(contracts.Priorities))}
	for _, p := range contracts.Priorities {
		s.ByPriority[p.String()] = 0
	}
	var conf float64
	for _, r := range results {
		s.Total++
		s.ByPriority[r.Priority.String()]++
		if r.EscalateToHuman {
			s.Escalated++
		}
		conf += r.Confidence
	}
	if s.Total > 0 {
		s.EscalationRate = float64(s.Escalated) / float64(s.Total) * 100
		s.AvgConfidence = conf / float64(s.Total)
	}
	return s
}
