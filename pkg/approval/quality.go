package approval

import (
	"fmt"

	"github.com/hotdash/opsgate/pkg/contracts"
)

// Quality alert floors on the 1..5 grade scale.
const (
	ToneAlertBelow     = 4.5
	AccuracyAlertBelow = 4.7
)

// NewGrade validates in and derives the edit statistics. Problems are
// returned as gate messages.
func NewGrade(in GradeInput) (contracts.QualityGrade, []string) {
	var problems []string
	for _, s := range []struct {
		name  string
		value int
	}{{"Tone", in.Tone}, {"Accuracy", in.Accuracy}, {"Policy", in.Policy}} {
		if s.value < 1 || s.value > 5 {
			problems = append(problems, fmt.Sprintf("%s grade must be between 1 and 5", s.name))
		}
	}
	g := contracts.QualityGrade{
		Tone:     in.Tone,
		Accuracy: in.Accuracy,
		Policy:   in.Policy,
		Original: in.Original,
		Edited:   in.Edited,
		EditType: contracts.EditNone,
	}
	if in.Edited != "" && in.Edited != in.Original {
		g.EditDistance = Levenshtein(in.Original, in.Edited)
		g.EditRatio = EditRatio(in.Original, in.Edited, g.EditDistance)
		g.EditType = ClassifyEdit(g.EditRatio)
	}
	return g, problems
}

// Levenshtein returns the edit distance between a and b in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// EditRatio is distance over the longer text, 0 when both are empty.
func EditRatio(a, b string, distance int) float64 {
	n := max(len([]rune(a)), len([]rune(b)))
	if n == 0 {
		return 0
	}
	return float64(distance) / float64(n)
}

// ClassifyEdit buckets an edit ratio.
func ClassifyEdit(ratio float64) contracts.EditType {
	switch {
	case ratio == 0:
		return contracts.EditNone
	case ratio < 0.1:
		return contracts.EditMinor
	case ratio < 0.3:
		return contracts.EditModerate
	case ratio < 0.6:
		return contracts.EditMajor
	default:
		return contracts.EditCompleteRewrite
	}
}

// ComputeQualityMetrics averages the grades recorded on reqs. EditRate is the
// percentage of graded requests whose reply was edited.
func ComputeQualityMetrics(reqs []*contracts.ApprovalRequest) contracts.QualityMetrics {
	var (
		q                                 contracts.QualityMetrics
		tone, accuracy, policy, editRatio float64
		edited                            int
	)
	for _, r := range reqs {
		if r.Grade == nil {
			continue
		}
		g := r.Grade
		q.Graded++
		tone += float64(g.Tone)
		accuracy += float64(g.Accuracy)
		policy += float64(g.Policy)
		editRatio += g.EditRatio
		if g.EditType != contracts.EditNone && g.EditType != "" {
			edited++
		}
	}
	if q.Graded == 0 {
		return q
	}
	n := float64(q.Graded)
	q.AvgTone = tone / n
	q.AvgAccuracy = accuracy / n
	q.AvgPolicy = policy / n
	q.AvgOverall = (tone + accuracy + policy) / (3 * n)
	q.EditRate = float64(edited) / n * 100
	q.AvgEditRatio = editRatio / n
	if q.AvgTone < ToneAlertBelow {
		q.Alerts = append(q.Alerts, fmt.Sprintf("Tone average %.2f below %.1f", q.AvgTone, ToneAlertBelow))
	}
	if q.AvgAccuracy < AccuracyAlertBelow {
		q.Alerts = append(q.Alerts, fmt.Sprintf("Accuracy average %.2f below %.1f", q.AvgAccuracy, AccuracyAlertBelow))
	}
	return q
}
