package contracts

// EditType buckets how much a reviewer changed a drafted reply.
type EditType string

const (
	EditNone            EditType = "none"
	EditMinor           EditType = "minor"
	EditModerate        EditType = "moderate"
	EditMajor           EditType = "major"
	EditCompleteRewrite EditType = "complete_rewrite"
)

// QualityGrade is a reviewer's 1..5 scores for a drafted reply, optionally with
// the edited text the reviewer sent instead.
type QualityGrade struct {
	Tone         int      `json:"tone"`
	Accuracy     int      `json:"accuracy"`
	Policy       int      `json:"policy"`
	Original     string   `json:"original,omitempty"`
	Edited       string   `json:"edited,omitempty"`
	EditDistance int      `json:"edit_distance"`
	EditRatio    float64  `json:"edit_ratio"`
	EditType     EditType `json:"edit_type"`
}

// Overall is the mean of the three scores.
func (g QualityGrade) Overall() float64 {
	return float64(g.Tone+g.Accuracy+g.Policy) / 3
}

// QualityMetrics aggregates grades over a set of requests.
type QualityMetrics struct {
	Graded       int      `json:"graded"`
	AvgTone      float64  `json:"avg_tone"`
	AvgAccuracy  float64  `json:"avg_accuracy"`
	AvgPolicy    float64  `json:"avg_policy"`
	AvgOverall   float64  `json:"avg_overall"`
	EditRate     float64  `json:"edit_rate"`
	AvgEditRatio float64  `json:"avg_edit_ratio"`
	Alerts       []string `json:"alerts,omitempty"`
}
