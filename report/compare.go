package report

import (
	"math"
	"sort"
)

// DefaultThresholdPct is the change below which a difference is treated as noise.
const DefaultThresholdPct = 5.0

// Status classifies a comparison.
type Status string

const (
	StatusImproved  Status = "improved"
	StatusRegressed Status = "regressed"
	StatusUnchanged Status = "unchanged"
)

// Comparison is the result for one configuration present in both reports.
// QPS change is relative, recall change is in percentage points.
type Comparison struct {
	Key            string  `json:"key"`
	BaselineQPS    float64 `json:"baseline_qps"`
	CurrentQPS     float64 `json:"current_qps"`
	QPSChangePct   float64 `json:"qps_change_pct"`
	BaselineRecall float64 `json:"baseline_recall"`
	CurrentRecall  float64 `json:"current_recall"`
	RecallChangePt float64 `json:"recall_change_pt"`
	Status         Status  `json:"status"`
}

// ComparisonReport summarizes a baseline comparison.
type ComparisonReport struct {
	Comparisons  []Comparison `json:"comparisons"`
	Improved     int          `json:"improved"`
	Regressed    int          `json:"regressed"`
	Unchanged    int          `json:"unchanged"`
	Missing      []string     `json:"missing,omitempty"`
	ThresholdPct float64      `json:"threshold_pct"`
}

// HasRegressions reports whether any configuration regressed.
func (r *ComparisonReport) HasRegressions() bool {
	return r.Regressed > 0
}

// Compare matches records by Key and classifies the change of each
// configuration. A regression in either QPS or recall marks the
// configuration regressed. Partial records are ignored. Baseline keys
// absent from current are listed in Missing.
func Compare(baseline, current []RunRecord, thresholdPct float64) *ComparisonReport {
	if thresholdPct <= 0 {
		thresholdPct = DefaultThresholdPct
	}
	report := &ComparisonReport{ThresholdPct: thresholdPct}

	base := make(map[string]RunRecord, len(baseline))
	for _, r := range baseline {
		if !r.Partial {
			base[r.Key()] = r
		}
	}

	seen := make(map[string]bool, len(current))
	for _, curr := range current {
		if curr.Partial {
			continue
		}
		key := curr.Key()
		b, ok := base[key]
		if !ok || seen[key] {
			continue
		}
		seen[key] = true

		c := Comparison{
			Key:            key,
			BaselineQPS:    b.QPS,
			CurrentQPS:     curr.QPS,
			BaselineRecall: b.Recall,
			CurrentRecall:  curr.Recall,
			RecallChangePt: (curr.Recall - b.Recall) * 100,
		}
		if b.QPS > 0 {
			c.QPSChangePct = (curr.QPS - b.QPS) / b.QPS * 100
		}

		switch {
		case c.QPSChangePct < -thresholdPct || c.RecallChangePt < -thresholdPct:
			c.Status = StatusRegressed
			report.Regressed++
		case math.Abs(c.QPSChangePct) <= thresholdPct && math.Abs(c.RecallChangePt) <= thresholdPct:
			c.Status = StatusUnchanged
			report.Unchanged++
		default:
			c.Status = StatusImproved
			report.Improved++
		}
		report.Comparisons = append(report.Comparisons, c)
	}

	for key := range base {
		if !seen[key] {
			report.Missing = append(report.Missing, key)
		}
	}
	sort.Strings(report.Missing)

	return report
}
