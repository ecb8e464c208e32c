// Package bench measures how fast the prompt library can be read, parsed and
// discovered, and grades each measurement against a target.
package bench

import (
	"fmt"
	"sort"
)

// Metric statuses relative to the target.
const (
	StatusExcellent  = "EXCELLENT"
	StatusGood       = "GOOD"
	StatusAcceptable = "ACCEPTABLE"
	StatusPoor       = "POOR"
	StatusUnknown    = "UNKNOWN"
)

// Metric categories.
const (
	CategoryFileSystem  = "FileSystem"
	CategoryYAML        = "YAML"
	CategoryDiscovery   = "Discovery"
	CategoryComponents  = "Components"
	CategoryMemory      = "Memory"
	CategoryConcurrency = "Concurrency"
	CategoryDiskIO      = "DiskIO"
	CategoryIntegration = "Integration"
	CategoryError       = "Error"
)

// PassScore is the overall score a benchmark run needs to pass.
const PassScore = 70

// Metric is one measurement.
type Metric struct {
	Name     string   `json:"name"`
	Value    float64  `json:"value"`
	Unit     string   `json:"unit"`
	Category string   `json:"category"`
	Target   *float64 `json:"target,omitempty"`
	Status   string   `json:"status"`
}

// NewMetric builds a metric and grades it against target, which may be nil.
func NewMetric(name string, value float64, unit, category string, target *float64) Metric {
	return Metric{
		Name:     name,
		Value:    value,
		Unit:     unit,
		Category: category,
		Target:   target,
		Status:   StatusFor(value, target),
	}
}

// StatusFor grades value against target, lower being better: within half
// the target is excellent, within the target good, within twice the target
// acceptable.
func StatusFor(value float64, target *float64) string {
	if target == nil {
		return StatusUnknown
	}
	t := *target
	switch {
	case value <= t*0.5:
		return StatusExcellent
	case value <= t:
		return StatusGood
	case value <= t*2:
		return StatusAcceptable
	default:
		return StatusPoor
	}
}

// CategoryScore aggregates the metrics of one category.
type CategoryScore struct {
	Category     string         `json:"category"`
	Metrics      int            `json:"metrics"`
	StatusCounts map[string]int `json:"statusCounts"`
	Score        float64        `json:"score"`
	Grade        string         `json:"grade"`
}

// Score computes per-category scores, sorted by category, and the overall
// score as their mean. A category scores 100 per excellent, 80 per good and
// 60 per acceptable metric, divided by its metric count.
func Score(metrics []Metric) ([]CategoryScore, float64) {
	byCategory := make(map[string]*CategoryScore)
	for _, m := range metrics {
		cs, ok := byCategory[m.Category]
		if !ok {
			cs = &CategoryScore{Category: m.Category, StatusCounts: make(map[string]int)}
			byCategory[m.Category] = cs
		}
		cs.Metrics++
		cs.StatusCounts[m.Status]++
	}

	out := make([]CategoryScore, 0, len(byCategory))
	var sum float64
	for _, cs := range byCategory {
		e := cs.StatusCounts[StatusExcellent]
		g := cs.StatusCounts[StatusGood]
		a := cs.StatusCounts[StatusAcceptable]
		cs.Score = float64(100*e+80*g+60*a) / float64(cs.Metrics)
		cs.Grade = Grade(cs.Score)
		sum += cs.Score
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })

	if len(out) == 0 {
		return out, 0
	}
	return out, sum / float64(len(out))
}

// Grade maps a score to a letter grade.
func Grade(score float64) string {
	switch {
	case score >= 90:
		return "A+"
	case score >= 80:
		return "A"
	case score >= 70:
		return "B"
	case score >= 60:
		return "C"
	default:
		return "D"
	}
}

// Recommendations lists the poor metrics overall and per category.
func Recommendations(metrics []Metric, categories []CategoryScore) []string {
	poor := make(map[string]int)
	total := 0
	for _, m := range metrics {
		if m.Status == StatusPoor {
			poor[m.Category]++
			total++
		}
	}
	if total == 0 {
		return []string{"Performance is excellent across all metrics"}
	}

	recs := []string{fmt.Sprintf("Address %d performance bottlenecks", total)}
	for _, cs := range categories {
		if n := poor[cs.Category]; n > 0 {
			recs = append(recs, fmt.Sprintf("Optimize %s performance (%d issues)", cs.Category, n))
		}
	}
	return recs
}
