package analysis

import (
	"context"
	"fmt"
	"sync"

	"github.com/swm-sink/promptaudit/pkg/pubsub"
)

var stageMessages = map[string]string{
	StageIndexing:   "Indexing markdown files...",
	StageExtracting: "Extracting and resolving references...",
	StageGraphing:   "Building reference graph...",
	StageReady:      "Analysis complete",
}

// Runner re-runs the analysis on demand and publishes progress and results.
// Runs are serialized.
type Runner struct {
	opts      Options
	publisher pubsub.Publisher

	mu     sync.Mutex // one run at a time
	resMu  sync.RWMutex
	result *Result
}

// NewRunner creates a runner. publisher may be nil when nobody listens.
func NewRunner(opts Options, publisher pubsub.Publisher) *Runner {
	return &Runner{opts: opts, publisher: publisher}
}

// Run executes one analysis. reason is logged and published, e.g.
// "initial analysis" or "3 files changed".
func (r *Runner) Run(ctx context.Context, reason string) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	log.Info("starting analysis", "reason", reason)

	opts := r.opts
	opts.Progress = func(stage string, step, total int) {
		r.publishStatus(stage, stageMessages[stage], reason, step, total)
	}

	res, err := Run(ctx, opts)
	if err != nil {
		r.publishStatus("error", fmt.Sprintf("Analysis failed: %v", err), reason, 0, stageCount)
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	r.resMu.Lock()
	r.result = res
	r.resMu.Unlock()

	r.publish(pubsub.TopicReport, "complete", pubsub.ReportSummary{
		Files:        res.Summary.AnalyzedFiles,
		References:   res.Summary.TotalRefs,
		Broken:       res.Summary.BrokenRefs,
		Cycles:       len(res.Cycles),
		Orphans:      len(res.Orphans),
		ValidityRate: res.Metrics.ValidityRate,
	})

	log.Info("analysis finished", "reason", reason, "validity", fmt.Sprintf("%.1f%%", res.Metrics.ValidityRate))
	return res, nil
}

// Result returns the latest completed result, or nil before the first run.
func (r *Runner) Result() *Result {
	r.resMu.RLock()
	defer r.resMu.RUnlock()
	return r.result
}

func (r *Runner) publishStatus(state, message, reason string, step, total int) {
	r.publish(pubsub.TopicAnalysisStatus, state, pubsub.AnalysisStatus{
		State:   state,
		Message: message,
		Reason:  reason,
		Step:    step,
		Total:   total,
	})
}

func (r *Runner) publish(topic, eventType string, data any) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(topic, eventType, data); err != nil {
		log.Warn("failed to publish event", "topic", topic, "type", eventType, "error", err)
	}
}
