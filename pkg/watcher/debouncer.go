package watcher

import (
	"context"
	"time"
)

// Debouncer batches rapid change events so a burst of saves triggers one
// re-analysis. A batch is flushed once no event arrived for quietPeriod, or
// maxWait after its first event, whichever comes first.
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

// batch merges events. The merged type is structural when any part was.
type batch struct {
	changeType ChangeType
	paths      []string
	seen       map[string]bool
}

func (b *batch) add(e ChangeEvent) {
	if b.seen == nil {
		b.seen = make(map[string]bool)
	}
	if e.Type == ChangeTypeStructure {
		b.changeType = ChangeTypeStructure
	}
	for _, p := range e.Paths {
		if !b.seen[p] {
			b.seen[p] = true
			b.paths = append(b.paths, p)
		}
	}
}

func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	var (
		current  *batch
		quiet    <-chan time.Time
		deadline <-chan time.Time
		quietT   *time.Timer
		maxT     *time.Timer
	)

	stop := func() {
		if quietT != nil {
			quietT.Stop()
		}
		if maxT != nil {
			maxT.Stop()
		}
		quietT, maxT, quiet, deadline = nil, nil, nil, nil
	}

	// flush delivers the pending batch. Once ctx is done delivery is
	// best effort so the goroutine cannot block forever.
	flush := func() {
		stop()
		if current == nil {
			return
		}
		event := ChangeEvent{Type: current.changeType, Paths: current.paths, Timestamp: time.Now()}
		current = nil
		log.Debug("flushing debounced changes", "type", event.Type, "count", len(event.Paths))
		select {
		case d.output <- event:
		case <-ctx.Done():
			select {
			case d.output <- event:
			default:
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}
			if current == nil {
				current = &batch{}
				maxT = time.NewTimer(d.maxWait)
				deadline = maxT.C
			}
			current.add(event)

			if quietT != nil {
				quietT.Stop()
			}
			quietT = time.NewTimer(d.quietPeriod)
			quiet = quietT.C

		case <-quiet:
			flush()

		case <-deadline:
			flush()
		}
	}
}

// Output returns the channel of debounced events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}
