// Package watcher re-runs the analysis when markdown files under the root
// change.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/swm-sink/promptaudit/pkg/finder"
	"github.com/swm-sink/promptaudit/pkg/logging"
)

var log = logging.New("watcher")

// ChangeType represents the type of file change detected
type ChangeType int

const (
	// ChangeTypeContent is a write to an existing markdown file.
	ChangeTypeContent ChangeType = iota
	// ChangeTypeStructure is a markdown file created, removed or renamed.
	// Links elsewhere may resolve differently afterwards.
	ChangeTypeStructure
)

func (t ChangeType) String() string {
	if t == ChangeTypeStructure {
		return "structure"
	}
	return "content"
}

// ChangeEvent represents a batch of file system changes
type ChangeEvent struct {
	Type      ChangeType
	Paths     []string
	Timestamp time.Time
}

// batchWindow groups the raw fsnotify burst of a single save.
const batchWindow = 100 * time.Millisecond

// FileWatcher watches every directory under a root for markdown changes.
// Directories created later are added as they appear.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	root    string
	events  chan ChangeEvent
	done    chan struct{}
	once    sync.Once
}

// NewFileWatcher creates a watcher for root. Call Start to begin.
func NewFileWatcher(root string) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		root:    root,
		events:  make(chan ChangeEvent, 100),
		done:    make(chan struct{}),
	}, nil
}

// Start adds the directory tree and processes events until ctx is done or
// Stop is called. The Events channel is closed afterwards.
func (fw *FileWatcher) Start(ctx context.Context) error {
	n, err := fw.addTree(fw.root)
	if err != nil {
		fw.watcher.Close()
		return err
	}
	log.Info("started watching", "root", fw.root, "directories", n)

	go fw.processEvents(ctx)
	return nil
}

// addTree watches dir and every directory below it that walks would visit.
func (fw *FileWatcher) addTree(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil // Skip entries we can't access
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && finder.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			log.Warn("failed to watch directory", "path", path, "error", err)
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return count, nil
}

func isMarkdown(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".md")
}

// processEvents batches markdown events by type and flushes them after a
// short quiet window.
func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.events)
	defer fw.watcher.Close()

	pending := map[ChangeType][]string{}
	seen := map[string]bool{}

	flushTimer := time.NewTimer(batchWindow)
	flushTimer.Stop()

	flush := func() {
		for _, t := range []ChangeType{ChangeTypeStructure, ChangeTypeContent} {
			if len(pending[t]) == 0 {
				continue
			}
			select {
			case fw.events <- ChangeEvent{Type: t, Paths: pending[t], Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			case <-fw.done:
				return
			}
		}
		pending = map[ChangeType][]string{}
		seen = map[string]bool{}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if event.Has(fsnotify.Create) && !isMarkdown(event.Name) {
				if n, err := fw.addTree(event.Name); err == nil && n > 0 {
					log.Debug("watching new directory", "path", event.Name, "directories", n)
				}
				continue
			}
			if !isMarkdown(event.Name) {
				continue
			}

			var t ChangeType
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				t = ChangeTypeStructure
			case event.Has(fsnotify.Write):
				t = ChangeTypeContent
			default:
				continue
			}
			key := t.String() + ":" + event.Name
			if !seen[key] {
				seen[key] = true
				pending[t] = append(pending[t], event.Name)
			}
			flushTimer.Reset(batchWindow)

		case <-flushTimer.C:
			flush()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Error("watcher error", "error", err)
		}
	}
}

// Events returns the channel of change events
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// Stop stops the file watcher. It is safe to call more than once.
func (fw *FileWatcher) Stop() error {
	fw.once.Do(func() { close(fw.done) })
	return nil
}

// Rerun is called with a human-readable reason after each debounced batch.
type Rerun func(ctx context.Context, reason string) error

// Watch wires a FileWatcher through a Debouncer to rerun and blocks until
// ctx is done. Failed reruns are logged and watching continues.
func Watch(ctx context.Context, root string, quiet, maxWait time.Duration, rerun Rerun) error {
	fw, err := NewFileWatcher(root)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}
	defer fw.Stop()

	d := NewDebouncer(fw.Events(), quiet, maxWait)
	d.Start(ctx)

	for event := range d.Output() {
		change := AnalyzeChanges(event, root)
		if err := rerun(ctx, change.Reason); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("re-analysis failed", "reason", change.Reason, "error", err)
		}
	}
	return ctx.Err()
}
