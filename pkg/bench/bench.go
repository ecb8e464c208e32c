package bench

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/swm-sink/promptaudit/pkg/finder"
	"github.com/swm-sink/promptaudit/pkg/logging"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var log = logging.New("bench")

// Targets, in the metric's unit.
var (
	targetYAML       = 2.0
	targetFileRead   = 1.0
	targetDiscovery  = 10.0
	targetComponents = 5.0
	targetMemory     = 50.0
	targetDiskIO     = 100.0
)

const (
	readSample       = 10
	concurrentSample = 20
	defaultWorkers   = 4
)

// Options configures a benchmark run.
type Options struct {
	Root      string
	ClaudeDir string
	Workers   int // concurrent read workers, default 4
}

// Report is the outcome of a benchmark run.
type Report struct {
	Root            string          `json:"root"`
	GeneratedAt     time.Time       `json:"generatedAt"`
	DurationMs      float64         `json:"durationMs"`
	Metrics         []Metric        `json:"metrics"`
	Categories      []CategoryScore `json:"categories"`
	OverallScore    float64         `json:"overallScore"`
	OverallGrade    string          `json:"overallGrade"`
	Passed          bool            `json:"passed"`
	Recommendations []string        `json:"recommendations"`
	Errors          []string        `json:"errors,omitempty"`
}

// HistoryEntry is the compact record appended to the benchmark history.
type HistoryEntry struct {
	Timestamp    time.Time          `json:"timestamp"`
	OverallScore float64            `json:"overallScore"`
	OverallGrade string             `json:"overallGrade"`
	Values       map[string]float64 `json:"values"`
}

// History returns the history record of r.
func (r *Report) History() HistoryEntry {
	values := make(map[string]float64, len(r.Metrics))
	for _, m := range r.Metrics {
		values[m.Name] = m.Value
	}
	return HistoryEntry{
		Timestamp:    r.GeneratedAt,
		OverallScore: r.OverallScore,
		OverallGrade: r.OverallGrade,
		Values:       values,
	}
}

type benchmark struct {
	name string
	run  func(ctx context.Context) ([]Metric, error)
}

type runner struct {
	root          string
	commandsDir   string
	componentsDir string
	workers       int
}

// Run executes every benchmark in turn. A failing benchmark is recorded as
// an error metric and the run continues.
func Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.ClaudeDir == "" {
		opts.ClaudeDir = ".claude"
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if _, err := os.Stat(opts.Root); err != nil {
		return nil, fmt.Errorf("benchmark root: %w", err)
	}

	r := &runner{
		root:          opts.Root,
		commandsDir:   filepath.Join(opts.Root, opts.ClaudeDir, "commands"),
		componentsDir: filepath.Join(opts.Root, opts.ClaudeDir, "components"),
		workers:       opts.Workers,
	}

	start := time.Now()
	report := &Report{Root: opts.Root, GeneratedAt: start}

	for _, b := range []benchmark{
		{"File System Performance", r.fileSystem},
		{"YAML Processing Performance", r.yamlProcessing},
		{"Command Discovery Performance", r.commandDiscovery},
		{"Component Loading Performance", r.componentLoading},
		{"Memory Usage Analysis", r.memoryUsage},
		{"Concurrent Processing", r.concurrentProcessing},
		{"Disk I/O Performance", r.diskIO},
		{"Integration Performance", r.integration},
	} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log.Debug("running benchmark", "name", b.name)

		metrics, err := b.run(ctx)
		if err != nil {
			log.Warn("benchmark failed", "name", b.name, "error", err)
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", b.name, err))
			metrics = append(metrics, NewMetric(b.name+" - Error", 0, "error", CategoryError, nil))
		}
		report.Metrics = append(report.Metrics, metrics...)
	}

	report.Categories, report.OverallScore = Score(report.Metrics)
	report.OverallGrade = Grade(report.OverallScore)
	report.Passed = report.OverallScore >= PassScore
	report.Recommendations = Recommendations(report.Metrics, report.Categories)
	report.DurationMs = ms(time.Since(start))

	log.Info("benchmark complete", "metrics", len(report.Metrics), "score", fmt.Sprintf("%.1f", report.OverallScore), "grade", report.OverallGrade)
	return report, nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// markdownFiles lists the .md files under dir as absolute paths. A missing
// directory has no files.
func markdownFiles(dir string) ([]string, error) {
	rel, err := finder.FindMarkdownFiles(dir)
	if err != nil {
		if _, statErr := os.Stat(dir); os.IsNotExist(statErr) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]string, len(rel))
	for i, p := range rel {
		out[i] = filepath.Join(dir, filepath.FromSlash(p))
	}
	return out, nil
}

func (r *runner) fileSystem(context.Context) ([]Metric, error) {
	start := time.Now()
	files, err := markdownFiles(r.commandsDir)
	if err != nil {
		return nil, err
	}
	metrics := []Metric{NewMetric("File Enumeration", ms(time.Since(start)), "ms", CategoryFileSystem, nil)}

	var times []float64
	for _, f := range limit(files, readSample) {
		start := time.Now()
		if _, err := os.ReadFile(f); err != nil {
			continue
		}
		times = append(times, ms(time.Since(start)))
	}
	if len(times) > 0 {
		metrics = append(metrics,
			NewMetric("Average File Read", mean(times), "ms", CategoryFileSystem, &targetFileRead),
			NewMetric("Maximum File Read", maxOf(times), "ms", CategoryFileSystem, nil),
		)
	}

	start = time.Now()
	var entries int
	err = filepath.WalkDir(r.root, func(_ string, _ fs.DirEntry, err error) error {
		if err == nil {
			entries++
		}
		return nil
	})
	if err != nil {
		return metrics, err
	}
	metrics = append(metrics, NewMetric("Full Directory Traversal", ms(time.Since(start)), "ms", CategoryFileSystem, nil))

	log.Debug("file system", "commands", len(files), "entries", entries)
	return metrics, nil
}

func (r *runner) yamlProcessing(context.Context) ([]Metric, error) {
	files, err := markdownFiles(r.commandsDir)
	if err != nil {
		return nil, err
	}

	var times []float64
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		header, _, ok := finder.SplitFrontMatter(content)
		if !ok {
			continue
		}
		start := time.Now()
		var data map[string]any
		if err := yaml.Unmarshal(header, &data); err != nil {
			continue
		}
		times = append(times, ms(time.Since(start)))
	}

	log.Debug("yaml processing", "parsed", len(times), "files", len(files))
	if len(times) == 0 {
		return nil, nil
	}
	return []Metric{
		NewMetric("Average YAML Processing", mean(times), "ms", CategoryYAML, &targetYAML),
		NewMetric("Maximum YAML Processing", maxOf(times), "ms", CategoryYAML, nil),
		NewMetric("Total YAML Processing", sum(times), "ms", CategoryYAML, nil),
	}, nil
}

// discoverCommands reads the front matter of every command file and returns
// the commands by name.
func (r *runner) discoverCommands() (map[string]*finder.FrontMatter, int, error) {
	files, err := markdownFiles(r.commandsDir)
	if err != nil {
		return nil, 0, err
	}
	commands := make(map[string]*finder.FrontMatter)
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		fm, err := finder.ParseFrontMatter(content)
		if err != nil || fm == nil || fm.Name == "" {
			continue
		}
		commands[fm.Name] = fm
	}
	return commands, len(files), nil
}

func (r *runner) commandDiscovery(context.Context) ([]Metric, error) {
	start := time.Now()
	commands, _, err := r.discoverCommands()
	if err != nil {
		return nil, err
	}
	elapsed := ms(time.Since(start))

	log.Debug("command discovery", "commands", len(commands))
	return []Metric{NewMetric("Command Discovery", elapsed, "ms", CategoryDiscovery, &targetDiscovery)}, nil
}

func (r *runner) componentLoading(context.Context) ([]Metric, error) {
	start := time.Now()
	files, err := markdownFiles(r.componentsDir)
	if err != nil {
		return nil, err
	}
	var sizes []float64
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		sizes = append(sizes, float64(len(content)))
	}
	metrics := []Metric{NewMetric("Component Loading", ms(time.Since(start)), "ms", CategoryComponents, &targetComponents)}
	if len(sizes) > 0 {
		metrics = append(metrics, NewMetric("Average Component Size", mean(sizes), "bytes", CategoryComponents, nil))
	}
	return metrics, nil
}

func (r *runner) memoryUsage(context.Context) ([]Metric, error) {
	files, err := markdownFiles(r.root)
	if err != nil {
		return nil, err
	}

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)

	loaded := make([][]byte, 0, len(files))
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		loaded = append(loaded, content)
	}
	runtime.ReadMemStats(&after)
	runtime.KeepAlive(loaded)

	const mb = 1024 * 1024
	baseline := float64(before.HeapAlloc) / mb
	peak := float64(after.HeapAlloc) / mb
	delta := peak - baseline
	if delta < 0 {
		delta = 0
	}
	return []Metric{
		NewMetric("Baseline Memory Usage", baseline, "MB", CategoryMemory, nil),
		NewMetric("Peak Memory Usage", peak, "MB", CategoryMemory, nil),
		NewMetric("Memory Delta", delta, "MB", CategoryMemory, &targetMemory),
	}, nil
}

func (r *runner) concurrentProcessing(ctx context.Context) ([]Metric, error) {
	files, err := markdownFiles(r.commandsDir)
	if err != nil {
		return nil, err
	}
	files = limit(files, concurrentSample)

	start := time.Now()
	sequential := 0
	for _, f := range files {
		if content, err := os.ReadFile(f); err == nil {
			sequential += len(content)
		}
	}
	seqTime := ms(time.Since(start))

	start = time.Now()
	sizes := make([]int, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if content, err := os.ReadFile(f); err == nil {
				sizes[i] = len(content)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	conTime := ms(time.Since(start))

	concurrent := 0
	for _, n := range sizes {
		concurrent += n
	}
	if concurrent != sequential {
		return nil, fmt.Errorf("concurrent read saw %d bytes, sequential read saw %d", concurrent, sequential)
	}
	log.Debug("concurrent read", "files", len(files), "bytes", concurrent, "workers", r.workers)

	metrics := []Metric{
		NewMetric("Sequential Processing", seqTime, "ms", CategoryConcurrency, nil),
		NewMetric("Concurrent Processing", conTime, "ms", CategoryConcurrency, nil),
	}
	if seqTime > 0 && conTime > 0 {
		metrics = append(metrics, NewMetric("Concurrency Speedup", seqTime/conTime, "x", CategoryConcurrency, nil))
	}
	return metrics, nil
}

func (r *runner) diskIO(context.Context) ([]Metric, error) {
	start := time.Now()
	var count, total int64
	err := filepath.WalkDir(r.root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		count++
		total += info.Size()
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics := []Metric{NewMetric("Full Project Scan", ms(time.Since(start)), "ms", CategoryDiskIO, &targetDiskIO)}
	if count > 0 {
		metrics = append(metrics, NewMetric("Average File Size", float64(total)/float64(count), "bytes", CategoryDiskIO, nil))
	}
	metrics = append(metrics,
		NewMetric("Total Files Scanned", float64(count), "files", CategoryDiskIO, nil),
		NewMetric("Total Project Size", float64(total)/1024/1024, "MB", CategoryDiskIO, nil),
	)
	return metrics, nil
}

// integration times discovery, front matter validation and component
// loading back to back.
func (r *runner) integration(context.Context) ([]Metric, error) {
	start := time.Now()

	commands, total, err := r.discoverCommands()
	if err != nil {
		return nil, err
	}
	valid := 0
	for _, fm := range commands {
		if fm.Description != "" {
			valid++
		}
	}

	components, err := markdownFiles(r.componentsDir)
	if err != nil {
		return nil, err
	}
	loaded := 0
	for _, f := range components {
		if content, err := os.ReadFile(f); err == nil && len(content) > 0 {
			loaded++
		}
	}

	log.Debug("integration workflow", "commands", total, "valid", valid, "components", loaded)
	return []Metric{NewMetric("Full Workflow Integration", ms(time.Since(start)), "ms", CategoryIntegration, nil)}, nil
}

func limit(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return sum(v) / float64(len(v))
}

func maxOf(v []float64) float64 {
	var m float64
	for _, x := range v {
		m = max(m, x)
	}
	return m
}
