// Package web serves the audit dashboard: the latest analysis result as
// JSON, analysis progress as server-sent events and a placeholder preview.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/swm-sink/promptaudit/pkg/analysis"
	"github.com/swm-sink/promptaudit/pkg/cycles"
	"github.com/swm-sink/promptaudit/pkg/logging"
	"github.com/swm-sink/promptaudit/pkg/placeholder"
	"github.com/swm-sink/promptaudit/pkg/pubsub"
)

var log = logging.New("web")

//go:embed static/*
var staticFiles embed.FS

const (
	// maxPreviewBytes caps the body accepted by the preview endpoint.
	maxPreviewBytes = 1 << 20

	defaultFocusDepth = 1
)

// ResultSource provides the latest analysis result, nil before the first
// run completes. *analysis.Runner satisfies it.
type ResultSource interface {
	Result() *analysis.Result
}

// GraphNode represents a file in the reference graph
type GraphNode struct {
	ID       string `json:"id"`       // file path
	Label    string `json:"label"`    // base name
	Type     string `json:"type"`     // category, e.g. "Core Command"
	Parent   string `json:"parent"`   // containing directory for grouping
	Broken   int    `json:"broken"`   // broken references in this file
	Orphan   bool   `json:"orphan"`   // nothing references this file
	InCycle  bool   `json:"inCycle"`  // member of a cycle cluster
	Analyzed bool   `json:"analyzed"` // false for target-only files
}

// GraphEdge represents a resolved reference
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Cyclic bool   `json:"cyclic"` // both ends in the same cycle cluster
}

// GraphData holds the reference graph for visualization
type GraphData struct {
	Hash  string      `json:"hash,omitempty"` // pass as ?since= to get a GraphDiff
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// FileDetail is one file's references and neighbors.
type FileDetail struct {
	analysis.FileResult
	Dependencies []string `json:"dependencies"`
	Dependents   []string `json:"dependents"`
	InCycle      bool     `json:"inCycle"`
}

// CycleData lists the elementary cycles and the clusters they form.
type CycleData struct {
	Cycles   []cycles.FileCycle `json:"cycles"`
	Clusters []cycles.FileCycle `json:"clusters"`
}

// PreviewRequest is the body of POST /api/preview.
type PreviewRequest struct {
	Content string `json:"content"`
}

// PreviewResponse is the filled content and its counts.
type PreviewResponse struct {
	Content    string   `json:"content"`
	Total      int      `json:"total"`
	Replaced   int      `json:"replaced"`
	Percent    float64  `json:"percent"`
	Unresolved []string `json:"unresolved"`
}

// Server represents the web server
type Server struct {
	router       *mux.Router
	source       ResultSource
	publisher    pubsub.Publisher
	replacements map[string]string
	snapshots    *snapshotCache
}

// NewPublisher returns a publisher configured for the dashboard topics: new
// clients get the most recent status and report event.
func NewPublisher() *pubsub.SSEPublisher {
	p := pubsub.NewSSEPublisher()
	p.ConfigureTopic(pubsub.TopicAnalysisStatus, pubsub.TopicConfig{BufferSize: 10})
	p.ConfigureTopic(pubsub.TopicReport, pubsub.TopicConfig{BufferSize: 5})
	return p
}

// NewServer creates a new web server. replacements feed the preview
// endpoint and may be nil.
func NewServer(source ResultSource, publisher pubsub.Publisher, replacements map[string]string) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		source:       source,
		publisher:    publisher,
		replacements: replacements,
		snapshots:    newSnapshotCache(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(logging.RequestIDMiddleware)

	// SSE subscription endpoints
	s.router.HandleFunc("/api/status", s.handleSubscribe(pubsub.TopicAnalysisStatus)).Methods("GET")
	s.router.HandleFunc("/api/subscribe/report", s.handleSubscribe(pubsub.TopicReport)).Methods("GET")

	s.router.HandleFunc("/api/report", s.handleReport).Methods("GET")
	s.router.HandleFunc("/api/graph", s.handleGraph).Methods("GET")
	s.router.HandleFunc("/api/cycles", s.handleCycles).Methods("GET")
	s.router.HandleFunc("/api/files/{path:.+}", s.handleFile).Methods("GET")
	s.router.HandleFunc("/api/preview", s.handlePreview).Methods("POST")

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	s.router.PathPrefix("/").Handler(http.FileServer(http.FS(staticFS)))
}

// Handler returns the HTTP handler, e.g. for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// result returns the current result or answers 503.
func (s *Server) result(w http.ResponseWriter) *analysis.Result {
	res := s.source.Result()
	if res == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis not available yet")
	}
	return res
}

func (s *Server) handleSubscribe(topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		sub, err := s.publisher.Subscribe(r.Context(), topic)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		defer sub.Close()

		flusher, _ := w.(http.Flusher)

		// Initial comment establishes the stream (Safari compatibility)
		fmt.Fprintf(w, ": connected\n\n")
		if flusher != nil {
			flusher.Flush()
		}

		for event := range sub.Events() {
			if err := pubsub.WriteSSE(w, event); err != nil {
				log.Debug("client went away", "topic", topic, "error", err)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if res := s.result(w); res != nil {
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	res := s.result(w)
	if res == nil {
		return
	}
	q := r.URL.Query()
	data := buildGraphData(res, q.Get("category"))

	if focus := q["focus"]; len(focus) > 0 {
		depth := defaultFocusDepth
		if v := q.Get("depth"); v != "" {
			d, err := strconv.Atoi(v)
			if err != nil || d < 0 {
				writeError(w, http.StatusBadRequest, "depth must be a non-negative integer")
				return
			}
			depth = d
		}
		data = FocusGraph(data, focus, depth)
	}

	var base *GraphSnapshot
	since := q.Get("since")
	if since != "" {
		base = s.snapshots.get(since)
	}
	snap := NewSnapshot(data)
	s.snapshots.put(snap)
	data.Hash = snap.Hash

	if since != "" {
		writeJSON(w, http.StatusOK, ComputeDiff(base, data))
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	res := s.result(w)
	if res == nil {
		return
	}
	data := CycleData{Cycles: res.Cycles, Clusters: res.Clusters}
	if data.Cycles == nil {
		data.Cycles = []cycles.FileCycle{}
	}
	if data.Clusters == nil {
		data.Clusters = []cycles.FileCycle{}
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	res := s.result(w)
	if res == nil {
		return
	}

	p := mux.Vars(r)["path"]
	fr, ok := res.File(p)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("file not analyzed: %s", p))
		return
	}

	detail := FileDetail{FileResult: *fr, Dependencies: []string{}, Dependents: []string{}}
	if res.Graph != nil {
		if deps := res.Graph.GetDependencies(p); deps != nil {
			detail.Dependencies = deps
		}
		if deps := res.Graph.GetDependents(p); deps != nil {
			detail.Dependents = deps
		}
	}
	detail.InCycle = cycleMembers(res)[p]
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPreviewBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	fr := placeholder.ProcessContent("preview", req.Content, s.replacements)
	resp := PreviewResponse{
		Content:    fr.Content(),
		Total:      fr.Total,
		Replaced:   fr.Replaced,
		Percent:    fr.Percent,
		Unresolved: fr.Unresolved,
	}
	if resp.Unresolved == nil {
		resp.Unresolved = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func cycleMembers(res *analysis.Result) map[string]bool {
	members := make(map[string]bool)
	for _, c := range res.Clusters {
		for _, f := range c.Files {
			members[f] = true
		}
	}
	return members
}

// buildGraphData converts the result graph. A non-empty category keeps the
// files of that category and their direct neighbors.
func buildGraphData(res *analysis.Result, category string) *GraphData {
	data := &GraphData{Nodes: []GraphNode{}, Edges: []GraphEdge{}}
	if res.Graph == nil {
		return data
	}

	clusterOf := make(map[string]int)
	for i, c := range res.Clusters {
		for _, f := range c.Files {
			clusterOf[f] = i + 1
		}
	}
	orphans := make(map[string]bool, len(res.Orphans))
	for _, o := range res.Orphans {
		orphans[o] = true
	}

	keep := func(string) bool { return true }
	if category != "" {
		selected := make(map[string]bool)
		for _, n := range res.Graph.Nodes() {
			if !strings.EqualFold(n.Category, category) {
				continue
			}
			selected[n.Path] = true
			for _, d := range res.Graph.GetDependencies(n.Path) {
				selected[d] = true
			}
			for _, d := range res.Graph.GetDependents(n.Path) {
				selected[d] = true
			}
		}
		keep = func(p string) bool { return selected[p] }
	}

	for _, n := range res.Graph.Nodes() {
		if !keep(n.Path) {
			continue
		}
		node := GraphNode{
			ID:      n.Path,
			Label:   path.Base(n.Path),
			Type:    n.Category,
			Parent:  path.Dir(n.Path),
			Orphan:  orphans[n.Path],
			InCycle: clusterOf[n.Path] > 0,
		}
		if fr, ok := res.File(n.Path); ok {
			node.Analyzed = true
			node.Broken = fr.Broken
		}
		data.Nodes = append(data.Nodes, node)
	}

	for _, e := range res.Graph.Edges() {
		if !keep(e.Source) || !keep(e.Target) {
			continue
		}
		c := clusterOf[e.Source]
		data.Edges = append(data.Edges, GraphEdge{
			Source: e.Source,
			Target: e.Target,
			Cyclic: c > 0 && c == clusterOf[e.Target],
		})
	}
	return data
}

// Start serves on port until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	// Request contexts derive from ctx so open event streams end on shutdown.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting web server", "url", fmt.Sprintf("http://localhost:%d", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info("shutting down web server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
