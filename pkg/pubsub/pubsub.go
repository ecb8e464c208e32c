// Package pubsub fans analysis progress and report updates out to dashboard
// clients over server-sent events.
package pubsub

import (
	"context"
	"encoding/json"
)

// Topics published by the analysis runner.
const (
	TopicAnalysisStatus = "analysis_status"
	TopicReport         = "report"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // e.g. "analysis_status", "report"
	Type    string          `json:"type"`    // e.g. "indexing", "graphing", "ready"
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Per-topic version for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic. Context cancellation
	// closes the subscription.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data any) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// AnalysisStatus is the state of the current analysis run.
type AnalysisStatus struct {
	State   string `json:"state"`   // indexing, extracting, graphing, ready, error
	Message string `json:"message"` // Human-readable status message
	Reason  string `json:"reason"`  // Why the run started, e.g. "initial analysis"
	Step    int    `json:"step"`    // Current step number (1-based)
	Total   int    `json:"total"`   // Total number of steps
}

// ReportSummary announces a new analysis result.
type ReportSummary struct {
	Files        int     `json:"files"`
	References   int     `json:"references"`
	Broken       int     `json:"broken"`
	Cycles       int     `json:"cycles"`
	Orphans      int     `json:"orphans"`
	ValidityRate float64 `json:"validityRate"`
}
