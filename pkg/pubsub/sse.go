package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/swm-sink/promptaudit/pkg/logging"
)

var log = logging.New("pubsub")

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("publisher is closed")

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind misses events instead of stalling the publisher.
const subscriberBuffer = 100

// TopicConfig controls what a new subscriber is sent before live events.
type TopicConfig struct {
	BufferSize int  // events kept for replay, 0 keeps none
	ReplayAll  bool // replay the whole buffer rather than the latest event
}

// topic is the state of one topic. It is guarded by the publisher lock.
type topic struct {
	cfg     TopicConfig
	version int
	recent  []Event
	subs    map[*sseSubscription]struct{}
}

// replay returns the events a new subscriber receives.
func (t *topic) replay() []Event {
	if t.cfg.ReplayAll || len(t.recent) < 2 {
		return t.recent
	}
	return t.recent[len(t.recent)-1:]
}

func (t *topic) remember(ev Event) {
	if t.cfg.BufferSize <= 0 {
		return
	}
	t.recent = append(t.recent, ev)
	if extra := len(t.recent) - t.cfg.BufferSize; extra > 0 {
		t.recent = append([]Event(nil), t.recent[extra:]...)
	}
}

// SSEPublisher is an in-memory Publisher whose events are framed for
// server-sent event streams by WriteSSE.
type SSEPublisher struct {
	mu     sync.Mutex
	topics map[string]*topic
	closed bool
}

// NewSSEPublisher returns a publisher with no topic buffering.
func NewSSEPublisher() *SSEPublisher {
	return &SSEPublisher{topics: make(map[string]*topic)}
}

// topicLocked returns the named topic, creating it. p.mu must be held.
func (p *SSEPublisher) topicLocked(name string) *topic {
	t, ok := p.topics[name]
	if !ok {
		t = &topic{subs: make(map[*sseSubscription]struct{})}
		p.topics[name] = t
	}
	return t
}

// ConfigureTopic sets the replay buffering of a topic.
func (p *SSEPublisher) ConfigureTopic(name string, cfg TopicConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topicLocked(name).cfg = cfg
}

// Subscribe registers a subscriber on a topic. Buffered events are queued
// before it becomes visible to Publish, so replayed and live events arrive
// in version order. The subscription ends when ctx is done.
func (p *SSEPublisher) Subscribe(ctx context.Context, name string) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	t := p.topicLocked(name)
	sub := &sseSubscription{
		topic:  name,
		owner:  p,
		events: make(chan Event, subscriberBuffer),
		done:   make(chan struct{}),
	}
	replay := t.replay()
	for _, ev := range replay {
		sub.offer(ev)
	}
	t.subs[sub] = struct{}{}
	log.Debug("subscribed", "topic", name, "replayed", len(replay), "subscribers", len(t.subs))

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Publish encodes data and delivers it to the subscribers of a topic
// without blocking.
func (p *SSEPublisher) Publish(name, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	t := p.topicLocked(name)
	t.version++
	ev := Event{Topic: name, Type: eventType, Data: payload, Version: t.version}
	t.remember(ev)
	for sub := range t.subs {
		sub.offer(ev)
	}
	return nil
}

// Close ends every subscription and rejects later calls.
func (p *SSEPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for _, t := range p.topics {
		for sub := range t.subs {
			sub.finish()
		}
		t.subs = nil
	}
	return nil
}

func (p *SSEPublisher) drop(sub *sseSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[sub.topic]
	if !ok {
		return
	}
	if _, ok := t.subs[sub]; ok {
		delete(t.subs, sub)
		sub.finish()
	}
}

type sseSubscription struct {
	topic  string
	owner  *SSEPublisher
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *sseSubscription) Topic() string        { return s.topic }
func (s *sseSubscription) Events() <-chan Event { return s.events }

// Close unsubscribes and closes Events.
func (s *sseSubscription) Close() error {
	s.owner.drop(s)
	return nil
}

// offer queues ev unless the subscriber is full. The publisher lock is held.
func (s *sseSubscription) offer(ev Event) {
	select {
	case s.events <- ev:
	default:
		log.Warn("subscriber lagging, event dropped", "topic", s.topic, "type", ev.Type, "version", ev.Version)
	}
}

// finish closes the channels once. The publisher lock is held.
func (s *sseSubscription) finish() {
	s.once.Do(func() {
		close(s.done)
		close(s.events)
	})
}

// WriteSSE writes ev as one server-sent event. The id line carries the
// topic version so browsers resume in order.
func WriteSSE(w io.Writer, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.Version, body)
	return err
}
