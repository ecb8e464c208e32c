package pubsub

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// drain collects the versions already queued on sub.
func drain(t *testing.T, sub Subscription) []int {
	t.Helper()
	var got []int
	for {
		select {
		case ev := <-sub.Events():
			got = append(got, ev.Version)
		case <-time.After(50 * time.Millisecond):
			return got
		}
	}
}

func TestReplay(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *TopicConfig
		published int
		want      []int
	}{
		{"no buffer", nil, 3, nil},
		{"latest only", &TopicConfig{BufferSize: 5}, 3, []int{3}},
		{"replay all, trimmed", &TopicConfig{BufferSize: 3, ReplayAll: true}, 5, []int{3, 4, 5}},
		{"replay all, short", &TopicConfig{BufferSize: 3, ReplayAll: true}, 2, []int{1, 2}},
		{"nothing published", &TopicConfig{BufferSize: 3}, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := NewSSEPublisher()
			defer pub.Close()
			if tt.cfg != nil {
				pub.ConfigureTopic(TopicAnalysisStatus, *tt.cfg)
			}
			for i := 1; i <= tt.published; i++ {
				if err := pub.Publish(TopicAnalysisStatus, "progress", AnalysisStatus{Step: i}); err != nil {
					t.Fatal(err)
				}
			}

			sub, err := pub.Subscribe(context.Background(), TopicAnalysisStatus)
			if err != nil {
				t.Fatal(err)
			}
			defer sub.Close()

			if diff := cmp.Diff(tt.want, drain(t, sub)); diff != "" {
				t.Errorf("replayed versions (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLiveEventsFollowReplay(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()
	pub.ConfigureTopic(TopicReport, TopicConfig{BufferSize: 1})

	pub.Publish(TopicReport, "complete", ReportSummary{Files: 1})
	sub, err := pub.Subscribe(context.Background(), TopicReport)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	pub.Publish(TopicReport, "complete", ReportSummary{Files: 2})
	pub.Publish(TopicAnalysisStatus, "ready", AnalysisStatus{})

	if diff := cmp.Diff([]int{1, 2}, drain(t, sub)); diff != "" {
		t.Errorf("versions (-want +got):\n%s", diff)
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	sub, err := pub.Subscribe(context.Background(), TopicReport)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	for i := 0; i < subscriberBuffer+10; i++ {
		if err := pub.Publish(TopicReport, "complete", ReportSummary{}); err != nil {
			t.Fatalf("Publish() blocked or failed: %v", err)
		}
	}
	if got := len(drain(t, sub)); got != subscriberBuffer {
		t.Errorf("received %d events, want %d", got, subscriberBuffer)
	}
}

func TestContextCancelClosesSubscription(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := pub.Subscribe(ctx, TopicReport)
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("event received instead of close")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription still open after cancel")
	}

	if err := pub.Publish(TopicReport, "complete", ReportSummary{}); err != nil {
		t.Errorf("Publish() with no subscribers = %v", err)
	}
}

func TestClosePublisher(t *testing.T) {
	pub := NewSSEPublisher()
	sub, err := pub.Subscribe(context.Background(), TopicReport)
	if err != nil {
		t.Fatal(err)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("Events() still open after Close")
	}
	if err := sub.Close(); err != nil {
		t.Errorf("closing a finished subscription = %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}

	if err := pub.Publish(TopicReport, "complete", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish() after Close = %v, want ErrClosed", err)
	}
	if _, err := pub.Subscribe(context.Background(), TopicReport); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe() after Close = %v, want ErrClosed", err)
	}
}

func TestPublishUnencodable(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()
	if err := pub.Publish(TopicReport, "complete", make(chan int)); err == nil {
		t.Error("Publish() accepted a channel payload")
	}
}

func TestWriteSSE(t *testing.T) {
	var b strings.Builder
	ev := Event{Topic: TopicAnalysisStatus, Type: "ready", Data: []byte(`{"step":4}`), Version: 2}
	if err := WriteSSE(&b, ev); err != nil {
		t.Fatal(err)
	}

	want := `id: 2` + "\n" +
		`data: {"topic":"analysis_status","type":"ready","data":{"step":4},"version":2}` + "\n\n"
	if diff := cmp.Diff(want, b.String()); diff != "" {
		t.Errorf("WriteSSE() (-want +got):\n%s", diff)
	}
}
