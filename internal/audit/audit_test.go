package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (s *memorySink) Append(_ context.Context, event Event) error {
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memorySink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestWorkerFansOutToSinks(t *testing.T) {
	recorder := NewRecorder(8, nil)
	first := &memorySink{}
	second := &memorySink{}
	worker := NewWorker(recorder.Inbox(), nil, first, second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	recorder.Record(Event{Address: "8.8.8.8", Outcome: "resolved", Timestamp: time.Now()})
	recorder.Record(Event{Address: "1.1.1.1", Outcome: "resolved", Timestamp: time.Now()})

	require.Eventually(t, func() bool {
		return first.len() == 2 && second.len() == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestWorkerSkipsFailingSink(t *testing.T) {
	recorder := NewRecorder(8, nil)
	broken := &memorySink{fail: true}
	healthy := &memorySink{}
	worker := NewWorker(recorder.Inbox(), nil, broken, healthy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	recorder.Record(Event{Address: "8.8.8.8"})

	require.Eventually(t, func() bool {
		return healthy.len() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRecordDropsWhenFull(t *testing.T) {
	recorder := NewRecorder(1, nil)

	// No worker draining: the second record must not block.
	recorder.Record(Event{Address: "1.1.1.1"})
	doneCh := make(chan struct{})
	go func() {
		recorder.Record(Event{Address: "2.2.2.2"})
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full inbox")
	}

	assert.Len(t, recorder.inbox, 1)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.Record(Event{Address: "8.8.8.8"})
}
