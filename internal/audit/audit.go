// Package audit captures completed resolutions as events and fans them out
// to configured sinks. Emission is non-blocking; a full inbox drops the
// event rather than stalling a resolution.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Event is one completed resolution. Kept transport-agnostic so sinks can
// fan out without knowing about HTTP or the orchestrator.
type Event struct {
	Address     string    `json:"address"`
	Country     string    `json:"country"`
	IsVPN       bool      `json:"is_vpn"`
	ThreatLevel int       `json:"threat_level"`
	Outcome     string    `json:"outcome"`
	Timestamp   time.Time `json:"timestamp"`
}

// Sink receives events from the worker.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Recorder is the producer-side handle given to the orchestrator.
type Recorder struct {
	inbox  chan Event
	logger *slog.Logger
}

// NewRecorder builds a recorder with a bounded inbox.
func NewRecorder(buffer int, logger *slog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

// Record enqueues an event without blocking. Drops are logged; losing an
// audit event must never delay or fail a resolution.
func (r *Recorder) Record(event Event) {
	if r == nil {
		return
	}
	select {
	case r.inbox <- event:
	default:
		if r.logger != nil {
			r.logger.Warn("audit inbox full, dropping event", "address", event.Address)
		}
	}
}

// Inbox exposes the consuming side for the worker.
func (r *Recorder) Inbox() <-chan Event {
	return r.inbox
}

// Worker consumes events and appends them to every sink.
type Worker struct {
	inbox  <-chan Event
	sinks  []Sink
	logger *slog.Logger
}

// NewWorker wires the consuming side of the pipeline.
func NewWorker(inbox <-chan Event, logger *slog.Logger, sinks ...Sink) *Worker {
	return &Worker{inbox: inbox, sinks: sinks, logger: logger}
}

// Run processes events until the context is cancelled. Sink failures are
// logged and skipped; one misbehaving sink must not starve the others.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			for _, sink := range w.sinks {
				if err := sink.Append(ctx, event); err != nil && w.logger != nil {
					w.logger.Error("audit sink append failed", "address", event.Address, "error", err)
				}
			}
		}
	}
}
