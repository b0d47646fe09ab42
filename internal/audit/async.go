package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// FailureCounter is the subset of monitoring.Metrics the recorder reports to.
type FailureCounter interface {
	IncrementAuditFailure(sink string)
}

// Sink is a named Recorder.
type Sink struct {
	Name string
	Recorder
}

// Async fans entries out to its sinks on a background worker. Record never
// blocks the caller and never returns a sink error: a full queue drops the
// entry and counts it against the "queue" sink.
type Async struct {
	sinks    []Sink
	queue    chan Entry
	failures FailureCounter
	logger   *slog.Logger
	timeout  time.Duration

	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	closeMu sync.Once
}

// NewAsync starts the worker. failures may be nil.
func NewAsync(queueSize int, failures FailureCounter, sinks ...Sink) *Async {
	if queueSize <= 0 {
		queueSize = 256
	}
	a := &Async{
		sinks:    sinks,
		queue:    make(chan Entry, queueSize),
		failures: failures,
		logger:   slog.Default().With("component", "audit"),
		timeout:  5 * time.Second,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Record enqueues e.
func (a *Async) Record(_ context.Context, e Entry) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.fail("queue", e, errClosed)
		return nil
	}

	select {
	case a.queue <- e:
	default:
		a.fail("queue", e, errQueueFull)
	}
	return nil
}

func (a *Async) run() {
	defer a.wg.Done()
	for e := range a.queue {
		a.dispatch(e)
	}
}

func (a *Async) dispatch(e Entry) {
	for _, sink := range a.sinks {
		// detached from the request that produced the verdict
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := sink.Record(ctx, e)
		cancel()
		if err != nil {
			a.fail(sink.Name, e, err)
		}
	}
}

func (a *Async) fail(sink string, e Entry, err error) {
	if a.failures != nil {
		a.failures.IncrementAuditFailure(sink)
	}
	a.logger.Warn("Audit write failed", "sink", sink, "scan_id", e.ID, "error", err)
}

// Close stops accepting entries and waits for queued ones to drain, or for
// ctx to end.
func (a *Async) Close(ctx context.Context) error {
	a.closeMu.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type auditError string

func (e auditError) Error() string { return string(e) }

const (
	errQueueFull auditError = "audit queue full"
	errClosed    auditError = "audit recorder closed"
)
