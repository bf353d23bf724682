// Package breaker implements a quota-aware circuit breaker shared across
// the LLM-calling stages of the pipeline (contextualiser, translator,
// embedder): once a provider starts returning quota errors, further calls
// queue instead of hammering it, and a single probe goroutine decides when
// it's safe to resume.
//
// The teacher has no circuit breaker of any kind; this package is new. Its
// concurrency shape is grounded on the teacher's semaphore/channel idioms in
// embeddings/client.go and embeddings/batcher.go (bounded concurrent work,
// a single cancellation point), generalized from "bounded fan-out" to a
// single actor goroutine that owns all state transitions and the retry
// queue, so callers never need their own locking.
package breaker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// State is one of the breaker's three states.
type State int32

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by Execute once the breaker has been shut down.
var ErrClosed = errors.New("breaker: closed for new work")

// Config tunes breaker behavior.
type Config struct {
	RetryInterval    time.Duration
	FailureThreshold int
	SuccessThreshold int
}

// DefaultConfig returns the spec's defaults: a 1-failure threshold (any
// quota error trips the breaker immediately) and a 1-success threshold.
func DefaultConfig() Config {
	return Config{
		RetryInterval:    30 * time.Second,
		FailureThreshold: 1,
		SuccessThreshold: 1,
	}
}

// Recorder observes breaker state transitions and queue depth, so callers
// can wire Prometheus counters without this package depending on them.
type Recorder interface {
	RecordTransition(from, to State)
	RecordQueueDepth(depth int)
}

type noopRecorder struct{}

func (noopRecorder) RecordTransition(State, State) {}
func (noopRecorder) RecordQueueDepth(int)          {}

type request struct {
	fn     func() (interface{}, error)
	result chan response
}

type response struct {
	val interface{}
	err error
}

// closedResult is how a concurrently-dispatched Closed-state call reports
// back to the actor: the call itself runs on its own goroutine (see
// runClosed), but only the actor ever touches consecutiveFailures/Success
// or decides to trip the breaker.
type closedResult struct {
	req *request
	val interface{}
	err error
}

// Breaker is a single-shared-instance circuit breaker. Its zero value is
// not usable; build one with New.
type Breaker struct {
	cfg      Config
	recorder Recorder

	incoming    chan *request
	completions chan closedResult
	done        chan struct{}
	closeOne    atomic_Once

	state int32 // atomic mirror of the actor's authoritative state, for State()

	// actor-owned; only ever touched from run()
	queue               []*request
	consecutiveFailures int
	consecutiveSuccess  int
	probeTimer          *time.Timer
}

// atomic_Once avoids importing sync just for a single guarded close; kept
// tiny and unexported since Breaker.Close is the only caller.
type atomic_Once struct{ done int32 }

func (o *atomic_Once) do(f func()) {
	if atomic.CompareAndSwapInt32(&o.done, 0, 1) {
		f()
	}
}

// New builds a Breaker in the Closed state and starts its actor goroutine.
// recorder may be nil.
func New(cfg Config, recorder Recorder) *Breaker {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	b := &Breaker{
		cfg:         cfg,
		recorder:    recorder,
		incoming:    make(chan *request),
		completions: make(chan closedResult),
		done:        make(chan struct{}),
	}
	go b.run()
	return b
}

// State reports the breaker's current state. Safe for concurrent use.
func (b *Breaker) State() State {
	return State(atomic.LoadInt32(&b.state))
}

// Close stops the actor goroutine. Calls to Execute made after Close return
// ErrClosed; any callers already queued receive ErrClosed too.
func (b *Breaker) Close() {
	b.closeOne.do(func() { close(b.done) })
}

// Execute runs fn through the breaker. In the Closed state a quota error
// (per the classifier in classifier.go) may trip the breaker and queue this
// very call for later retry; Execute blocks until fn has actually run and
// returns its result, or ctx is done, or the breaker is closed.
func (b *Breaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	req := &request{fn: fn, result: make(chan response, 1)}

	select {
	case b.incoming <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return nil, ErrClosed
	}

	select {
	case resp := <-req.result:
		return resp.val, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return nil, ErrClosed
	}
}

// run is the single actor goroutine; it is the only code that ever mutates
// state, queue, consecutiveFailures/Success, or probeTimer.
func (b *Breaker) run() {
	for {
		var probeC <-chan time.Time
		if b.currentState() == Open && b.probeTimer != nil {
			probeC = b.probeTimer.C
		}

		select {
		case req := <-b.incoming:
			b.handleIncoming(req)
		case res := <-b.completions:
			b.handleClosedResult(res)
		case <-probeC:
			b.handleProbe()
		case <-b.done:
			b.rejectQueue(ErrClosed)
			return
		}
	}
}

func (b *Breaker) currentState() State {
	return State(atomic.LoadInt32(&b.state))
}

func (b *Breaker) transition(to State) {
	from := b.currentState()
	if from == to {
		return
	}
	atomic.StoreInt32(&b.state, int32(to))
	b.recorder.RecordTransition(from, to)
}

func (b *Breaker) handleIncoming(req *request) {
	switch b.currentState() {
	case Closed:
		b.runClosed(req)
	default: // Open, HalfOpen
		b.enqueue(req)
	}
}

// runClosed dispatches req.fn() on its own goroutine so independent in-flight
// Closed-state calls run concurrently (spec.md §4.7/§5) instead of being
// serialised through the single actor goroutine; only the result's bookkeeping
// (consecutiveFailures/Success, the trip decision) happens back on the actor,
// via handleClosedResult.
func (b *Breaker) runClosed(req *request) {
	go func() {
		val, err := req.fn()
		select {
		case b.completions <- closedResult{req: req, val: val, err: err}:
		case <-b.done:
		}
	}()
}

func (b *Breaker) handleClosedResult(res closedResult) {
	req, val, err := res.req, res.val, res.err
	if err == nil {
		b.consecutiveSuccess++
		b.consecutiveFailures = 0
		req.result <- response{val, nil}
		return
	}

	if !IsQuotaError(err) {
		req.result <- response{nil, err}
		return
	}

	b.consecutiveFailures++
	b.consecutiveSuccess = 0
	if b.consecutiveFailures < b.failureThreshold() {
		// Below threshold: still closed, propagate like any other error.
		req.result <- response{nil, err}
		return
	}

	b.transition(Open)
	b.enqueue(req)
	b.armProbe()
}

func (b *Breaker) enqueue(req *request) {
	b.queue = append(b.queue, req)
	b.recorder.RecordQueueDepth(len(b.queue))
}

func (b *Breaker) dequeue() *request {
	if len(b.queue) == 0 {
		return nil
	}
	req := b.queue[0]
	b.queue = b.queue[1:]
	b.recorder.RecordQueueDepth(len(b.queue))
	return req
}

func (b *Breaker) armProbe() {
	if b.probeTimer != nil {
		b.probeTimer.Stop()
	}
	b.probeTimer = time.NewTimer(b.retryInterval())
}

// handleProbe fires every retry_interval while Open: it transitions to
// HalfOpen, runs the front of the queue, and either closes + drains on
// success or stays Open (re-arming the probe) otherwise.
func (b *Breaker) handleProbe() {
	if len(b.queue) == 0 {
		b.armProbe()
		return
	}

	b.transition(HalfOpen)
	front := b.dequeue()

	val, err := front.fn()
	switch {
	case err == nil:
		front.result <- response{val, nil}
		b.consecutiveFailures = 0
		b.consecutiveSuccess = 1
		b.transition(Closed)
		b.drainQueue()
	case IsQuotaError(err):
		// Failed probe: put the call back at the head of the queue and
		// remain open for the next probe tick.
		b.queue = append([]*request{front}, b.queue...)
		b.recorder.RecordQueueDepth(len(b.queue))
		b.transition(Open)
		b.armProbe()
	default:
		front.result <- response{nil, err}
		b.transition(Open)
		b.armProbe()
	}
}

// drainQueue runs queued calls FIFO once the probe call has succeeded. A
// non-quota error just rejects that caller and continues; a quota error
// returns the offending item to the head of the queue and re-opens.
func (b *Breaker) drainQueue() {
	for len(b.queue) > 0 {
		item := b.dequeue()
		val, err := item.fn()
		if err == nil {
			item.result <- response{val, nil}
			continue
		}
		if IsQuotaError(err) {
			b.queue = append([]*request{item}, b.queue...)
			b.recorder.RecordQueueDepth(len(b.queue))
			b.transition(Open)
			b.armProbe()
			return
		}
		item.result <- response{nil, err}
	}
}

func (b *Breaker) rejectQueue(err error) {
	for _, req := range b.queue {
		req.result <- response{nil, err}
	}
	b.queue = nil
}

func (b *Breaker) failureThreshold() int {
	if b.cfg.FailureThreshold <= 0 {
		return 1
	}
	return b.cfg.FailureThreshold
}

func (b *Breaker) retryInterval() time.Duration {
	if b.cfg.RetryInterval <= 0 {
		return 30 * time.Second
	}
	return b.cfg.RetryInterval
}
