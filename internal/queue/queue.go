package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TomasWolaschka/ai-rules/internal/observability"
)

type Lane string

const (
	LaneEmergency  Lane = "emergency"
	LaneGeneration Lane = "generation"
	LaneAnalysis   Lane = "analysis"
)

// Lanes returns every lane in dispatch-priority order.
func Lanes() []Lane {
	return []Lane{LaneEmergency, LaneGeneration, LaneAnalysis}
}

const (
	StatusQueued      = "queued"
	StatusActive      = "active"
	StatusSucceeded   = "succeeded"
	StatusFailedRetry = "failed-retrying"
	StatusDead        = "dead"
	SourceScheduled   = "scheduled"
	SourceManual      = "manual"
	SourceEmergency   = "emergency"
	PriorityLow       = "low"
	PriorityMedium    = "medium"
	PriorityHigh      = "high"
)

var (
	ErrUnknownLane = errors.New("unknown lane")
	ErrQueueClosed = errors.New("queue closed")
	ErrLaneFull    = errors.New("lane backlog full")
)

type Job struct {
	ID            string    `json:"id"`
	RuleType      string    `json:"rule_type"`
	Technology    string    `json:"technology"`
	Lane          Lane      `json:"lane"`
	TriggerSource string    `json:"trigger_source"`
	PriorityHint  string    `json:"priority_hint"`
	Prompt        string    `json:"prompt,omitempty"`
	Attempt       int       `json:"attempt"`
	MaxAttempts   int       `json:"max_attempts"`
	Status        string    `json:"status"`
	LastError     string    `json:"last_error,omitempty"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

type Stats struct {
	Queued    int `json:"queued"`
	Active    int `json:"active"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Dead      int `json:"dead"`
}

// Handler executes an active job. A nil return marks the job succeeded;
// an error flows into the retry policy.
type Handler func(ctx context.Context, job Job) error

type Options struct {
	GenerationWorkers int
	AnalysisWorkers   int
	Backlog           int
	BaseDelay         time.Duration
	MaxAttempts       int
	EmergencyAttempts int
	// OnDead fires exactly once per dead-lettered job.
	OnDead func(job Job, err error)
}

type lane struct {
	name Lane
	ch   chan Job

	mu        sync.Mutex
	queued    int
	active    int
	succeeded int
	failed    int
	dead      []Job
}

// Queue runs three independent priority lanes with bounded worker
// concurrency. The emergency lane is strictly concurrency-1 and, while
// it has pending jobs, the other lanes stop picking up new work.
type Queue struct {
	opts    Options
	handler Handler
	lanes   map[Lane]*lane

	done    chan struct{}
	wg      sync.WaitGroup
	startMu sync.Mutex
	started bool
	closed  bool
}

func New(handler Handler, opts Options) *Queue {
	if opts.GenerationWorkers <= 0 {
		opts.GenerationWorkers = 2
	}
	if opts.AnalysisWorkers <= 0 {
		opts.AnalysisWorkers = 1
	}
	if opts.Backlog <= 0 {
		opts.Backlog = 256
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.EmergencyAttempts <= 0 {
		opts.EmergencyAttempts = 5
	}
	q := &Queue{
		opts:    opts,
		handler: handler,
		done:    make(chan struct{}),
		lanes:   make(map[Lane]*lane, 3),
	}
	for _, name := range []Lane{LaneEmergency, LaneGeneration, LaneAnalysis} {
		q.lanes[name] = &lane{name: name, ch: make(chan Job, opts.Backlog)}
	}
	return q
}

// Start launches the lane workers. Jobs already enqueued are dispatched
// in FIFO order per lane, emergency first.
func (q *Queue) Start(ctx context.Context) {
	q.startMu.Lock()
	defer q.startMu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	workers := map[Lane]int{
		LaneEmergency:  1,
		LaneGeneration: q.opts.GenerationWorkers,
		LaneAnalysis:   q.opts.AnalysisWorkers,
	}
	for name, count := range workers {
		ln := q.lanes[name]
		for i := 0; i < count; i++ {
			q.wg.Add(1)
			go q.worker(ctx, ln)
		}
	}
}

// Enqueue accepts a job into its lane and returns the assigned job ID.
func (q *Queue) Enqueue(job Job) (string, error) {
	ln, ok := q.lanes[job.Lane]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownLane, job.Lane)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.opts.MaxAttempts
		if job.Lane == LaneEmergency {
			job.MaxAttempts = q.opts.EmergencyAttempts
		}
	}
	job.Status = StatusQueued
	job.EnqueuedAt = time.Now().UTC()
	select {
	case <-q.done:
		return "", ErrQueueClosed
	default:
	}
	select {
	case ln.ch <- job:
	default:
		return "", fmt.Errorf("%w: %s", ErrLaneFull, job.Lane)
	}
	ln.mu.Lock()
	ln.queued++
	ln.mu.Unlock()
	observability.Default.IncCounter("jobs_enqueued_total", laneLabels(ln.name), 1)
	return job.ID, nil
}

func (q *Queue) worker(ctx context.Context, ln *lane) {
	defer q.wg.Done()
	for {
		// Non-emergency lanes yield while emergency work is pending.
		if ln.name != LaneEmergency && q.emergencyPending() > 0 {
			select {
			case <-q.done:
				return
			case <-time.After(5 * time.Millisecond):
			}
			continue
		}
		select {
		case <-q.done:
			return
		case job := <-ln.ch:
			q.run(ctx, ln, job)
		case <-time.After(25 * time.Millisecond):
		}
	}
}

func (q *Queue) run(ctx context.Context, ln *lane, job Job) {
	ln.mu.Lock()
	ln.queued--
	ln.active++
	ln.mu.Unlock()
	job.Status = StatusActive
	observability.Default.IncCounter("jobs_dispatched_total", laneLabels(ln.name), 1)

	err := q.handler(ctx, job)

	ln.mu.Lock()
	ln.active--
	if err == nil {
		ln.succeeded++
	}
	ln.mu.Unlock()

	if err == nil {
		job.Status = StatusSucceeded
		observability.Default.IncCounter("jobs_succeeded_total", laneLabels(ln.name), 1)
		return
	}
	q.retryOrBury(ln, job, err)
}

func (q *Queue) retryOrBury(ln *lane, job Job, err error) {
	job.Attempt++
	job.LastError = err.Error()
	if job.Attempt < job.MaxAttempts {
		job.Status = StatusFailedRetry
		ln.mu.Lock()
		ln.failed++
		ln.mu.Unlock()
		observability.Default.IncCounter("jobs_retried_total", laneLabels(ln.name), 1)
		delay := q.opts.BaseDelay * time.Duration(math.Pow(2, float64(job.Attempt)))
		q.wg.Add(1)
		go func(job Job) {
			defer q.wg.Done()
			select {
			case <-q.done:
				return
			case <-time.After(delay):
			}
			job.Status = StatusQueued
			select {
			case ln.ch <- job:
				ln.mu.Lock()
				ln.queued++
				ln.mu.Unlock()
			case <-q.done:
			}
		}(job)
		return
	}
	job.Status = StatusDead
	ln.mu.Lock()
	ln.dead = append(ln.dead, job)
	deadCount := len(ln.dead)
	ln.mu.Unlock()
	observability.Default.IncCounter("jobs_dead_total", laneLabels(ln.name), 1)
	observability.Default.SetGauge("dead_letter_count", laneLabels(ln.name), float64(deadCount))
	if q.opts.OnDead != nil {
		q.opts.OnDead(job, err)
	}
}

func (q *Queue) emergencyPending() int {
	ln := q.lanes[LaneEmergency]
	ln.mu.Lock()
	defer ln.mu.Unlock()
	return ln.queued + ln.active
}

func (q *Queue) Stats(name Lane) (Stats, error) {
	ln, ok := q.lanes[name]
	if !ok {
		return Stats{}, fmt.Errorf("%w: %s", ErrUnknownLane, name)
	}
	ln.mu.Lock()
	defer ln.mu.Unlock()
	return Stats{
		Queued:    ln.queued,
		Active:    ln.active,
		Succeeded: ln.succeeded,
		Failed:    ln.failed,
		Dead:      len(ln.dead),
	}, nil
}

// DeadLetters returns a copy of a lane's dead-lettered jobs.
func (q *Queue) DeadLetters(name Lane) ([]Job, error) {
	ln, ok := q.lanes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLane, name)
	}
	ln.mu.Lock()
	defer ln.mu.Unlock()
	out := make([]Job, len(ln.dead))
	copy(out, ln.dead)
	return out, nil
}

// RetryDeadLettered re-enqueues every dead job in a lane with a fresh
// attempt budget. Operator-triggered only.
func (q *Queue) RetryDeadLettered(name Lane) (int, error) {
	ln, ok := q.lanes[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownLane, name)
	}
	ln.mu.Lock()
	buried := ln.dead
	ln.dead = nil
	ln.mu.Unlock()

	requeued := 0
	for _, job := range buried {
		job.Attempt = 0
		job.LastError = ""
		if _, err := q.Enqueue(job); err != nil {
			ln.mu.Lock()
			ln.dead = append(ln.dead, job)
			ln.mu.Unlock()
			continue
		}
		requeued++
	}
	ln.mu.Lock()
	deadCount := len(ln.dead)
	ln.mu.Unlock()
	observability.Default.SetGauge("dead_letter_count", laneLabels(ln.name), float64(deadCount))
	if requeued > 0 {
		observability.Default.IncCounter("dead_letter_requeued_total", laneLabels(ln.name), float64(requeued))
	}
	return requeued, nil
}

// Close stops dispatch and waits for active jobs and retry timers up to
// the context deadline.
func (q *Queue) Close(ctx context.Context) error {
	q.startMu.Lock()
	if q.closed {
		q.startMu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	q.startMu.Unlock()

	drained := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain queue: %w", ctx.Err())
	}
}

func laneLabels(name Lane) map[string]string {
	return map[string]string{"lane": string(name)}
}
