package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestRetryLawSucceedsAfterMaxAttemptsMinusOneFailures(t *testing.T) {
	var mu sync.Mutex
	executions := 0
	handler := func(_ context.Context, _ Job) error {
		mu.Lock()
		defer mu.Unlock()
		executions++
		if executions < 3 {
			return errors.New("transient")
		}
		return nil
	}
	q := New(handler, Options{BaseDelay: time.Millisecond, MaxAttempts: 3})
	defer q.Close(context.Background())

	if _, err := q.Enqueue(Job{RuleType: "python-best-practices", Technology: "python", Lane: LaneGeneration, TriggerSource: SourceScheduled}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	q.Start(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		s, _ := q.Stats(LaneGeneration)
		return s.Succeeded == 1
	})
	s, _ := q.Stats(LaneGeneration)
	if s.Dead != 0 || s.Failed != 2 {
		t.Fatalf("unexpected stats %+v", s)
	}
	mu.Lock()
	defer mu.Unlock()
	if executions != 3 {
		t.Fatalf("expected 3 executions, got %d", executions)
	}
}

func TestRetryLawDeadAfterMaxAttempts(t *testing.T) {
	var deadMu sync.Mutex
	var deadJobs []Job
	handler := func(_ context.Context, _ Job) error { return errors.New("always fails") }
	q := New(handler, Options{
		BaseDelay:   time.Millisecond,
		MaxAttempts: 3,
		OnDead: func(job Job, _ error) {
			deadMu.Lock()
			deadJobs = append(deadJobs, job)
			deadMu.Unlock()
		},
	})
	defer q.Close(context.Background())

	if _, err := q.Enqueue(Job{RuleType: "git-best-practices", Technology: "git", Lane: LaneGeneration, TriggerSource: SourceScheduled}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	q.Start(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		s, _ := q.Stats(LaneGeneration)
		return s.Dead == 1
	})
	deadMu.Lock()
	defer deadMu.Unlock()
	if len(deadJobs) != 1 {
		t.Fatalf("expected exactly one dead alert, got %d", len(deadJobs))
	}
	if deadJobs[0].Attempt != 3 {
		t.Fatalf("dead job should record 3 attempts, got %d", deadJobs[0].Attempt)
	}
	if deadJobs[0].Status != StatusDead {
		t.Fatalf("dead job status = %s", deadJobs[0].Status)
	}
}

func TestEmergencyLaneDispatchedBeforeQueuedGeneration(t *testing.T) {
	order := make(chan Lane, 16)
	handler := func(_ context.Context, job Job) error {
		order <- job.Lane
		return nil
	}
	q := New(handler, Options{GenerationWorkers: 2, BaseDelay: time.Millisecond})
	defer q.Close(context.Background())

	for i := 0; i < 10; i++ {
		if _, err := q.Enqueue(Job{RuleType: fmt.Sprintf("tech-%d-best-practices", i), Lane: LaneGeneration, TriggerSource: SourceScheduled}); err != nil {
			t.Fatalf("enqueue generation %d: %v", i, err)
		}
	}
	// The emergency job arrives last but must be dispatched first.
	if _, err := q.Enqueue(Job{RuleType: "python-best-practices", Lane: LaneEmergency, TriggerSource: SourceEmergency}); err != nil {
		t.Fatalf("enqueue emergency: %v", err)
	}
	q.Start(context.Background())

	select {
	case first := <-order:
		if first != LaneEmergency {
			t.Fatalf("first dispatched lane = %s, want emergency", first)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no job dispatched")
	}
	for i := 0; i < 10; i++ {
		select {
		case lane := <-order:
			if lane != LaneGeneration {
				t.Fatalf("unexpected lane %s after emergency", lane)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("generation job %d never dispatched", i)
		}
	}
}

func TestRetryDeadLetteredResetsAttempts(t *testing.T) {
	var mu sync.Mutex
	fail := true
	var attempts []int
	handler := func(_ context.Context, job Job) error {
		mu.Lock()
		attempts = append(attempts, job.Attempt)
		shouldFail := fail
		mu.Unlock()
		if shouldFail {
			return errors.New("still broken")
		}
		return nil
	}
	q := New(handler, Options{BaseDelay: time.Millisecond, MaxAttempts: 2})
	defer q.Close(context.Background())
	if _, err := q.Enqueue(Job{RuleType: "java-best-practices", Lane: LaneAnalysis, TriggerSource: SourceManual}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	q.Start(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		s, _ := q.Stats(LaneAnalysis)
		return s.Dead == 1
	})

	mu.Lock()
	fail = false
	mu.Unlock()
	requeued, err := q.RetryDeadLettered(LaneAnalysis)
	if err != nil {
		t.Fatalf("retry dead-lettered: %v", err)
	}
	if requeued != 1 {
		t.Fatalf("expected 1 requeued, got %d", requeued)
	}
	waitFor(t, 2*time.Second, func() bool {
		s, _ := q.Stats(LaneAnalysis)
		return s.Succeeded == 1 && s.Dead == 0
	})
	mu.Lock()
	defer mu.Unlock()
	if attempts[len(attempts)-1] != 0 {
		t.Fatalf("requeued job should restart at attempt 0, got %d", attempts[len(attempts)-1])
	}
}

func TestEnqueueUnknownLane(t *testing.T) {
	q := New(func(context.Context, Job) error { return nil }, Options{})
	defer q.Close(context.Background())
	if _, err := q.Enqueue(Job{Lane: Lane("bulk")}); !errors.Is(err, ErrUnknownLane) {
		t.Fatalf("expected ErrUnknownLane, got %v", err)
	}
}

func TestCloseDrainsActiveJobs(t *testing.T) {
	started := make(chan struct{})
	done := make(chan struct{})
	handler := func(_ context.Context, _ Job) error {
		close(started)
		time.Sleep(30 * time.Millisecond)
		close(done)
		return nil
	}
	q := New(handler, Options{})
	if _, err := q.Enqueue(Job{RuleType: "python-best-practices", Lane: LaneGeneration}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	q.Start(context.Background())
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-done:
	default:
		t.Fatalf("close returned before the active job finished")
	}
}
