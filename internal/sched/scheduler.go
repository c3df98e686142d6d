package sched

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/TomasWolaschka/ai-rules/internal/observability"
)

var (
	ErrUnknownTrigger = errors.New("unknown trigger")
	ErrAlreadyFiring  = errors.New("trigger already firing")
)

// Handler is a trigger callback. Handlers only enqueue work; they never
// run generation inline, so a slow handler cannot stall the timer loop
// beyond its own trigger.
type Handler func(ctx context.Context) error

type Trigger struct {
	Name       string    `json:"name"`
	Schedule   string    `json:"schedule"`
	Enabled    bool      `json:"enabled"`
	Firing     bool      `json:"firing"`
	LastRun    time.Time `json:"last_run"`
	NextRun    time.Time `json:"next_run"`
	RunCount   int       `json:"run_count"`
	ErrorCount int       `json:"error_count"`
	Skipped    int       `json:"skipped"`
}

type trigger struct {
	Trigger
	spec    cron.Schedule
	handler Handler
}

// Scheduler owns the recurring trigger table. A trigger never has two
// overlapping firings: while a firing is in progress, due fires for the
// same name are counted as skipped, not queued.
type Scheduler struct {
	mu       sync.Mutex
	triggers map[string]*trigger
	parser   cron.Parser
	tick     time.Duration
	now      func() time.Time

	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

func New(tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = time.Second
	}
	return &Scheduler{
		triggers: make(map[string]*trigger),
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		tick:     tick,
		now:      func() time.Time { return time.Now().UTC() },
		done:     make(chan struct{}),
	}
}

// Register adds a trigger with a standard 5-field cron schedule,
// enabled by default.
func (s *Scheduler) Register(name, schedule string, handler Handler) error {
	spec, err := s.parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("parse schedule %q for %s: %w", schedule, name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.triggers[name]; exists {
		return fmt.Errorf("trigger %s already registered", name)
	}
	s.triggers[name] = &trigger{
		Trigger: Trigger{
			Name:     name,
			Schedule: schedule,
			Enabled:  true,
			NextRun:  spec.Next(s.now()),
		},
		spec:    spec,
		handler: handler,
	}
	return nil
}

func (s *Scheduler) Enable(name string) error  { return s.setEnabled(name, true) }
func (s *Scheduler) Disable(name string) error { return s.setEnabled(name, false) }

func (s *Scheduler) setEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrigger, name)
	}
	t.Enabled = enabled
	return nil
}

// Trigger fires a trigger immediately, bypassing the schedule but still
// honoring the single-instance guarantee.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	t, ok := s.triggers[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTrigger, name)
	}
	if t.Firing {
		t.Skipped++
		s.mu.Unlock()
		observability.Default.IncCounter("scheduler_fires_skipped_total", map[string]string{"trigger": name}, 1)
		return fmt.Errorf("%w: %s", ErrAlreadyFiring, name)
	}
	t.Firing = true
	t.LastRun = s.now()
	handler := t.handler
	s.mu.Unlock()

	err := s.invoke(ctx, name, handler)
	s.mu.Lock()
	t.Firing = false
	t.RunCount++
	if err != nil {
		t.ErrorCount++
	}
	s.mu.Unlock()
	return err
}

// Snapshot returns the trigger table sorted by name.
func (s *Scheduler) Snapshot() []Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Trigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		out = append(out, t.Trigger)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start launches the timer loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.fireDue(ctx)
			}
		}
	}()
}

// Stop halts the timer loop and waits for in-flight firings.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) fireDue(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	due := make([]*trigger, 0, 2)
	for _, t := range s.triggers {
		if t.NextRun.After(now) {
			continue
		}
		// Disabled triggers keep a visible NextRun but never fire.
		if !t.Enabled {
			t.NextRun = t.spec.Next(now)
			continue
		}
		if t.Firing {
			t.Skipped++
			t.NextRun = t.spec.Next(now)
			observability.Default.IncCounter("scheduler_fires_skipped_total", map[string]string{"trigger": t.Name}, 1)
			log.Printf("scheduler: trigger %s still firing, skipped this run", t.Name)
			continue
		}
		t.Firing = true
		t.LastRun = now
		t.NextRun = t.spec.Next(now)
		due = append(due, t)
	}
	s.mu.Unlock()

	for _, t := range due {
		s.wg.Add(1)
		go func(t *trigger) {
			defer s.wg.Done()
			err := s.invoke(ctx, t.Name, t.handler)
			s.mu.Lock()
			t.Firing = false
			t.RunCount++
			if err != nil {
				t.ErrorCount++
			}
			s.mu.Unlock()
		}(t)
	}
}

func (s *Scheduler) invoke(ctx context.Context, name string, handler Handler) error {
	ctx, span := observability.StartSpan(ctx, "scheduler.fire",
		attribute.String("trigger.name", name),
	)
	defer span.End()
	observability.Default.IncCounter("scheduler_fires_total", map[string]string{"trigger": name}, 1)
	err := handler(ctx)
	if err != nil {
		observability.Default.IncCounter("scheduler_fire_errors_total", map[string]string{"trigger": name}, 1)
		log.Printf("scheduler: trigger %s failed: %v", name, err)
	}
	return err
}
