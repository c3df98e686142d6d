package sched

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRegisterComputesNextRun(t *testing.T) {
	s := New(time.Second)
	base := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
	s.now = func() time.Time { return base }

	if err := s.Register("comprehensive-cycle", "0 3 1 * *", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	snap := s.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected one trigger, got %d", len(snap))
	}
	tr := snap[0]
	if !tr.Enabled {
		t.Fatalf("trigger should default to enabled")
	}
	want := time.Date(2025, 7, 1, 3, 0, 0, 0, time.UTC)
	if !tr.NextRun.Equal(want) {
		t.Fatalf("next run = %v, want %v", tr.NextRun, want)
	}
}

func TestRegisterRejectsBadScheduleAndDuplicates(t *testing.T) {
	s := New(time.Second)
	if err := s.Register("bad", "not a cron", nil); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := s.Register("dup", "* * * * *", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.Register("dup", "* * * * *", func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestSingleInstanceGuaranteeOnManualTrigger(t *testing.T) {
	s := New(time.Second)
	release := make(chan struct{})
	entered := make(chan struct{})
	err := s.Register("priority-sweep", "* * * * *", func(context.Context) error {
		close(entered)
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.Trigger(context.Background(), "priority-sweep"); err != nil {
			t.Errorf("first trigger: %v", err)
		}
	}()
	<-entered

	if err := s.Trigger(context.Background(), "priority-sweep"); !errors.Is(err, ErrAlreadyFiring) {
		t.Fatalf("expected ErrAlreadyFiring, got %v", err)
	}
	close(release)
	wg.Wait()

	snap := s.Snapshot()
	if snap[0].RunCount != 1 {
		t.Fatalf("run count = %d, want 1", snap[0].RunCount)
	}
	if snap[0].Skipped != 1 {
		t.Fatalf("skipped = %d, want 1 (rejected manual trigger must be counted)", snap[0].Skipped)
	}
}

func TestDueFireSkippedWhilePreviousStillRunning(t *testing.T) {
	s := New(time.Second)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	var nowMu sync.Mutex
	s.now = func() time.Time {
		nowMu.Lock()
		defer nowMu.Unlock()
		return now
	}
	setNow := func(t time.Time) {
		nowMu.Lock()
		now = t
		nowMu.Unlock()
	}

	release := make(chan struct{})
	entered := make(chan struct{})
	err := s.Register("emergency-sweep", "* * * * *", func(context.Context) error {
		close(entered)
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	setNow(base.Add(2 * time.Minute))
	s.fireDue(context.Background())
	<-entered

	// Next due tick arrives while the first firing is still running.
	setNow(base.Add(4 * time.Minute))
	s.fireDue(context.Background())

	snap := s.Snapshot()
	if snap[0].Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", snap[0].Skipped)
	}
	close(release)
	s.Stop()

	snap = s.Snapshot()
	if snap[0].RunCount != 1 {
		t.Fatalf("run count = %d, want 1 (second firing must never start)", snap[0].RunCount)
	}
}

func TestDisabledTriggerNeverFiresButKeepsNextRun(t *testing.T) {
	s := New(time.Second)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base.Add(5 * time.Minute) }

	fired := false
	if err := s.Register("comprehensive-cycle", "* * * * *", func(context.Context) error {
		fired = true
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.Disable("comprehensive-cycle"); err != nil {
		t.Fatalf("disable: %v", err)
	}

	s.fireDue(context.Background())
	s.Stop()
	if fired {
		t.Fatalf("disabled trigger fired")
	}
	snap := s.Snapshot()
	if !snap[0].NextRun.After(base.Add(5 * time.Minute)) {
		t.Fatalf("disabled trigger next run not kept current: %v", snap[0].NextRun)
	}

	if err := s.Enable("comprehensive-cycle"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := s.Trigger(context.Background(), "comprehensive-cycle"); err != nil {
		t.Fatalf("manual trigger: %v", err)
	}
	if !fired {
		t.Fatalf("enabled trigger did not fire on manual trigger")
	}
}

func TestTriggerUnknownName(t *testing.T) {
	s := New(time.Second)
	if err := s.Trigger(context.Background(), "nope"); !errors.Is(err, ErrUnknownTrigger) {
		t.Fatalf("expected ErrUnknownTrigger, got %v", err)
	}
}
