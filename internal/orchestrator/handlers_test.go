package orchestrator

import (
	"context"
	"testing"

	"github.com/TomasWolaschka/ai-rules/internal/notify"
	"github.com/TomasWolaschka/ai-rules/internal/queue"
	"github.com/TomasWolaschka/ai-rules/internal/trends"
)

// The queue is deliberately not started in these tests; handlers only
// enqueue, so lane stats show exactly what each policy selected.

func TestComprehensiveCycleEnqueuesEveryTechnology(t *testing.T) {
	f := newFixture(t, nil, staticGenerator("x"), Options{
		Technologies: []string{"python", "javascript", "java"},
	})
	if err := f.orc.ComprehensiveCycle(context.Background()); err != nil {
		t.Fatalf("comprehensive cycle: %v", err)
	}
	s, _ := f.queue.Stats(queue.LaneGeneration)
	if s.Queued != 3 {
		t.Fatalf("expected 3 queued generation jobs, got %d", s.Queued)
	}
}

func TestPrioritySweepSelectsOnlyAboveThreshold(t *testing.T) {
	f := newFixture(t, map[string]trends.Signal{
		"python": {Volume: 10000, HasVolume: true, Growth: 0.20, HasGrowth: true, BreakingFlag: true}, // score 1.0
		"java":   {Volume: 0, HasVolume: true},                                                        // score well below
	}, staticGenerator("x"), Options{
		Technologies:   []string{"python", "java"},
		SweepThreshold: 0.7,
	})
	_, analysis := f.hub.Subscribe(notify.ChannelTrendAnalysis)

	if err := f.orc.PrioritySweep(context.Background()); err != nil {
		t.Fatalf("priority sweep: %v", err)
	}
	s, _ := f.queue.Stats(queue.LaneGeneration)
	if s.Queued != 1 {
		t.Fatalf("expected 1 queued job, got %d", s.Queued)
	}
	recv(t, analysis)
}

func TestEmergencySweepFlagsBreakingChangesOnly(t *testing.T) {
	f := newFixture(t, map[string]trends.Signal{
		"python": {Volume: 100, HasVolume: true, BreakingFlag: true},
		"git":    {Volume: 10000, HasVolume: true},
	}, staticGenerator("x"), Options{
		Technologies: []string{"python", "git"},
	})
	_, alerts := f.hub.Subscribe(notify.ChannelEmergencyAlerts)

	if err := f.orc.EmergencySweep(context.Background()); err != nil {
		t.Fatalf("emergency sweep: %v", err)
	}
	s, _ := f.queue.Stats(queue.LaneEmergency)
	if s.Queued != 1 {
		t.Fatalf("expected 1 emergency job, got %d", s.Queued)
	}
	gen, _ := f.queue.Stats(queue.LaneGeneration)
	if gen.Queued != 0 {
		t.Fatalf("emergency sweep must not touch the generation lane, got %d", gen.Queued)
	}
	alert := recv(t, alerts)
	if alert.Fields["technology"] != "python" {
		t.Fatalf("unexpected alert %+v", alert)
	}
}
