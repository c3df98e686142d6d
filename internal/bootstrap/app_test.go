package bootstrap

import (
	"context"
	"testing"

	"github.com/TomasWolaschka/ai-rules/internal/config"
	"github.com/TomasWolaschka/ai-rules/internal/orchestrator"
	"github.com/TomasWolaschka/ai-rules/internal/trends"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Root = t.TempDir()
	return cfg
}

func stubGenerator() orchestrator.Generator {
	return orchestrator.GeneratorFunc(func(ctx context.Context, technology string, snapshot trends.TrendSnapshot, extra map[string]string) (string, error) {
		return "# " + technology, nil
	})
}

func TestNewWiresDefaultTriggers(t *testing.T) {
	app, err := New(context.Background(), testConfig(t), stubGenerator())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	triggers := app.Scheduler.Snapshot()
	want := map[string]string{
		"comprehensive-cycle": "0 3 1 */6 *",
		"priority-sweep":      "0 */6 * * *",
		"emergency-sweep":     "*/15 * * * *",
	}
	if len(triggers) != len(want) {
		t.Fatalf("expected %d triggers, got %d", len(want), len(triggers))
	}
	for _, tr := range triggers {
		schedule, ok := want[tr.Name]
		if !ok {
			t.Fatalf("unexpected trigger %s", tr.Name)
		}
		if tr.Schedule != schedule {
			t.Fatalf("trigger %s schedule %q, want %q", tr.Name, tr.Schedule, schedule)
		}
		if !tr.Enabled {
			t.Fatalf("trigger %s should be enabled by default", tr.Name)
		}
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "s3"
	if _, err := New(context.Background(), cfg, stubGenerator()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestNewRequiresMinIOEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "minio"
	cfg.Store.MinIOEndpoint = ""
	if _, err := New(context.Background(), cfg, stubGenerator()); err == nil {
		t.Fatal("expected error for missing minio endpoint")
	}
}

func TestNewRejectsBadTriggerSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Triggers.PrioritySweep = "not a cron line"
	if _, err := New(context.Background(), cfg, stubGenerator()); err == nil {
		t.Fatal("expected error for bad schedule")
	}
}

func TestBaselineSourcesFromConfig(t *testing.T) {
	cfg := testConfig(t)
	vol := 5000.0
	cfg.Trends.Baseline = map[string]config.BaselineSignal{
		"python": {Volume: &vol, Breaking: true},
	}
	app, err := New(context.Background(), cfg, stubGenerator())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	snap, err := app.Scorer.Score(context.Background(), "python")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !snap.Breaking {
		t.Fatal("expected baseline breaking flag to surface in snapshot")
	}
}

func TestShutdownDrainsCleanly(t *testing.T) {
	app, err := New(context.Background(), testConfig(t), stubGenerator())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.Start(ctx)
	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
