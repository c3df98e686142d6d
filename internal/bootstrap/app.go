package bootstrap

import (
	"context"
	"fmt"

	"github.com/TomasWolaschka/ai-rules/internal/classify"
	"github.com/TomasWolaschka/ai-rules/internal/config"
	"github.com/TomasWolaschka/ai-rules/internal/notify"
	"github.com/TomasWolaschka/ai-rules/internal/orchestrator"
	"github.com/TomasWolaschka/ai-rules/internal/queue"
	"github.com/TomasWolaschka/ai-rules/internal/sched"
	"github.com/TomasWolaschka/ai-rules/internal/store"
	"github.com/TomasWolaschka/ai-rules/internal/trends"
)

// App holds every wired component of the rules daemon.
type App struct {
	Config     config.Config
	Store      *store.Store
	Scorer     *trends.Scorer
	Hub        *notify.Hub
	Queue      *queue.Queue
	Scheduler  *sched.Scheduler
	Orc        *orchestrator.Orchestrator
	Classifier *classify.Classifier
}

// New wires the full component graph from config. A nil generator
// selects the configured command generator.
func New(ctx context.Context, cfg config.Config, gen orchestrator.Generator) (*App, error) {
	backend, err := newBackend(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	st := store.New(backend)

	scorer := trends.NewScorer(baselineSources(cfg), trends.Options{
		TTL:               cfg.TrendTTL(),
		FetchTimeout:      cfg.FetchTimeout(),
		VolumeCeiling:     cfg.Trends.VolumeCeiling,
		DiscussionCeiling: cfg.Trends.DiscussionCeiling,
		GrowthCeiling:     cfg.Trends.GrowthCeiling,
	})

	hub := notify.NewHub(64)

	if gen == nil {
		gen = orchestrator.CommandGenerator{
			Command: cfg.Generator.Command,
			Args:    cfg.Generator.Args,
		}
	}
	orc := orchestrator.New(st, scorer, hub, gen, orchestrator.Options{
		MinScore:        cfg.Orchestrator.MinScore,
		SweepThreshold:  cfg.Orchestrator.SweepThreshold,
		GenerateTimeout: cfg.GenerateTimeout(),
		Technologies:    cfg.Technologies,
		PromptTemplate:  cfg.Orchestrator.PromptTemplate,
	})

	q := queue.New(orc.RunJob, queue.Options{
		GenerationWorkers: cfg.Queue.GenerationWorkers,
		AnalysisWorkers:   cfg.Queue.AnalysisWorkers,
		Backlog:           cfg.Queue.Backlog,
		BaseDelay:         cfg.BaseDelay(),
		MaxAttempts:       cfg.Queue.MaxAttempts,
		EmergencyAttempts: cfg.Queue.EmergencyAttempts,
		OnDead:            orc.ReportDead,
	})
	orc.BindQueue(q)

	sc := sched.New(0)
	if err := registerTriggers(sc, cfg.Triggers, orc); err != nil {
		return nil, err
	}

	patterns := classifierPatterns(cfg)
	cls, err := classify.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("classifier patterns: %w", err)
	}

	return &App{
		Config:     cfg,
		Store:      st,
		Scorer:     scorer,
		Hub:        hub,
		Queue:      q,
		Scheduler:  sc,
		Orc:        orc,
		Classifier: cls,
	}, nil
}

// Start launches queue workers and the trigger loop.
func (a *App) Start(ctx context.Context) {
	a.Queue.Start(ctx)
	a.Scheduler.Start(ctx)
}

// Shutdown stops new trigger fires, drains in-flight jobs, then closes
// the notification hub.
func (a *App) Shutdown(ctx context.Context) error {
	a.Scheduler.Stop()
	err := a.Queue.Close(ctx)
	a.Hub.Close()
	return err
}

func newBackend(ctx context.Context, cfg config.StoreConfig) (store.Backend, error) {
	switch cfg.Backend {
	case "fs", "":
		return store.NewFSBackend(cfg.Root)
	case "minio":
		if cfg.MinIOEndpoint == "" {
			return nil, fmt.Errorf("store.minio_endpoint is required when store.backend=minio")
		}
		return store.NewMinIOBackend(ctx, store.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
	default:
		return nil, fmt.Errorf("unsupported store.backend value %q", cfg.Backend)
	}
}

func registerTriggers(sc *sched.Scheduler, cfg config.TriggersConfig, orc *orchestrator.Orchestrator) error {
	if err := sc.Register("comprehensive-cycle", cfg.ComprehensiveCycle, orc.ComprehensiveCycle); err != nil {
		return err
	}
	if err := sc.Register("priority-sweep", cfg.PrioritySweep, orc.PrioritySweep); err != nil {
		return err
	}
	return sc.Register("emergency-sweep", cfg.EmergencySweep, orc.EmergencySweep)
}

func baselineSources(cfg config.Config) []trends.Source {
	signals := make(map[string]trends.Signal, len(cfg.Trends.Baseline))
	for tech, base := range cfg.Trends.Baseline {
		sig := trends.Signal{Technology: tech, BreakingFlag: base.Breaking}
		if base.Volume != nil {
			sig.Volume, sig.HasVolume = *base.Volume, true
		}
		if base.Discussion != nil {
			sig.Discussion, sig.HasDiscussion = *base.Discussion, true
		}
		if base.Growth != nil {
			sig.Growth, sig.HasGrowth = *base.Growth, true
		}
		signals[tech] = sig
	}
	if len(signals) == 0 {
		return nil
	}
	return []trends.Source{trends.NewStaticSource("baseline", signals)}
}

func classifierPatterns(cfg config.Config) []classify.Pattern {
	if len(cfg.Classifier) == 0 {
		return classify.DefaultPatterns()
	}
	patterns := make([]classify.Pattern, 0, len(cfg.Classifier))
	for _, p := range cfg.Classifier {
		patterns = append(patterns, classify.Pattern{
			Technology: p.Technology,
			Priority:   p.Priority,
			Patterns:   p.Patterns,
		})
	}
	return patterns
}
