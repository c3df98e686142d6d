package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/TomasWolaschka/ai-rules/internal/notify"
	"github.com/TomasWolaschka/ai-rules/internal/observability"
	"github.com/TomasWolaschka/ai-rules/internal/queue"
	"github.com/TomasWolaschka/ai-rules/internal/store"
	"github.com/TomasWolaschka/ai-rules/internal/trends"
)

var (
	ErrGenerationFailed = errors.New("generation failed")
	ErrHandlerTimeout   = errors.New("handler timeout")
)

// Generator is the external content collaborator. It must be safe to
// retry: a failed call leaves no side effects.
type Generator interface {
	Generate(ctx context.Context, technology string, snapshot trends.TrendSnapshot, extra map[string]string) (string, error)
}

type GeneratorFunc func(ctx context.Context, technology string, snapshot trends.TrendSnapshot, extra map[string]string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, technology string, snapshot trends.TrendSnapshot, extra map[string]string) (string, error) {
	return f(ctx, technology, snapshot, extra)
}

type Options struct {
	// MinScore short-circuits scheduled jobs whose technology scores
	// below it.
	MinScore float64
	// SweepThreshold selects technologies for high-priority
	// regeneration during a priority sweep.
	SweepThreshold  float64
	GenerateTimeout time.Duration
	Technologies    []string
	PromptTemplate  string
}

// Orchestrator binds the store, scorer, queue and hub into the job
// lifecycle state machine.
type Orchestrator struct {
	store  *store.Store
	scorer *trends.Scorer
	hub    *notify.Hub
	gen    Generator
	opts   Options
	queue  *queue.Queue
	now    func() time.Time
}

func New(st *store.Store, scorer *trends.Scorer, hub *notify.Hub, gen Generator, opts Options) *Orchestrator {
	if opts.MinScore <= 0 {
		opts.MinScore = 0.3
	}
	if opts.SweepThreshold <= 0 {
		opts.SweepThreshold = 0.7
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = 3 * time.Minute
	}
	return &Orchestrator{
		store:  st,
		scorer: scorer,
		hub:    hub,
		gen:    gen,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// BindQueue attaches the job queue once it has been constructed with
// RunJob as its handler.
func (o *Orchestrator) BindQueue(q *queue.Queue) { o.queue = q }

// RuleTypeFor maps a technology to its artifact identity.
func RuleTypeFor(technology string) string { return technology + "-best-practices" }

// RunJob executes one active job: priority pre-check, generation,
// archive-then-deploy, outcome publication. Errors flow back into the
// queue's retry policy.
func (o *Orchestrator) RunJob(ctx context.Context, job queue.Job) error {
	ctx, span := observability.StartSpan(ctx, "orchestrator.run_job",
		attribute.String("job.id", job.ID),
		attribute.String("job.rule_type", job.RuleType),
		attribute.String("job.lane", string(job.Lane)),
	)
	defer span.End()

	var snapshot trends.TrendSnapshot
	if job.TriggerSource != queue.SourceEmergency {
		snap, err := o.scorer.Score(ctx, job.Technology)
		if err != nil {
			// Scoring trouble degrades to "proceed without skip".
			observability.Default.IncCounter("orchestrator_score_degraded_total", nil, 1)
		} else {
			snapshot = snap
			if snap.Score < o.opts.MinScore && job.TriggerSource == queue.SourceScheduled {
				observability.Default.IncCounter("orchestrator_jobs_skipped_total", map[string]string{"lane": string(job.Lane)}, 1)
				o.hub.Publish(notify.Message{
					Channel:  notify.ChannelRuleUpdates,
					Severity: notify.SeverityInfo,
					Title:    fmt.Sprintf("%s skipped", job.RuleType),
					Body:     fmt.Sprintf("skipped: score %.2f below threshold %.2f", snap.Score, o.opts.MinScore),
					Fields:   map[string]string{"job_id": job.ID, "technology": job.Technology, "result": "skipped"},
				})
				return nil
			}
		}
	}

	content, err := o.generate(ctx, job, snapshot)
	if err != nil {
		return err
	}
	content = o.appendFooter(content)

	reason := store.ReasonScheduled
	if job.TriggerSource == queue.SourceEmergency {
		reason = store.ReasonEmergency
	}

	// The ruleType token is held across version minting, deploy and
	// publish so a racing job can neither mint the same version nor
	// interleave its archive between the two store calls.
	lock := o.store.Lock(job.RuleType)
	lock.Lock()
	defer lock.Unlock()
	version := o.nextVersion(ctx, job.RuleType)
	entry, artifact, err := o.store.ArchiveThenDeployLocked(ctx, job.RuleType, content, version, reason)
	if err != nil {
		return err
	}
	o.publishOutcome(job, snapshot, entry, artifact)
	return nil
}

func (o *Orchestrator) generate(ctx context.Context, job queue.Job, snapshot trends.TrendSnapshot) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.opts.GenerateTimeout)
	defer cancel()
	extra := map[string]string{
		"rule_type":       job.RuleType,
		"trigger_source":  job.TriggerSource,
		"prompt_template": o.opts.PromptTemplate,
		"year":            strconv.Itoa(o.now().Year()),
	}
	if job.Prompt != "" {
		extra["prompt"] = job.Prompt
	}
	content, err := o.gen.Generate(genCtx, job.Technology, snapshot, extra)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: generate %s: %v", ErrHandlerTimeout, job.Technology, err)
		}
		return "", fmt.Errorf("%w: %s: %v", ErrGenerationFailed, job.Technology, err)
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: %s: empty content", ErrGenerationFailed, job.Technology)
	}
	return content, nil
}

func (o *Orchestrator) appendFooter(content string) string {
	return fmt.Sprintf("%s\n\n---\n\n*Last Updated: %s*\n*Generated via automated rule updater*\n",
		strings.TrimRight(content, "\n"), o.now().Format("2006-01-02"))
}

// nextVersion keeps the YYYY-MM convention monotonic: a redeploy within
// the same month gets a numeric suffix.
func (o *Orchestrator) nextVersion(ctx context.Context, ruleType string) string {
	base := o.now().Format("2006-01")
	active, ok, err := o.store.Active(ctx, ruleType)
	if err != nil || !ok || !strings.HasPrefix(active.Version, base) {
		return base
	}
	rest := strings.TrimPrefix(active.Version, base)
	if rest == "" {
		return base + "-2"
	}
	n, err := strconv.Atoi(strings.TrimPrefix(rest, "-"))
	if err != nil {
		return base + "-2"
	}
	return fmt.Sprintf("%s-%d", base, n+1)
}

func (o *Orchestrator) publishOutcome(job queue.Job, snapshot trends.TrendSnapshot, entry *store.ArchiveEntry, artifact store.Artifact) {
	fields := map[string]string{
		"job_id":     job.ID,
		"technology": job.Technology,
		"version":    artifact.Version,
		"checksum":   artifact.Checksum,
		"result":     "deployed",
	}
	if entry != nil {
		fields["archived_version"] = entry.Version
	}
	major := snapshot.Breaking
	msg := notify.Message{
		Channel:  notify.ChannelRuleUpdates,
		Severity: notify.SeverityInfo,
		Title:    fmt.Sprintf("%s deployed", job.RuleType),
		Body:     fmt.Sprintf("version %s deployed (score %.2f)", artifact.Version, snapshot.Score),
		Fields:   fields,
	}
	o.hub.Publish(msg)
	if job.TriggerSource == queue.SourceEmergency || major {
		general := msg
		general.Channel = notify.ChannelGeneral
		if job.TriggerSource == queue.SourceEmergency {
			general.Severity = notify.SeverityWarning
		}
		o.hub.Publish(general)
	}
	observability.Default.IncCounter("orchestrator_deploys_total", map[string]string{"lane": string(job.Lane)}, 1)
}

// ReportDead publishes the terminal alert for a dead-lettered job. The
// queue guarantees it is called exactly once per dead job.
func (o *Orchestrator) ReportDead(job queue.Job, err error) {
	fields := map[string]string{
		"job_id":     job.ID,
		"technology": job.Technology,
		"lane":       string(job.Lane),
		"attempts":   strconv.Itoa(job.Attempt),
	}
	o.hub.Publish(notify.Message{
		Channel:  notify.ChannelEmergencyAlerts,
		Severity: notify.SeverityCritical,
		Title:    fmt.Sprintf("%s job dead-lettered", job.RuleType),
		Body:     fmt.Sprintf("job %s exhausted %d attempts: %v", job.ID, job.Attempt, err),
		Fields:   fields,
	})
	o.hub.Publish(notify.Message{
		Channel:  notify.ChannelSystemStatus,
		Severity: notify.SeverityWarning,
		Title:    "dead-letter count changed",
		Body:     fmt.Sprintf("lane %s has a new dead-lettered job", job.Lane),
		Fields:   fields,
	})
}
