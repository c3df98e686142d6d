package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/TomasWolaschka/ai-rules/internal/notify"
	"github.com/TomasWolaschka/ai-rules/internal/queue"
)

// ComprehensiveCycle enqueues a generation job per tracked technology
// at medium priority.
func (o *Orchestrator) ComprehensiveCycle(ctx context.Context) error {
	var errs []string
	for _, tech := range o.opts.Technologies {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := o.queue.Enqueue(queue.Job{
			RuleType:      RuleTypeFor(tech),
			Technology:    tech,
			Lane:          queue.LaneGeneration,
			TriggerSource: queue.SourceScheduled,
			PriorityHint:  queue.PriorityMedium,
		})
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", tech, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("comprehensive cycle: %s", strings.Join(errs, "; "))
	}
	return nil
}

// PrioritySweep scores every tracked technology and enqueues a
// high-priority generation job for those above the sweep threshold.
func (o *Orchestrator) PrioritySweep(ctx context.Context) error {
	flagged := 0
	for _, tech := range o.opts.Technologies {
		if err := ctx.Err(); err != nil {
			return err
		}
		snap, err := o.scorer.Score(ctx, tech)
		if err != nil {
			continue
		}
		if snap.Score <= o.opts.SweepThreshold {
			continue
		}
		flagged++
		if _, err := o.queue.Enqueue(queue.Job{
			RuleType:      RuleTypeFor(tech),
			Technology:    tech,
			Lane:          queue.LaneGeneration,
			TriggerSource: queue.SourceScheduled,
			PriorityHint:  queue.PriorityHigh,
		}); err != nil {
			return fmt.Errorf("priority sweep enqueue %s: %w", tech, err)
		}
	}
	o.hub.Publish(notify.Message{
		Channel:  notify.ChannelTrendAnalysis,
		Severity: notify.SeverityInfo,
		Title:    "priority sweep completed",
		Body:     fmt.Sprintf("%d of %d technologies above threshold %.2f", flagged, len(o.opts.Technologies), o.opts.SweepThreshold),
	})
	return nil
}

// EmergencySweep enqueues an emergency job for every technology with a
// critical breaking-change flag, independent of the score threshold.
func (o *Orchestrator) EmergencySweep(ctx context.Context) error {
	for _, tech := range o.opts.Technologies {
		if err := ctx.Err(); err != nil {
			return err
		}
		snap, err := o.scorer.Score(ctx, tech)
		if err != nil || !snap.Breaking {
			continue
		}
		if _, err := o.queue.Enqueue(queue.Job{
			RuleType:      RuleTypeFor(tech),
			Technology:    tech,
			Lane:          queue.LaneEmergency,
			TriggerSource: queue.SourceEmergency,
			PriorityHint:  queue.PriorityHigh,
		}); err != nil {
			return fmt.Errorf("emergency sweep enqueue %s: %w", tech, err)
		}
		o.hub.Publish(notify.Message{
			Channel:  notify.ChannelEmergencyAlerts,
			Severity: notify.SeverityCritical,
			Title:    fmt.Sprintf("breaking change detected for %s", tech),
			Body:     fmt.Sprintf("emergency regeneration queued (score %.2f)", snap.Score),
			Fields:   map[string]string{"technology": tech},
		})
	}
	return nil
}
