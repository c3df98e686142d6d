package trends

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/TomasWolaschka/ai-rules/internal/observability"
)

// Reference weighting policy. Weights sum to 1.0; missing sub-signals
// drop their weight from both the numerator and the denominator.
const (
	weightVolume     = 0.3
	weightDiscussion = 0.2
	weightGrowth     = 0.3
	weightBreaking   = 0.2

	breakingBoost = 1.0
	breakingBase  = 0.2

	// NeutralScore is returned when no signal source has data at all.
	NeutralScore = 0.3
)

type TrendSnapshot struct {
	Technology string        `json:"technology"`
	Score      float64       `json:"score"`
	Breaking   bool          `json:"breaking"`
	Sources    []string      `json:"sources,omitempty"`
	ComputedAt time.Time     `json:"computed_at"`
	TTL        time.Duration `json:"ttl"`
}

func (s TrendSnapshot) Fresh(now time.Time) bool {
	return now.Sub(s.ComputedAt) < s.TTL
}

type Options struct {
	TTL               time.Duration
	FetchTimeout      time.Duration
	VolumeCeiling     float64
	DiscussionCeiling float64
	GrowthCeiling     float64
}

// Scorer computes and caches an update-urgency score per technology.
// Recomputation is single-flight per technology: concurrent callers on
// a cache miss share one in-flight computation.
type Scorer struct {
	sources []Source
	opts    Options

	mu    sync.Mutex
	cache map[string]TrendSnapshot
	group singleflight.Group
	now   func() time.Time
}

func defaultOptions() Options {
	return Options{
		TTL:               time.Hour,
		FetchTimeout:      10 * time.Second,
		VolumeCeiling:     10000,
		DiscussionCeiling: 5000,
		GrowthCeiling:     0.20,
	}
}

func NewScorer(sources []Source, opts Options) *Scorer {
	def := defaultOptions()
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = def.FetchTimeout
	}
	if opts.VolumeCeiling <= 0 {
		opts.VolumeCeiling = def.VolumeCeiling
	}
	if opts.DiscussionCeiling <= 0 {
		opts.DiscussionCeiling = def.DiscussionCeiling
	}
	if opts.GrowthCeiling <= 0 {
		opts.GrowthCeiling = def.GrowthCeiling
	}
	return &Scorer{
		sources: sources,
		opts:    opts,
		cache:   make(map[string]TrendSnapshot),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Scorer) Score(ctx context.Context, technology string) (TrendSnapshot, error) {
	s.mu.Lock()
	cached, ok := s.cache[technology]
	s.mu.Unlock()
	if ok && cached.Fresh(s.now()) {
		observability.Default.IncCounter("trend_score_cache_hits_total", map[string]string{"technology": technology}, 1)
		return cached, nil
	}

	v, err, _ := s.group.Do(technology, func() (any, error) {
		snapshot := s.compute(ctx, technology)
		s.mu.Lock()
		s.cache[technology] = snapshot
		s.mu.Unlock()
		observability.Default.IncCounter("trend_score_recomputed_total", map[string]string{"technology": technology}, 1)
		observability.Default.SetGauge("trend_score", map[string]string{"technology": technology}, snapshot.Score)
		return snapshot, nil
	})
	if err != nil {
		return TrendSnapshot{}, err
	}
	return v.(TrendSnapshot), nil
}

// Invalidate forces the next Score call for technology to recompute.
func (s *Scorer) Invalidate(technology string) {
	s.mu.Lock()
	delete(s.cache, technology)
	s.mu.Unlock()
}

// Snapshot returns all cached trend snapshots, sorted by technology.
func (s *Scorer) Snapshot() []TrendSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TrendSnapshot, 0, len(s.cache))
	for _, snap := range s.cache {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Technology < out[j].Technology })
	return out
}

func (s *Scorer) compute(ctx context.Context, technology string) TrendSnapshot {
	signals := make([]Signal, 0, len(s.sources))
	names := make([]string, 0, len(s.sources))
	for _, source := range s.sources {
		fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
		signal, err := source.Fetch(fetchCtx, technology)
		cancel()
		if err != nil {
			// A source outage degrades the computation, it never
			// fails the caller.
			observability.Default.IncCounter("trend_signal_unavailable_total", map[string]string{"technology": technology}, 1)
			continue
		}
		signals = append(signals, signal)
		names = append(names, source.Name())
	}
	merged, available := mergeSignals(signals)
	score := NeutralScore
	if available {
		score = scoreSignal(merged, s.opts)
	}
	return TrendSnapshot{
		Technology: technology,
		Score:      score,
		Breaking:   merged.BreakingFlag,
		Sources:    names,
		ComputedAt: s.now(),
		TTL:        s.opts.TTL,
	}
}

// mergeSignals folds the per-source signals into one: each available
// sub-signal takes its maximum reported value, the breaking flag is an
// OR across sources.
func mergeSignals(signals []Signal) (Signal, bool) {
	var merged Signal
	for _, sig := range signals {
		if sig.HasVolume && (!merged.HasVolume || sig.Volume > merged.Volume) {
			merged.Volume = sig.Volume
			merged.HasVolume = true
		}
		if sig.HasDiscussion && (!merged.HasDiscussion || sig.Discussion > merged.Discussion) {
			merged.Discussion = sig.Discussion
			merged.HasDiscussion = true
		}
		if sig.HasGrowth && (!merged.HasGrowth || sig.Growth > merged.Growth) {
			merged.Growth = sig.Growth
			merged.HasGrowth = true
		}
		if sig.BreakingFlag {
			merged.BreakingFlag = true
		}
	}
	available := len(signals) > 0 && (merged.HasVolume || merged.HasDiscussion || merged.HasGrowth || merged.BreakingFlag)
	return merged, available
}

func scoreSignal(sig Signal, opts Options) float64 {
	numerator := 0.0
	denominator := 0.0
	if sig.HasVolume {
		numerator += weightVolume * capRatio(sig.Volume, opts.VolumeCeiling)
		denominator += weightVolume
	}
	if sig.HasDiscussion {
		numerator += weightDiscussion * capRatio(sig.Discussion, opts.DiscussionCeiling)
		denominator += weightDiscussion
	}
	if sig.HasGrowth {
		growth := sig.Growth
		if growth < 0 {
			growth = 0
		}
		numerator += weightGrowth * capRatio(growth, opts.GrowthCeiling)
		denominator += weightGrowth
	}
	breaking := breakingBase
	if sig.BreakingFlag {
		breaking = breakingBoost
	}
	numerator += weightBreaking * breaking
	denominator += weightBreaking
	if denominator == 0 {
		return NeutralScore
	}
	score := numerator / denominator
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func capRatio(value, ceiling float64) float64 {
	if ceiling <= 0 {
		return 0
	}
	ratio := value / ceiling
	if ratio > 1 {
		return 1
	}
	return ratio
}
