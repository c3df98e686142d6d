package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/TomasWolaschka/ai-rules/internal/classify"
	"github.com/TomasWolaschka/ai-rules/internal/config"
	"github.com/TomasWolaschka/ai-rules/internal/observability"
	"github.com/TomasWolaschka/ai-rules/internal/orchestrator"
	"github.com/TomasWolaschka/ai-rules/internal/queue"
	"github.com/TomasWolaschka/ai-rules/internal/sched"
	"github.com/TomasWolaschka/ai-rules/internal/store"
	"github.com/TomasWolaschka/ai-rules/internal/trends"
	"github.com/TomasWolaschka/ai-rules/pkg/rulesapi"
)

// Server exposes the daemon's control surface over HTTP.
type Server struct {
	cfg        config.Config
	store      *store.Store
	queue      *queue.Queue
	sched      *sched.Scheduler
	scorer     *trends.Scorer
	classifier *classify.Classifier
	limiter    *submitLimiter
}

func NewServer(cfg config.Config, st *store.Store, q *queue.Queue, sc *sched.Scheduler, scorer *trends.Scorer, cls *classify.Classifier) *Server {
	return &Server{
		cfg:        cfg,
		store:      st,
		queue:      q,
		sched:      sc,
		scorer:     scorer,
		classifier: cls,
		limiter:    newSubmitLimiterFromEnv(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/metrics", s.handleMetrics)
	mux.HandleFunc("/v1/metrics/prometheus", s.handleMetricsPrometheus)
	mux.HandleFunc("/v1/jobs", s.handleJobs)
	mux.HandleFunc("/v1/queues/stats", s.handleQueueStats)
	mux.HandleFunc("/v1/queues/", s.handleQueueSubresource)
	mux.HandleFunc("/v1/triggers", s.handleTriggers)
	mux.HandleFunc("/v1/triggers/", s.handleTriggerAction)
	mux.HandleFunc("/v1/trends", s.handleTrends)
	mux.HandleFunc("/v1/trends/", s.handleTrendInvalidate)
	mux.HandleFunc("/v1/artifacts/cleanup", s.handleCleanup)
	mux.HandleFunc("/v1/artifacts/", s.handleArtifactSubresource)
	return withTracing(withLogging(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, observability.Default.Snapshot())
}

func (s *Server) handleMetricsPrometheus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(observability.Default.RenderPrometheus()))
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req rulesapi.SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lane := strings.TrimSpace(req.Lane)
	if lane == "" {
		lane = string(queue.LaneGeneration)
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = queue.SourceManual
	}
	if lane == string(queue.LaneEmergency) {
		source = queue.SourceEmergency
	}

	var technologies []string
	switch {
	case strings.TrimSpace(req.Technology) != "":
		technologies = []string{strings.TrimSpace(req.Technology)}
	case strings.TrimSpace(req.Prompt) != "":
		technologies = s.classifier.Classify(req.Prompt)
		if len(technologies) == 0 {
			writeError(w, http.StatusBadRequest, "no technologies recognized in prompt")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "technology or prompt is required")
		return
	}

	if !s.limiter.allow(lane, time.Now().UTC()) {
		writeError(w, http.StatusTooManyRequests, "submit rate limit exceeded")
		return
	}

	jobs := make([]rulesapi.SubmittedJob, 0, len(technologies))
	for _, tech := range technologies {
		job := queue.Job{
			RuleType:      orchestrator.RuleTypeFor(tech),
			Technology:    tech,
			Lane:          queue.Lane(lane),
			TriggerSource: source,
			PriorityHint:  req.Priority,
			Prompt:        req.Prompt,
		}
		id, err := s.queue.Enqueue(job)
		if err != nil {
			writeError(w, statusForQueueErr(err), err.Error())
			return
		}
		jobs = append(jobs, rulesapi.SubmittedJob{
			JobID:      id,
			RuleType:   job.RuleType,
			Technology: tech,
			Lane:       lane,
		})
	}
	observability.Default.IncCounter("api_jobs_submitted_total", map[string]string{"lane": lane}, float64(len(jobs)))
	writeJSON(w, http.StatusAccepted, rulesapi.SubmitJobResponse{Accepted: true, Jobs: jobs})
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	out := rulesapi.QueueStatsResponse{Lanes: make(map[string]rulesapi.LaneStats, 3)}
	for _, lane := range queue.Lanes() {
		st, err := s.queue.Stats(lane)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out.Lanes[string(lane)] = rulesapi.LaneStats{
			Queued:    st.Queued,
			Active:    st.Active,
			Succeeded: st.Succeeded,
			Failed:    st.Failed,
			Dead:      st.Dead,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleQueueSubresource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/queues/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		writeError(w, http.StatusNotFound, "queue subresource not found")
		return
	}
	lane := queue.Lane(parts[0])
	switch parts[1] {
	case "dead":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		dead, err := s.queue.DeadLetters(lane)
		if err != nil {
			writeError(w, statusForQueueErr(err), err.Error())
			return
		}
		out := make([]rulesapi.DeadJob, 0, len(dead))
		for _, j := range dead {
			out = append(out, rulesapi.DeadJob{
				JobID:     j.ID,
				RuleType:  j.RuleType,
				Lane:      string(j.Lane),
				Attempts:  j.Attempt,
				LastError: j.LastError,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"lane": string(lane), "jobs": out})
	case "retry-dead":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		n, err := s.queue.RetryDeadLettered(lane)
		if err != nil {
			writeError(w, statusForQueueErr(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, rulesapi.RetryDeadResponse{Requeued: n})
	default:
		writeError(w, http.StatusNotFound, "queue subresource not found")
	}
}

func (s *Server) handleTriggers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	triggers := s.sched.Snapshot()
	out := make([]rulesapi.TriggerInfo, 0, len(triggers))
	for _, t := range triggers {
		info := rulesapi.TriggerInfo{
			Name:       t.Name,
			Schedule:   t.Schedule,
			Enabled:    t.Enabled,
			Firing:     t.Firing,
			RunCount:   t.RunCount,
			ErrorCount: t.ErrorCount,
			Skipped:    t.Skipped,
		}
		if !t.LastRun.IsZero() {
			info.LastRun = t.LastRun.Format(time.RFC3339)
		}
		if !t.NextRun.IsZero() {
			info.NextRun = t.NextRun.Format(time.RFC3339)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, rulesapi.ListTriggersResponse{Triggers: out})
}

func (s *Server) handleTriggerAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/triggers/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "trigger action not found")
		return
	}
	name, action := parts[0], parts[1]
	var err error
	switch action {
	case "enable":
		err = s.sched.Enable(name)
	case "disable":
		err = s.sched.Disable(name)
	case "fire":
		err = s.sched.Trigger(r.Context(), name)
	default:
		writeError(w, http.StatusNotFound, "trigger action not found")
		return
	}
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, rulesapi.TriggerActionResponse{Accepted: true})
	case errors.Is(err, sched.ErrUnknownTrigger):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sched.ErrAlreadyFiring):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	now := time.Now().UTC()
	snaps := s.scorer.Snapshot()
	out := make([]rulesapi.TrendInfo, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, rulesapi.TrendInfo{
			Technology: snap.Technology,
			Score:      snap.Score,
			Breaking:   snap.Breaking,
			Sources:    snap.Sources,
			ComputedAt: snap.ComputedAt.Format(time.RFC3339),
			Fresh:      snap.Fresh(now),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Technology < out[j].Technology })
	writeJSON(w, http.StatusOK, rulesapi.ListTrendsResponse{Trends: out})
}

func (s *Server) handleTrendInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/trends/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "invalidate" {
		writeError(w, http.StatusNotFound, "trend action not found")
		return
	}
	s.scorer.Invalidate(parts[0])
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": true})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req rulesapi.CleanupRequest
	if r.Body != nil {
		// Body is optional; the configured retention applies by default.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	retention := s.cfg.Retention()
	if req.RetentionDays > 0 {
		retention = time.Duration(req.RetentionDays) * 24 * time.Hour
	}
	removed, err := s.store.CleanupOlderThan(r.Context(), retention)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rulesapi.CleanupResponse{Removed: removed})
}

func (s *Server) handleArtifactSubresource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/artifacts/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "artifact subresource not found")
		return
	}
	ruleType, sub := parts[0], parts[1]
	switch sub {
	case "history":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.writeHistory(w, r, ruleType)
	case "rollback":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req rulesapi.RollbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Version) == "" {
			writeError(w, http.StatusBadRequest, "version is required")
			return
		}
		artifact, err := s.store.Rollback(r.Context(), ruleType, req.Version)
		if err != nil {
			if errors.Is(err, store.ErrVersionNotFound) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		observability.Default.IncCounter("api_rollbacks_total", map[string]string{"rule_type": ruleType}, 1)
		writeJSON(w, http.StatusOK, rulesapi.RollbackResponse{
			RuleType: ruleType,
			Version:  artifact.Version,
			Checksum: artifact.Checksum,
		})
	default:
		writeError(w, http.StatusNotFound, "artifact subresource not found")
	}
}

func (s *Server) writeHistory(w http.ResponseWriter, r *http.Request, ruleType string) {
	versions := make([]rulesapi.ArtifactVersion, 0, 8)
	active, ok, err := s.store.Active(r.Context(), ruleType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ok {
		versions = append(versions, rulesapi.ArtifactVersion{
			Version:  active.Version,
			Active:   true,
			Checksum: active.Checksum,
		})
	}
	entries, err := s.store.History(r.Context(), ruleType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, e := range entries {
		versions = append(versions, rulesapi.ArtifactVersion{
			Version:    e.Version,
			ArchivedAt: e.ArchivedAt.Format(time.RFC3339),
			Reason:     e.Reason,
		})
	}
	if !ok && len(entries) == 0 {
		writeError(w, http.StatusNotFound, "rule type not found")
		return
	}
	writeJSON(w, http.StatusOK, rulesapi.HistoryResponse{RuleType: ruleType, Versions: versions})
}

func statusForQueueErr(err error) int {
	switch {
	case errors.Is(err, queue.ErrUnknownLane):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrLaneFull):
		return http.StatusTooManyRequests
	case errors.Is(err, queue.ErrQueueClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func withTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := observability.StartSpan(r.Context(), "http.request",
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		)
		defer span.End()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		traceID := span.SpanContext().TraceID().String()
		if traceID != "" {
			sw.Header().Set("X-Trace-ID", traceID)
		}
		next.ServeHTTP(sw, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", sw.status))
	})
}
