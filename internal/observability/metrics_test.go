package observability

import (
	"strings"
	"testing"
)

func TestRenderPrometheus(t *testing.T) {
	r := NewRegistry()
	r.IncCounter("jobs_dispatched_total", map[string]string{"lane": "generation", "worker": "gen-1"}, 3)
	r.SetGauge("dead_letter_count", map[string]string{"lane": "generation"}, 2)

	out := r.RenderPrometheus()
	if !strings.Contains(out, `jobs_dispatched_total{lane="generation",worker="gen-1"} 3`) {
		t.Fatalf("missing dispatched metric in output: %s", out)
	}
	if !strings.Contains(out, `dead_letter_count{lane="generation"} 2`) {
		t.Fatalf("missing dead-letter gauge in output: %s", out)
	}
}
