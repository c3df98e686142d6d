package classify

import (
	"reflect"
	"testing"
)

func TestClassifyDetectsTechnologiesByPriority(t *testing.T) {
	c, err := New(DefaultPatterns())
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	tests := []struct {
		text string
		want []string
	}{
		{"help me write a Python decorator", []string{"python"}},
		{"dockerfile for a node.js app", []string{"javascript", "docker"}},
		{"rebase my branch and fix the merge", []string{"git"}},
		{"React hooks with TypeScript", []string{"javascript", "react"}},
		{"what is the weather like", nil},
	}
	for _, tt := range tests {
		got := c.Classify(tt.text)
		if len(got) == 0 {
			got = nil
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("Classify(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestClassifyReportsEachTechnologyOnce(t *testing.T) {
	c, err := New(DefaultPatterns())
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	got := c.Classify("python python pip django .py")
	if !reflect.DeepEqual(got, []string{"python"}) {
		t.Fatalf("Classify = %v, want single python", got)
	}
}

func TestNewRejectsBadPattern(t *testing.T) {
	_, err := New([]Pattern{{Technology: "broken", Patterns: []string{"("}}})
	if err == nil {
		t.Fatalf("expected compile error")
	}
}
