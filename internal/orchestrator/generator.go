package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/TomasWolaschka/ai-rules/internal/trends"
)

// CommandGenerator shells out to an external generation CLI. The prompt
// is written to stdin and the produced document is read from stdout.
type CommandGenerator struct {
	Command string
	Args    []string
}

func (g CommandGenerator) Generate(ctx context.Context, technology string, snapshot trends.TrendSnapshot, extra map[string]string) (string, error) {
	prompt := buildPrompt(technology, snapshot, extra)
	cmd := exec.CommandContext(ctx, g.Command, g.Args...)
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("generator %s: %w (%s)", g.Command, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func buildPrompt(technology string, snapshot trends.TrendSnapshot, extra map[string]string) string {
	var b strings.Builder
	year := extra["year"]
	fmt.Fprintf(&b, "Generate comprehensive %s best practices and coding rules for %s.\n\n", technology, year)
	fmt.Fprintf(&b, "Current trend score: %.2f\n", snapshot.Score)
	if snapshot.Breaking {
		b.WriteString("Breaking changes were detected in this technology. Prioritize migration guidance.\n")
	}
	if len(snapshot.Sources) > 0 {
		fmt.Fprintf(&b, "Signals considered: %s\n", strings.Join(snapshot.Sources, ", "))
	}
	if p := extra["prompt"]; p != "" {
		b.WriteString("\n")
		b.WriteString(p)
		b.WriteString("\n")
	}
	b.WriteString("\nProduce a complete Markdown document with concrete, current recommendations.\n")
	return b.String()
}
