package classify

import (
	"fmt"
	"regexp"
	"sort"
)

// Func maps free text to the set of technologies it mentions. The
// orchestration engine treats classification as a swappable input to
// job creation, not as part of the engine itself.
type Func func(text string) []string

type Pattern struct {
	Technology string
	Priority   int
	Patterns   []string
}

type rule struct {
	technology string
	priority   int
	patterns   []*regexp.Regexp
}

type Classifier struct {
	rules []rule
}

// New compiles the configured patterns. Matching is case-insensitive;
// each technology is reported at most once, ordered by priority then
// name.
func New(patterns []Pattern) (*Classifier, error) {
	rules := make([]rule, 0, len(patterns))
	for _, p := range patterns {
		compiled := make([]*regexp.Regexp, 0, len(p.Patterns))
		for _, raw := range p.Patterns {
			re, err := regexp.Compile("(?i)" + raw)
			if err != nil {
				return nil, fmt.Errorf("compile pattern %q for %s: %w", raw, p.Technology, err)
			}
			compiled = append(compiled, re)
		}
		rules = append(rules, rule{technology: p.Technology, priority: p.Priority, patterns: compiled})
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].priority != rules[j].priority {
			return rules[i].priority < rules[j].priority
		}
		return rules[i].technology < rules[j].technology
	})
	return &Classifier{rules: rules}, nil
}

func (c *Classifier) Classify(text string) []string {
	out := make([]string, 0, 2)
	seen := map[string]bool{}
	for _, r := range c.rules {
		if seen[r.technology] {
			continue
		}
		for _, re := range r.patterns {
			if re.MatchString(text) {
				out = append(out, r.technology)
				seen[r.technology] = true
				break
			}
		}
	}
	return out
}

// DefaultPatterns covers the stock technology set.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Technology: "python", Priority: 1, Patterns: []string{`\bpython\b`, `\bdjango\b`, `\bflask\b`, `\bpip\b`, `\.py\b`}},
		{Technology: "javascript", Priority: 1, Patterns: []string{`\bjavascript\b`, `\bnode(\.js)?\b`, `\btypescript\b`, `\bnpm\b`, `\.js\b`}},
		{Technology: "java", Priority: 2, Patterns: []string{`\bjava\b`, `\bspring\b`, `\bmaven\b`, `\bgradle\b`}},
		{Technology: "react", Priority: 2, Patterns: []string{`\breact\b`, `\bjsx\b`, `\bnext\.js\b`, `\bhooks?\b`}},
		{Technology: "git", Priority: 3, Patterns: []string{`\bgit\b`, `\bbranch\b`, `\bmerge\b`, `\brebase\b`, `\bcommit\b`}},
		{Technology: "docker", Priority: 3, Patterns: []string{`\bdocker\b`, `\bcontainer\b`, `\bdockerfile\b`, `\bcompose\b`}},
	}
}
