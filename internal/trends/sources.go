package trends

import (
	"context"
	"errors"
	"fmt"
)

// ErrSignalUnavailable marks a source outage. The scorer skips the
// source and renormalizes over whatever signals remain.
var ErrSignalUnavailable = errors.New("signal unavailable")

// Signal is one source's view of a technology. The Has* flags say which
// sub-signals the source actually reports; absent sub-signals carry no
// weight in the score.
type Signal struct {
	Technology   string  `json:"technology"`
	Volume       float64 `json:"volume"`
	Discussion   float64 `json:"discussion"`
	Growth       float64 `json:"growth"`
	BreakingFlag bool    `json:"breaking_flag"`

	HasVolume     bool `json:"has_volume"`
	HasDiscussion bool `json:"has_discussion"`
	HasGrowth     bool `json:"has_growth"`
}

type Source interface {
	Name() string
	Fetch(ctx context.Context, technology string) (Signal, error)
}

// StaticSource serves config-declared baseline signals. Real research
// sources are external collaborators plugged in at bootstrap.
type StaticSource struct {
	name    string
	signals map[string]Signal
}

func NewStaticSource(name string, signals map[string]Signal) *StaticSource {
	copied := make(map[string]Signal, len(signals))
	for tech, sig := range signals {
		sig.Technology = tech
		copied[tech] = sig
	}
	return &StaticSource{name: name, signals: copied}
}

func (s *StaticSource) Name() string { return s.name }

func (s *StaticSource) Fetch(ctx context.Context, technology string) (Signal, error) {
	if err := ctx.Err(); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrSignalUnavailable, err)
	}
	sig, ok := s.signals[technology]
	if !ok {
		return Signal{}, fmt.Errorf("%w: %s has no baseline signal", ErrSignalUnavailable, technology)
	}
	return sig, nil
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc struct {
	SourceName string
	Func       func(ctx context.Context, technology string) (Signal, error)
}

func (s SourceFunc) Name() string { return s.SourceName }

func (s SourceFunc) Fetch(ctx context.Context, technology string) (Signal, error) {
	return s.Func(ctx, technology)
}
