package trends

import (
	"testing"

	"pgregory.net/rapid"
)

// For any combination of available sub-signals, the score stays within
// [0,1] and setting the breaking flag never lowers it.
func TestScoreBoundsAndBreakingMonotonicity(t *testing.T) {
	opts := defaultOptions()
	rapid.Check(t, func(rt *rapid.T) {
		sig := Signal{
			Volume:        rapid.Float64Range(0, 50000).Draw(rt, "volume"),
			Discussion:    rapid.Float64Range(0, 25000).Draw(rt, "discussion"),
			Growth:        rapid.Float64Range(-1, 2).Draw(rt, "growth"),
			HasVolume:     rapid.Bool().Draw(rt, "hasVolume"),
			HasDiscussion: rapid.Bool().Draw(rt, "hasDiscussion"),
			HasGrowth:     rapid.Bool().Draw(rt, "hasGrowth"),
		}
		plain := scoreSignal(sig, opts)
		if plain < 0 || plain > 1 {
			rt.Fatalf("score %v out of [0,1] for %+v", plain, sig)
		}
		sig.BreakingFlag = true
		boosted := scoreSignal(sig, opts)
		if boosted < plain {
			rt.Fatalf("breaking flag lowered score: %v -> %v for %+v", plain, boosted, sig)
		}
	})
}

// Merging is order-independent for the breaking flag and keeps the
// maximum of each available sub-signal.
func TestMergeSignalsKeepsMaxima(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 5).Draw(rt, "n")
		signals := make([]Signal, 0, n)
		maxVolume := 0.0
		anyVolume := false
		anyBreaking := false
		for i := 0; i < n; i++ {
			sig := Signal{
				Volume:       rapid.Float64Range(0, 1000).Draw(rt, "volume"),
				HasVolume:    rapid.Bool().Draw(rt, "hasVolume"),
				BreakingFlag: rapid.Bool().Draw(rt, "breaking"),
			}
			if sig.HasVolume && (!anyVolume || sig.Volume > maxVolume) {
				maxVolume = sig.Volume
				anyVolume = true
			}
			anyBreaking = anyBreaking || sig.BreakingFlag
			signals = append(signals, sig)
		}
		merged, _ := mergeSignals(signals)
		if merged.HasVolume != anyVolume {
			rt.Fatalf("volume availability mismatch: %+v", merged)
		}
		if anyVolume && merged.Volume != maxVolume {
			rt.Fatalf("merged volume %v, want max %v", merged.Volume, maxVolume)
		}
		if merged.BreakingFlag != anyBreaking {
			rt.Fatalf("breaking flag mismatch: %+v", merged)
		}
	})
}
