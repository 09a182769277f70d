package logic

import "math"

// Threshold defaults. The margin works out to roughly +10% RH at a 10%
// baseline, +5% at 40% and +3.5% at 80%.
const (
	DefaultTriggerCeiling = 85.0
	DefaultTriggerMargin  = 10.0
	DefaultTriggerScale   = 0.1
)

// ThresholdPolicy maps a baseline humidity to the level the short-term
// average must exceed to switch the fan on.
type ThresholdPolicy struct {
	Ceiling  float64 // trigger level never exceeds this
	Margin   float64 // numerator of the margin term
	Scale    float64 // baseline multiplier under the square root
	Fallback float64 // returned when the margin term is undefined
}

// DefaultThresholdPolicy returns the policy min(85, b + 10/sqrt(b*0.1)).
func DefaultThresholdPolicy() ThresholdPolicy {
	return ThresholdPolicy{
		Ceiling:  DefaultTriggerCeiling,
		Margin:   DefaultTriggerMargin,
		Scale:    DefaultTriggerScale,
		Fallback: DefaultTriggerCeiling,
	}
}

// TriggerLevel returns the dynamic trigger level for baseline.
// Baselines that make the margin undefined (<= 0, NaN) return Fallback.
func (p ThresholdPolicy) TriggerLevel(baseline float64) float64 {
	x := baseline * p.Scale
	if !(baseline > 0) || !(x > 0) {
		return p.Fallback
	}
	return math.Min(p.Ceiling, baseline+p.Margin/math.Sqrt(x))
}
