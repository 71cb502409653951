// Package easing provides the pure [0,1] -> [0,1] curves that drive the
// speed-curve resampler: named presets plus cubic-Bezier construction.
package easing

import (
	"fmt"
	"math"

	"github.com/shrimbly/easy-peasy-ease/pkg/models"
)

// Func maps normalized output progress to normalized source progress.
// Implementations are deterministic and pure.
type Func func(t float64) float64

// Preset names.
const (
	Linear          = "linear"
	SineInOut       = "ease-in-out-sine"
	QuadInOut       = "ease-in-out-quad"
	CubicInOut      = "ease-in-out-cubic"
	ExpoInCubicOut  = "ease-in-expo-out-cubic"
)

// Presets returns the named closed-form curves.
func Presets() map[string]Func {
	return map[string]Func{
		Linear:         linear,
		SineInOut:      sineInOut,
		QuadInOut:      quadInOut,
		CubicInOut:     cubicInOut,
		ExpoInCubicOut: expoInCubicOut,
	}
}

// Resolve turns an easing selection into a curve. An empty selection yields
// the default sine curve; unknown preset names are an error.
func Resolve(sel models.EasingSelection) (Func, error) {
	if sel.Bezier != nil {
		b := sel.Bezier
		return Bezier(b.X1, b.Y1, b.X2, b.Y2), nil
	}
	name := sel.Preset
	if name == "" {
		name = SineInOut
	}
	fn, ok := Presets()[name]
	if !ok {
		return nil, fmt.Errorf("unknown easing preset %q", name)
	}
	return fn, nil
}

func linear(t float64) float64 {
	return clamp01(t)
}

func sineInOut(t float64) float64 {
	t = clamp01(t)
	return -(math.Cos(math.Pi*t) - 1) / 2
}

func quadInOut(t float64) float64 {
	t = clamp01(t)
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - math.Pow(-2*t+2, 2)/2
}

func cubicInOut(t float64) float64 {
	t = clamp01(t)
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// expoInCubicOut is the hybrid curve: an exponential ease-in for the first
// half and a cubic ease-out for the second. Endpoints are pinned exactly
// because the exponential half does not pass through zero on its own.
func expoInCubicOut(t float64) float64 {
	t = clamp01(t)
	if t == 0 {
		return 0
	}
	if t == 1 {
		return 1
	}
	if t < 0.5 {
		return math.Pow(2, 20*t-10) / 2
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
