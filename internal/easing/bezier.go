package easing

import "math"

const (
	newtonIterations    = 8
	bisectionIterations = 32
	solveEpsilon        = 1e-7
)

// Bezier builds an easing function from the four control points of a cubic
// Bezier, CSS cubic-bezier style: the curve runs from (0,0) to (1,1) with
// control points (x1,y1) and (x2,y2). Evaluating at t means finding the
// Bezier parameter whose x-coordinate equals t and returning the matching y.
// x is not linear in the parameter, so the root is found with Newton's
// method, falling back to bisection, falling back to linear interpolation
// when the controls are too degenerate to converge. Endpoints hold exactly
// and the output is clamped to [0,1] regardless of control points.
func Bezier(x1, y1, x2, y2 float64) Func {
	return func(t float64) float64 {
		t = clamp01(t)
		if t == 0 {
			return 0
		}
		if t == 1 {
			return 1
		}
		u, ok := solveForX(t, x1, x2)
		if !ok {
			// Degenerate controls: behave as linear rather than looping.
			return t
		}
		return clamp01(sampleCurve(u, y1, y2))
	}
}

// sampleCurve evaluates one axis of the cubic at parameter u, with implicit
// endpoints 0 and 1.
func sampleCurve(u, p1, p2 float64) float64 {
	// Horner form of 3(1-u)^2*u*p1 + 3(1-u)*u^2*p2 + u^3.
	c := 3 * p1
	b := 3*(p2-p1) - c
	a := 1 - c - b
	return ((a*u+b)*u + c) * u
}

func sampleDerivative(u, p1, p2 float64) float64 {
	c := 3 * p1
	b := 3*(p2-p1) - c
	a := 1 - c - b
	return (3*a*u+2*b)*u + c
}

// solveForX finds u in [0,1] with curveX(u) == x. Iteration counts are
// bounded; a false return means no convergence.
func solveForX(x, x1, x2 float64) (float64, bool) {
	// Newton's method from a linear guess.
	u := x
	for i := 0; i < newtonIterations; i++ {
		diff := sampleCurve(u, x1, x2) - x
		if math.Abs(diff) < solveEpsilon {
			return clamp01(u), true
		}
		d := sampleDerivative(u, x1, x2)
		if math.Abs(d) < 1e-6 {
			break
		}
		u -= diff / d
		u = clamp01(u)
	}

	// Bisection: curveX is monotonic on [0,1] for x controls inside [0,1].
	lo, hi := 0.0, 1.0
	u = x
	for i := 0; i < bisectionIterations; i++ {
		val := sampleCurve(u, x1, x2)
		if math.Abs(val-x) < solveEpsilon {
			return u, true
		}
		if val < x {
			lo = u
		} else {
			hi = u
		}
		u = (lo + hi) / 2
	}

	diff := math.Abs(sampleCurve(u, x1, x2) - x)
	if diff < 1e-3 {
		// Close enough for frame selection purposes.
		return u, true
	}
	return 0, false
}
