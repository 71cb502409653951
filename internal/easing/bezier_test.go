package easing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBezier(t *testing.T) {
	t.Run("EndpointsExact", func(t *testing.T) {
		curves := [][4]float64{
			{0.25, 0.1, 0.25, 1},
			{0.42, 0, 0.58, 1},
			{0, 0, 1, 1},
			{0.5, -2, 0.5, 3}, // y controls may overshoot
		}
		for _, c := range curves {
			fn := Bezier(c[0], c[1], c[2], c[3])
			assert.Equal(t, 0.0, fn(0))
			assert.Equal(t, 1.0, fn(1))
		}
	})

	t.Run("LinearControlsAreIdentity", func(t *testing.T) {
		fn := Bezier(0.25, 0.25, 0.75, 0.75)
		for i := 0; i <= 100; i++ {
			tt := float64(i) / 100
			assert.InDelta(t, tt, fn(tt), 1e-4)
		}
	})

	t.Run("OutputAlwaysInRange", func(t *testing.T) {
		curves := [][4]float64{
			{0.25, 0.1, 0.25, 1},
			{0.42, 0, 0.58, 1},
			{0.5, -2, 0.5, 3},
			{1, 0, 0, 1},
			{0, 1, 1, 0},
		}
		for _, c := range curves {
			fn := Bezier(c[0], c[1], c[2], c[3])
			for i := 0; i <= 1000; i++ {
				v := fn(float64(i) / 1000)
				assert.False(t, math.IsNaN(v))
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
		}
	})

	t.Run("DegenerateControlsDoNotHang", func(t *testing.T) {
		// x1 == x2 collapses the x cubic toward a flat spot. The solver must
		// stay bounded and produce something sane.
		fn := Bezier(0.5, 0, 0.5, 1)
		for i := 0; i <= 1000; i++ {
			v := fn(float64(i) / 1000)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	})

	t.Run("EaseShapeMatchesReference", func(t *testing.T) {
		// CSS "ease" is cubic-bezier(0.25, 0.1, 0.25, 1); a few reference
		// points sampled from a browser implementation.
		fn := Bezier(0.25, 0.1, 0.25, 1)
		assert.InDelta(t, 0.0974, fn(0.1), 0.01)
		assert.InDelta(t, 0.8024, fn(0.5), 0.01)
		assert.InDelta(t, 0.9874, fn(0.9), 0.01)
	})
}
