package cli

import (
	"testing"

	"github.com/shrimbly/easy-peasy-ease/internal/easing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEasingSelection(t *testing.T) {
	t.Run("EmptyFlagsLeaveAdaptiveChoice", func(t *testing.T) {
		sel, err := easingSelection("", "")
		require.NoError(t, err)
		assert.False(t, sel.IsExplicit())
	})

	t.Run("PresetName", func(t *testing.T) {
		sel, err := easingSelection(easing.CubicInOut, "")
		require.NoError(t, err)
		assert.Equal(t, easing.CubicInOut, sel.Preset)
	})

	t.Run("BezierWinsOverPreset", func(t *testing.T) {
		sel, err := easingSelection(easing.Linear, "0.42, 0, 0.58, 1")
		require.NoError(t, err)
		require.NotNil(t, sel.Bezier)
		assert.Equal(t, 0.42, sel.Bezier.X1)
		assert.Equal(t, 1.0, sel.Bezier.Y2)
	})

	t.Run("MalformedBezierRejected", func(t *testing.T) {
		_, err := easingSelection("", "0.42,0,0.58")
		assert.Error(t, err)
		_, err = easingSelection("", "a,b,c,d")
		assert.Error(t, err)
	})
}
