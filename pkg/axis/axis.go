// Package axis manipulates calibration axis breakpoints and their enabled
// masks. Axes keep disabled positions in place so the rest of the system can
// address cells by fixed index across resizes.
package axis

import (
	"errors"
	"fmt"

	"github.com/tosih/fuelcalc/pkg/models"
)

// ErrTooFewEnabled is returned when an operation needs at least two enabled
// positions and the axis has fewer.
var ErrTooFewEnabled = errors.New("axis: fewer than 2 enabled positions")

// ErrShapeMismatch is returned when values and enabled mask lengths differ
var ErrShapeMismatch = errors.New("axis: values and enabled mask lengths differ")

// fallbackStep is used when an axis has fewer than two values and no step
// can be extrapolated.
const fallbackStep = 1.0

// Check verifies the structural invariants of an axis
func Check(a models.AxisDefinition) error {
	if len(a.Values) != len(a.Enabled) {
		return fmt.Errorf("%w: %d values, %d mask entries", ErrShapeMismatch, len(a.Values), len(a.Enabled))
	}
	for i := 1; i < len(a.Values); i++ {
		if a.Values[i] <= a.Values[i-1] {
			return fmt.Errorf("axis: values not strictly ascending at position %d (%.4f after %.4f)",
				i, a.Values[i], a.Values[i-1])
		}
	}
	return nil
}

// EnsureInterpolable verifies the axis can feed an interpolation
func EnsureInterpolable(a models.AxisDefinition) error {
	if err := Check(a); err != nil {
		return err
	}
	if a.EnabledCount() < 2 {
		return fmt.Errorf("%w: %s axis has %d", ErrTooFewEnabled, a.Kind, a.EnabledCount())
	}
	return nil
}

// ActiveValues returns only the enabled values, preserving order
func ActiveValues(a models.AxisDefinition) []float64 {
	out := make([]float64, 0, len(a.Values))
	for i, v := range a.Values {
		if i < len(a.Enabled) && a.Enabled[i] {
			out = append(out, v)
		}
	}
	return out
}

// ActiveIndices returns the positions of the enabled values
func ActiveIndices(a models.AxisDefinition) []int {
	out := make([]int, 0, len(a.Values))
	for i := range a.Values {
		if i < len(a.Enabled) && a.Enabled[i] {
			out = append(out, i)
		}
	}
	return out
}

// Resize grows or truncates an axis to newCount positions. Grown value slots
// extrapolate the last step; grown mask slots start disabled. Never fails:
// with fewer than two existing values a unit step is used, and newCount is
// clamped to [1, MaxGridSize].
func Resize(a models.AxisDefinition, newCount int) models.AxisDefinition {
	if newCount < 1 {
		newCount = 1
	}
	if newCount > models.MaxGridSize {
		newCount = models.MaxGridSize
	}

	out := a.Clone()
	if newCount <= len(out.Values) {
		out.Values = out.Values[:newCount]
		out.Enabled = out.Enabled[:newCount]
		return out
	}

	step := fallbackStep
	if n := len(out.Values); n >= 2 {
		step = out.Values[n-1] - out.Values[n-2]
	}
	last := 0.0
	if n := len(out.Values); n > 0 {
		last = out.Values[n-1]
	}

	for len(out.Values) < newCount {
		last += step
		out.Values = append(out.Values, last)
		out.Enabled = append(out.Enabled, false)
	}
	return out
}

// Median returns the median of the enabled values. Requires two enabled
// positions so the result is usable as an interpolation reference.
func Median(a models.AxisDefinition) (float64, error) {
	if err := EnsureInterpolable(a); err != nil {
		return 0, err
	}
	active := ActiveValues(a)
	mid := len(active) / 2
	if len(active)%2 == 0 {
		return (active[mid-1] + active[mid]) / 2, nil
	}
	return active[mid], nil
}
