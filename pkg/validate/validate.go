// Package validate checks computed maps before they are persisted. Checks
// run in a fixed order and collect typed issues instead of stopping at the
// first problem, so callers can decide to save with warnings.
package validate

import (
	"fmt"
	"math"

	"github.com/tosih/fuelcalc/pkg/models"
)

// Code classifies one validation issue
type Code string

const (
	CodeShape            Code = "shape"
	CodeRange            Code = "range"
	CodeGradient         Code = "gradient"
	CodeAxisEnabled      Code = "axis_enabled"
	CodeConfigDivergence Code = "config_divergence"
)

// Severity splits hard failures from save-with-warning findings
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

// Issue is one typed validation finding. Row/Col are -1 when the issue is
// not tied to a single cell.
type Issue struct {
	Code     Code
	Severity Severity
	Row      int
	Col      int
	Message  string
}

func (i Issue) String() string {
	if i.Row >= 0 {
		return fmt.Sprintf("[%s] cell [%d,%d]: %s", i.Code, i.Row, i.Col, i.Message)
	}
	return fmt.Sprintf("[%s] %s", i.Code, i.Message)
}

// HasErrors reports whether any issue in the list is a hard error
func HasErrors(issues []Issue) bool {
	for _, is := range issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}

// DefaultSmoothness is the default adjacent-cell gradient limit, as a
// fraction of the map type's value range.
const DefaultSmoothness = 0.25

// CheckMap validates a map against its type configuration: matrix shape,
// value range, adjacent-cell gradients, and enabled counts, in that order.
// smoothness limits the allowed step between adjacent cells as a fraction of
// the [min,max] range; pass 0 for DefaultSmoothness.
func CheckMap(m *models.FuelMap, cfg models.MapTypeConfig, smoothness float64) []Issue {
	if smoothness <= 0 {
		smoothness = DefaultSmoothness
	}
	maxStep := smoothness * (cfg.MaxValue - cfg.MinValue)

	var issues []Issue
	issues = append(issues, checkShape(m)...)
	if len(issues) > 0 {
		// Range and gradient walks assume a well-shaped matrix
		issues = append(issues, checkEnabled(m)...)
		return issues
	}
	issues = append(issues, checkRange(m, cfg)...)
	issues = append(issues, checkGradient(m, maxStep)...)
	issues = append(issues, checkEnabled(m)...)
	return issues
}

func checkShape(m *models.FuelMap) []Issue {
	var issues []Issue
	bad := func(msg string, args ...interface{}) {
		issues = append(issues, Issue{Code: CodeShape, Severity: SeverityError, Row: -1, Col: -1,
			Message: fmt.Sprintf(msg, args...)})
	}

	if m.Dimension == models.Dim1D {
		if len(m.Line) != m.MapAxis.Len() {
			bad("line has %d values for %d map axis positions", len(m.Line), m.MapAxis.Len())
		}
		return issues
	}

	if len(m.Matrix) != m.MapAxis.Len() {
		bad("matrix has %d rows for %d map axis positions", len(m.Matrix), m.MapAxis.Len())
		return issues
	}
	for i, row := range m.Matrix {
		if len(row) != m.RPMAxis.Len() {
			bad("matrix row %d has %d columns for %d rpm axis positions", i, len(row), m.RPMAxis.Len())
			return issues
		}
	}
	return issues
}

func checkRange(m *models.FuelMap, cfg models.MapTypeConfig) []Issue {
	var issues []Issue
	check := func(v float64, row, col int) {
		if v < cfg.MinValue || v > cfg.MaxValue {
			issues = append(issues, Issue{Code: CodeRange, Severity: SeverityError, Row: row, Col: col,
				Message: fmt.Sprintf("%.3f %s outside [%g, %g]", v, cfg.Unit, cfg.MinValue, cfg.MaxValue)})
		}
	}

	if m.Dimension == models.Dim1D {
		for i, v := range m.Line {
			check(v, i, -1)
		}
		return issues
	}
	for i, row := range m.Matrix {
		for j, v := range row {
			check(v, i, j)
		}
	}
	return issues
}

// checkGradient walks adjacent enabled cells along both axes. Disabled
// positions are skipped: their values are stale by design.
func checkGradient(m *models.FuelMap, maxStep float64) []Issue {
	var issues []Issue
	report := func(row, col int, delta float64) {
		issues = append(issues, Issue{Code: CodeGradient, Severity: SeverityWarning, Row: row, Col: col,
			Message: fmt.Sprintf("step of %.3f to previous cell exceeds smoothness limit %.3f", delta, maxStep)})
	}

	if m.Dimension == models.Dim1D {
		prev := -1
		for _, i := range activeIndices(m.MapAxis) {
			if prev >= 0 {
				if d := math.Abs(m.Line[i] - m.Line[prev]); d > maxStep {
					report(i, -1, d)
				}
			}
			prev = i
		}
		return issues
	}

	mapIdx := activeIndices(m.MapAxis)
	rpmIdx := activeIndices(m.RPMAxis)

	for _, j := range rpmIdx {
		prev := -1
		for _, i := range mapIdx {
			if prev >= 0 {
				if d := math.Abs(m.Matrix[i][j] - m.Matrix[prev][j]); d > maxStep {
					report(i, j, d)
				}
			}
			prev = i
		}
	}
	for _, i := range mapIdx {
		prev := -1
		for _, j := range rpmIdx {
			if prev >= 0 {
				if d := math.Abs(m.Matrix[i][j] - m.Matrix[i][prev]); d > maxStep {
					report(i, j, d)
				}
			}
			prev = j
		}
	}
	return issues
}

func checkEnabled(m *models.FuelMap) []Issue {
	var issues []Issue
	check := func(a models.AxisDefinition) {
		if a.Len() > 0 && a.EnabledCount() < 2 {
			issues = append(issues, Issue{Code: CodeAxisEnabled, Severity: SeverityError, Row: -1, Col: -1,
				Message: fmt.Sprintf("%s axis has %d enabled positions, need at least 2", a.Kind, a.EnabledCount())})
		}
	}
	check(m.MapAxis)
	if m.Dimension == models.Dim2D {
		check(m.RPMAxis)
	}
	return issues
}

func activeIndices(a models.AxisDefinition) []int {
	out := make([]int, 0, a.Len())
	for i := range a.Values {
		if i < len(a.Enabled) && a.Enabled[i] {
			out = append(out, i)
		}
	}
	return out
}

// DivergenceIssues converts map-type configuration divergences into
// warnings so they surface with the rest of a map's findings.
func DivergenceIssues(divs []models.ConfigDivergence) []Issue {
	issues := make([]Issue, 0, len(divs))
	for _, d := range divs {
		issues = append(issues, Issue{Code: CodeConfigDivergence, Severity: SeverityWarning, Row: -1, Col: -1,
			Message: d.String()})
	}
	return issues
}
