package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tosih/fuelcalc/pkg/axis"
	"github.com/tosih/fuelcalc/pkg/models"
)

// Clipboard renders a map in the tab-delimited exchange format: two-decimal
// values, row-major, no header. 1D maps emit one row per active MAP
// position; 2D maps emit one row per active rpm position with one column
// per active MAP position.
func Clipboard(m *models.FuelMap) string {
	var b strings.Builder

	if m.Dimension == models.Dim1D {
		for _, i := range axis.ActiveIndices(m.MapAxis) {
			fmt.Fprintf(&b, "%.2f\n", m.Line[i])
		}
		return b.String()
	}

	mapIdx := axis.ActiveIndices(m.MapAxis)
	for _, j := range axis.ActiveIndices(m.RPMAxis) {
		cells := make([]string, 0, len(mapIdx))
		for _, i := range mapIdx {
			cells = append(cells, fmt.Sprintf("%.2f", m.Matrix[i][j]))
		}
		b.WriteString(strings.Join(cells, "\t"))
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseClipboard reads tab-delimited rows of numeric values back into a
// grid. Every row must have the same number of columns.
func ParseClipboard(text string) ([][]float64, error) {
	var grid [][]float64
	for ln, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		row := make([]float64, 0, len(fields))
		for _, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid value %q", ln+1, f)
			}
			row = append(row, v)
		}
		if len(grid) > 0 && len(row) != len(grid[0]) {
			return nil, fmt.Errorf("line %d: %d columns, expected %d", ln+1, len(row), len(grid[0]))
		}
		grid = append(grid, row)
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("clipboard text contains no values")
	}
	return grid, nil
}
