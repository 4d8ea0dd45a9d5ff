// Package compare diffs two versions of the same map along its snapshot
// parent chain.
package compare

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/tosih/fuelcalc/pkg/models"
	"github.com/tosih/fuelcalc/pkg/store"
)

// Result summarizes the cell-by-cell difference between two map versions
type Result struct {
	VersionFrom  string
	VersionTo    string
	Diff         [][]float64
	ChangedCells int
	TotalCells   int
	AvgChange    float64
	MaxIncrease  float64
	MaxDecrease  float64
}

// Versions loads two versions of a map key and diffs them (to − from)
func Versions(st *store.Store, vehicleID string, mapType models.MapType, bankID models.BankID, from, to string) (*Result, error) {
	snapFrom, err := st.LoadVersion(vehicleID, mapType, bankID, from)
	if err != nil {
		return nil, err
	}
	snapTo, err := st.LoadVersion(vehicleID, mapType, bankID, to)
	if err != nil {
		return nil, err
	}

	mapFrom, err := snapFrom.ToMap()
	if err != nil {
		return nil, err
	}
	mapTo, err := snapTo.ToMap()
	if err != nil {
		return nil, err
	}
	return Maps(mapFrom, mapTo)
}

// Maps diffs two decoded maps of the same shape
func Maps(from, to *models.FuelMap) (*Result, error) {
	gridFrom := grid(from)
	gridTo := grid(to)

	if len(gridFrom) != len(gridTo) {
		return nil, fmt.Errorf("shape mismatch: %d vs %d rows", len(gridFrom), len(gridTo))
	}

	r := &Result{VersionFrom: from.Version, VersionTo: to.Version}
	r.Diff = make([][]float64, len(gridFrom))
	var total float64

	for i := range gridFrom {
		if len(gridFrom[i]) != len(gridTo[i]) {
			return nil, fmt.Errorf("shape mismatch at row %d: %d vs %d columns", i, len(gridFrom[i]), len(gridTo[i]))
		}
		r.Diff[i] = make([]float64, len(gridFrom[i]))
		for j := range gridFrom[i] {
			d := gridTo[i][j] - gridFrom[i][j]
			r.Diff[i][j] = d
			r.TotalCells++
			if d != 0 {
				r.ChangedCells++
				total += d
				if d > r.MaxIncrease {
					r.MaxIncrease = d
				}
				if d < r.MaxDecrease {
					r.MaxDecrease = d
				}
			}
		}
	}
	if r.ChangedCells > 0 {
		r.AvgChange = total / float64(r.ChangedCells)
	}
	return r, nil
}

func grid(m *models.FuelMap) [][]float64 {
	if m.Dimension == models.Dim1D {
		out := make([][]float64, len(m.Line))
		for i, v := range m.Line {
			out[i] = []float64{v}
		}
		return out
	}
	return m.Matrix
}

// Display prints a comparison summary and difference map to the terminal
func Display(r *Result, unit string) {
	pterm.DefaultHeader.WithFullWidth().Println("Map Version Comparison")

	pterm.Info.Printf("Versions: %s → %s\n", short(r.VersionFrom), short(r.VersionTo))
	pterm.Info.Printf("Changed cells: %d / %d (%.1f%%)\n",
		r.ChangedCells, r.TotalCells,
		float64(r.ChangedCells)/float64(r.TotalCells)*100)
	pterm.Info.Printf("Average change: %.2f %s\n", r.AvgChange, unit)
	pterm.Info.Printf("Max increase: %.2f %s\n", r.MaxIncrease, unit)
	pterm.Info.Printf("Max decrease: %.2f %s\n", r.MaxDecrease, unit)

	pterm.Println("\nDifference Map (to - from):")
	visualize(r.Diff)
}

func short(version string) string {
	if len(version) > 8 {
		return version[:8]
	}
	return version
}

func visualize(diff [][]float64) {
	var result strings.Builder

	maxAbs := 0.0
	for _, row := range diff {
		for _, v := range row {
			if v < 0 {
				v = -v
			}
			if v > maxAbs {
				maxAbs = v
			}
		}
	}

	for _, row := range diff {
		for _, v := range row {
			result.WriteString(diffSymbol(v, maxAbs))
		}
		result.WriteString("\n")
	}

	result.WriteString("\nLegend: ")
	result.WriteString(pterm.FgBlue.Sprint("▼▼") + " Large Decrease  ")
	result.WriteString(pterm.FgCyan.Sprint("▼ ") + " Small Decrease  ")
	result.WriteString(pterm.FgGray.Sprint("··") + " No Change  ")
	result.WriteString(pterm.FgYellow.Sprint("▲ ") + " Small Increase  ")
	result.WriteString(pterm.FgRed.Sprint("▲▲") + " Large Increase")

	pterm.DefaultBox.Println(result.String())
}

func diffSymbol(val, maxAbs float64) string {
	if val == 0 || maxAbs == 0 {
		return pterm.FgGray.Sprint("·· ")
	}

	normalized := val / maxAbs

	switch {
	case normalized < -0.5:
		return pterm.FgBlue.Sprint("▼▼ ")
	case normalized < -0.1:
		return pterm.FgCyan.Sprint("▼  ")
	case normalized > 0.5:
		return pterm.FgRed.Sprint("▲▲ ")
	case normalized > 0.1:
		return pterm.FgYellow.Sprint("▲  ")
	}
	return pterm.FgGray.Sprint("·  ")
}
