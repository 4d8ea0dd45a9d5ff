package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tosih/fuelcalc/pkg/models"
)

func testLine() *models.FuelMap {
	return &models.FuelMap{
		VehicleID: "car",
		Type:      models.MapInjection,
		Bank:      models.BankA,
		Dimension: models.Dim1D,
		Unit:      "ms",
		MapAxis: models.AxisDefinition{
			Kind:    models.AxisMAP,
			Unit:    "bar",
			Values:  []float64{-0.5, 0.0, 0.5},
			Enabled: []bool{true, false, true},
		},
		Line: []float64{1.234, 2.345, 3.456},
	}
}

func testGrid() *models.FuelMap {
	return &models.FuelMap{
		VehicleID: "car",
		Type:      models.MapInjection2D,
		Bank:      models.BankA,
		Dimension: models.Dim2D,
		Unit:      "ms",
		MapAxis: models.AxisDefinition{
			Kind:    models.AxisMAP,
			Unit:    "bar",
			Values:  []float64{-0.5, 0.0, 0.5},
			Enabled: []bool{true, true, false},
		},
		RPMAxis: models.AxisDefinition{
			Kind:    models.AxisRPM,
			Unit:    "rpm",
			Values:  []float64{1000, 4000},
			Enabled: []bool{true, true},
		},
		Matrix: [][]float64{
			{2.125, 3.0625},
			{4.5, 5.75},
			{6.0, 7.125},
		},
	}
}

// TestClipboard1D checks the one-column format: two decimals, one row per
// active MAP position, disabled positions skipped.
func TestClipboard1D(t *testing.T) {
	got := Clipboard(testLine())
	want := "1.23\n3.46\n"
	if got != want {
		t.Errorf("Clipboard = %q, want %q", got, want)
	}
}

// TestClipboard2D checks the grid format: one row per active rpm position,
// tab-separated columns over the active MAP positions.
func TestClipboard2D(t *testing.T) {
	got := Clipboard(testGrid())
	want := "2.12\t4.50\n3.06\t5.75\n"
	if got != want {
		t.Errorf("Clipboard = %q, want %q", got, want)
	}
}

func TestParseClipboard(t *testing.T) {
	grid, err := ParseClipboard("2.12\t4.50\n3.06\t5.75\n")
	if err != nil {
		t.Fatalf("ParseClipboard: %v", err)
	}
	if len(grid) != 2 || len(grid[0]) != 2 {
		t.Fatalf("grid shape = %dx%d, want 2x2", len(grid), len(grid[0]))
	}
	if grid[0][1] != 4.5 || grid[1][0] != 3.06 {
		t.Errorf("grid values = %v", grid)
	}

	// Round trip through the clipboard format
	back, err := ParseClipboard(Clipboard(testGrid()))
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if len(back) != 2 || len(back[0]) != 2 {
		t.Errorf("round-trip shape = %dx%d, want 2x2", len(back), len(back[0]))
	}

	tests := []struct {
		name string
		text string
	}{
		{"ragged rows", "1.0\t2.0\n3.0\n"},
		{"non-numeric", "1.0\tabc\n"},
		{"empty", "\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseClipboard(tt.text); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestCSVRoundTrip2D(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.csv")
	if err := WriteCSV(testGrid(), path); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	grid, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	// Two active MAP rows, two active rpm columns, two-decimal precision
	want := [][]float64{
		{2.12, 3.06},
		{4.50, 5.75},
	}
	if len(grid) != len(want) {
		t.Fatalf("got %d rows, want %d", len(grid), len(want))
	}
	for i := range want {
		if len(grid[i]) != len(want[i]) {
			t.Fatalf("row %d has %d columns, want %d", i, len(grid[i]), len(want[i]))
		}
		for j := range want[i] {
			if grid[i][j] != want[i][j] {
				t.Errorf("cell [%d][%d] = %v, want %v", i, j, grid[i][j], want[i][j])
			}
		}
	}
}

func TestCSVRoundTrip1D(t *testing.T) {
	path := filepath.Join(t.TempDir(), "line.csv")
	if err := WriteCSV(testLine(), path); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	grid, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(grid) != 2 || len(grid[0]) != 1 {
		t.Fatalf("grid shape = %v, want two single-value rows", grid)
	}
	if grid[0][0] != 1.23 || grid[1][0] != 3.46 {
		t.Errorf("grid values = %v, want [1.23] [3.46]", grid)
	}
}

func TestReadCSVRejectsHeaderless(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noheader.csv")
	if err := os.WriteFile(path, []byte("1,2,3\n4,5,6\n"), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := ReadCSV(path); err == nil {
		t.Error("expected an error for a file without a data header")
	}
}
