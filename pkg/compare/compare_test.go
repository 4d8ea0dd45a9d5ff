package compare

import (
	"math"
	"testing"

	"github.com/tosih/fuelcalc/pkg/models"
	"github.com/tosih/fuelcalc/pkg/store"
)

func gridMap(matrix [][]float64, version string) *models.FuelMap {
	return &models.FuelMap{
		VehicleID: "car",
		Type:      models.MapInjection2D,
		Bank:      models.BankA,
		Dimension: models.Dim2D,
		Unit:      "ms",
		MapAxis: models.AxisDefinition{
			Kind:    models.AxisMAP,
			Values:  []float64{0, 1},
			Enabled: []bool{true, true},
		},
		RPMAxis: models.AxisDefinition{
			Kind:    models.AxisRPM,
			Values:  []float64{1000, 4000},
			Enabled: []bool{true, true},
		},
		Matrix:  matrix,
		Version: version,
	}
}

func TestMaps(t *testing.T) {
	from := gridMap([][]float64{{2, 3}, {4, 5}}, "v1")
	to := gridMap([][]float64{{2, 4.5}, {3, 5}}, "v2")

	r, err := Maps(from, to)
	if err != nil {
		t.Fatalf("Maps: %v", err)
	}

	if r.TotalCells != 4 || r.ChangedCells != 2 {
		t.Errorf("changed/total = %d/%d, want 2/4", r.ChangedCells, r.TotalCells)
	}
	if r.Diff[0][1] != 1.5 || r.Diff[1][0] != -1 {
		t.Errorf("diff = %v", r.Diff)
	}
	if r.MaxIncrease != 1.5 || r.MaxDecrease != -1 {
		t.Errorf("max increase/decrease = %v/%v, want 1.5/-1", r.MaxIncrease, r.MaxDecrease)
	}
	if math.Abs(r.AvgChange-0.25) > 1e-9 {
		t.Errorf("avg change = %v, want 0.25", r.AvgChange)
	}

	short := gridMap([][]float64{{1, 2}}, "v3")
	if _, err := Maps(from, short); err == nil {
		t.Error("shape mismatch did not error")
	}
}

func TestMapsIdentical(t *testing.T) {
	m := gridMap([][]float64{{2, 3}, {4, 5}}, "v1")
	r, err := Maps(m, m)
	if err != nil {
		t.Fatalf("Maps: %v", err)
	}
	if r.ChangedCells != 0 || r.AvgChange != 0 {
		t.Errorf("identical maps report changes: %+v", r)
	}
}

func TestVersions(t *testing.T) {
	st := store.NewStore(t.TempDir())

	first := gridMap([][]float64{{2, 3}, {4, 5}}, "")
	snap1, err := st.Save(first, "")
	if err != nil {
		t.Fatalf("save v1: %v", err)
	}
	second := gridMap([][]float64{{2, 3}, {4, 6}}, "")
	snap2, err := st.Save(second, snap1.Metadata.Version)
	if err != nil {
		t.Fatalf("save v2: %v", err)
	}

	r, err := Versions(st, "car", models.MapInjection2D, models.BankA,
		snap1.Metadata.Version, snap2.Metadata.Version)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if r.ChangedCells != 1 || r.Diff[1][1] != 1 {
		t.Errorf("diff across stored versions = %+v", r)
	}
	if r.VersionFrom != snap1.Metadata.Version || r.VersionTo != snap2.Metadata.Version {
		t.Errorf("version ids = %s → %s", r.VersionFrom, r.VersionTo)
	}

	if _, err := Versions(st, "car", models.MapInjection2D, models.BankA, "missing", snap2.Metadata.Version); err == nil {
		t.Error("missing version did not error")
	}
}
