package bank

import (
	"errors"
	"math"
	"testing"

	"github.com/tosih/fuelcalc/pkg/models"
	"github.com/tosih/fuelcalc/pkg/store"
	"github.com/tosih/fuelcalc/pkg/surface"
)

func bankCfg(id models.BankID, pins ...int) models.BankConfig {
	return models.BankConfig{
		ID:              id,
		Enabled:         true,
		Mode:            models.ModeSequential,
		Outputs:         pins,
		InjectorFlowCC:  330,
		InjectorCount:   len(pins),
		DeadTime13V:     1.0,
		Regulator:       models.RegulatorOneToOne,
		BasePressureBar: 3.0,
	}
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(store.NewStore(t.TempDir()), models.MapTypeConfigs)
}

func TestConfigureRejectsBadInput(t *testing.T) {
	m := newManager(t)

	tests := []struct {
		name   string
		mutate func(*models.BankConfig)
	}{
		{"unknown bank id", func(c *models.BankConfig) { c.ID = "C" }},
		{"bank A disabled", func(c *models.BankConfig) { c.Enabled = false }},
		{"zero injector count", func(c *models.BankConfig) { c.InjectorCount = 0 }},
		{"negative flow", func(c *models.BankConfig) { c.InjectorFlowCC = -1 }},
		{"zero base pressure", func(c *models.BankConfig) { c.BasePressureBar = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := bankCfg(models.BankA, 1, 2)
			tt.mutate(&cfg)
			if err := m.Configure("car", cfg); err == nil {
				t.Error("expected an error")
			}
		})
	}

	// Disabled bank B skips the positivity checks
	disabledB := models.BankConfig{ID: models.BankB}
	if err := m.Configure("car", disabledB); err != nil {
		t.Errorf("disabled bank B rejected: %v", err)
	}
}

func TestPinConflictIsSymmetric(t *testing.T) {
	orders := []struct {
		name          string
		first, second models.BankConfig
	}{
		{"A then B", bankCfg(models.BankA, 1, 2, 3, 4), bankCfg(models.BankB, 3, 4, 5, 6)},
		{"B then A", bankCfg(models.BankB, 3, 4, 5, 6), bankCfg(models.BankA, 1, 2, 3, 4)},
	}

	for _, tt := range orders {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(t)
			if err := m.Configure("car", tt.first); err != nil {
				t.Fatalf("first bank rejected: %v", err)
			}

			err := m.Configure("car", tt.second)
			var conflict *ConflictError
			if !errors.As(err, &conflict) {
				t.Fatalf("got %v, want ConflictError", err)
			}
			if len(conflict.Pins) != 2 || conflict.Pins[0] != 3 || conflict.Pins[1] != 4 {
				t.Errorf("conflict pins = %v, want [3 4]", conflict.Pins)
			}
		})
	}
}

func TestDisjointBanksConfigure(t *testing.T) {
	m := newManager(t)

	if err := m.Configure("car", bankCfg(models.BankA, 1, 2, 3, 4)); err != nil {
		t.Fatalf("bank A: %v", err)
	}
	if err := m.Configure("car", bankCfg(models.BankB, 5, 6, 7, 8)); err != nil {
		t.Fatalf("disjoint bank B rejected: %v", err)
	}

	// Overlap with a disabled bank is allowed
	disabled := bankCfg(models.BankB, 1, 2)
	disabled.Enabled = false
	if err := m.Configure("car", disabled); err != nil {
		t.Errorf("overlap with disabled bank rejected: %v", err)
	}

	got, ok := m.Bank("car", models.BankA)
	if !ok || len(got.Outputs) != 4 {
		t.Errorf("Bank lookup = %+v, %v", got, ok)
	}

	m.DeleteVehicle("car")
	if _, ok := m.Bank("car", models.BankA); ok {
		t.Error("bank config survived DeleteVehicle")
	}
}

func TestDuplicateMaps(t *testing.T) {
	st := store.NewStore(t.TempDir())
	m := NewManager(st, models.MapTypeConfigs)
	types := []models.MapType{models.MapInjection, models.MapInjection2D}

	if err := m.DuplicateMaps("car", types); err != nil {
		t.Fatalf("DuplicateMaps: %v", err)
	}

	for _, mt := range types {
		snapA, err := st.Load("car", mt, models.BankA)
		if err != nil {
			t.Fatalf("bank A %s missing: %v", mt, err)
		}
		if snapA.Metadata.CalculatedWith != "default" {
			t.Errorf("%s bank A calculated_with = %q, want default", mt, snapA.Metadata.CalculatedWith)
		}
		snapB, err := st.Load("car", mt, models.BankB)
		if err != nil {
			t.Fatalf("bank B %s missing: %v", mt, err)
		}
		if snapB.BankID != "B" {
			t.Errorf("%s clone bank id = %s, want B", mt, snapB.BankID)
		}
		if len(snapB.MapAxis) != len(snapA.MapAxis) {
			t.Errorf("%s clone axis length %d, want %d", mt, len(snapB.MapAxis), len(snapA.MapAxis))
		}
	}

	// Running again must not add versions to either chain
	if err := m.DuplicateMaps("car", types); err != nil {
		t.Fatalf("second DuplicateMaps: %v", err)
	}
	for _, bank := range []models.BankID{models.BankA, models.BankB} {
		metas, err := st.Versions("car", models.MapInjection, bank)
		if err != nil {
			t.Fatalf("Versions: %v", err)
		}
		if len(metas) != 1 {
			t.Errorf("bank %s has %d versions after re-duplication, want 1", bank, len(metas))
		}
	}
}

func TestSyncAToB(t *testing.T) {
	st := store.NewStore(t.TempDir())
	m := NewManager(st, models.MapTypeConfigs)

	if err := m.DuplicateMaps("car", []models.MapType{models.MapInjection}); err != nil {
		t.Fatalf("DuplicateMaps: %v", err)
	}

	// Advance bank A with edited values
	snapA, err := st.Load("car", models.MapInjection, models.BankA)
	if err != nil {
		t.Fatalf("Load A: %v", err)
	}
	mapA, err := snapA.ToMap()
	if err != nil {
		t.Fatalf("ToMap: %v", err)
	}
	mapA.Line[0] = 5.5
	if _, err := st.Save(mapA, snapA.Metadata.Version); err != nil {
		t.Fatalf("saving edited A: %v", err)
	}

	if err := m.SyncAToB("car", models.MapInjection); err != nil {
		t.Fatalf("SyncAToB: %v", err)
	}

	snapB, err := st.Load("car", models.MapInjection, models.BankB)
	if err != nil {
		t.Fatalf("Load B: %v", err)
	}
	if snapB.Values[0] != 5.5 {
		t.Errorf("bank B value[0] = %v, want synced 5.5", snapB.Values[0])
	}

	// The overwrite is a new version on B's chain, not a replacement
	metas, err := st.Versions("car", models.MapInjection, models.BankB)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(metas) != 2 {
		t.Errorf("bank B has %d versions after sync, want 2", len(metas))
	}
}

// TestPurgeVehicle checks that one purge call removes snapshots, surfaces
// and bank configuration together.
func TestPurgeVehicle(t *testing.T) {
	st := store.NewStore(t.TempDir())
	m := NewManager(st, models.MapTypeConfigs)
	surfaces := surface.NewStore()

	if err := m.Configure("car", bankCfg(models.BankA, 1, 2, 3, 4)); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := m.DuplicateMaps("car", []models.MapType{models.MapInjection}); err != nil {
		t.Fatalf("DuplicateMaps: %v", err)
	}
	ve := &surface.Surface{
		Kind:    surface.KindVE,
		MapAxis: []float64{0, 1},
		RPMAxis: []float64{1000, 5000},
		Values:  [][]float64{{0.8, 0.9}, {0.85, 0.95}},
	}
	if err := surfaces.Set("car", ve); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := m.PurgeVehicle("car", surfaces); err != nil {
		t.Fatalf("PurgeVehicle: %v", err)
	}

	if _, err := st.Load("car", models.MapInjection, models.BankA); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("snapshots survived the purge: %v", err)
	}
	if veVer, laVer := surfaces.Versions("car"); veVer != 0 || laVer != 0 {
		t.Errorf("surfaces survived the purge: versions (%d, %d)", veVer, laVer)
	}
	if _, ok := m.Bank("car", models.BankA); ok {
		t.Error("bank config survived the purge")
	}
}

func TestTotalFlow(t *testing.T) {
	if got := TotalFlow(bankCfg(models.BankA, 1, 2, 3, 4)); got != 1320 {
		t.Errorf("TotalFlow = %.0f, want 1320", got)
	}
}

func TestDutyCycle(t *testing.T) {
	tests := []struct {
		name string
		pw   float64
		rpm  float64
		mode models.InjectionMode
		want float64
	}{
		{"sequential half duty", 10, 6000, models.ModeSequential, 50},
		{"multipoint full duty", 10, 6000, models.ModeMultipoint, 100},
		{"clamped at 100", 30, 6000, models.ModeSequential, 100},
		{"idle sequential", 3, 1000, models.ModeSequential, 2.5},
		{"zero rpm", 10, 0, models.ModeSequential, 0},
		{"zero pulse", 0, 3000, models.ModeSequential, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DutyCycle(tt.pw, tt.rpm, tt.mode); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("DutyCycle(%.0f, %.0f, %s) = %.2f, want %.2f", tt.pw, tt.rpm, tt.mode, got, tt.want)
			}
		})
	}
}
