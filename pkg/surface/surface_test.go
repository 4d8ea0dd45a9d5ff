package surface

import (
	"math"
	"testing"
)

func testVE() *Surface {
	return &Surface{
		Kind:    KindVE,
		MapAxis: []float64{0.0, 1.0},
		RPMAxis: []float64{1000, 3000},
		Values: [][]float64{
			{0.70, 0.90},
			{0.80, 1.00},
		},
	}
}

func TestSampleBilinear(t *testing.T) {
	s := testVE()

	tests := []struct {
		name   string
		mapRel float64
		rpm    float64
		want   float64
	}{
		{"exact corner", 0.0, 1000, 0.70},
		{"opposite corner", 1.0, 3000, 1.00},
		{"rpm midpoint", 0.0, 2000, 0.80},
		{"map midpoint", 0.5, 1000, 0.75},
		{"center", 0.5, 2000, 0.85},
		{"clamps below range", -2.0, 500, 0.70},
		{"clamps above range", 3.0, 9000, 1.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sample(tt.mapRel, tt.rpm, SampleBilinear)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Sample(%.1f, %.0f) = %.4f, want %.4f", tt.mapRel, tt.rpm, got, tt.want)
			}
		})
	}
}

func TestSampleNearest(t *testing.T) {
	s := testVE()

	tests := []struct {
		name   string
		mapRel float64
		rpm    float64
		want   float64
	}{
		{"snaps down", 0.2, 1400, 0.70},
		{"snaps up", 0.8, 2800, 1.00},
		{"mixed snap", 0.2, 2800, 0.90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sample(tt.mapRel, tt.rpm, SampleNearest)
			if got != tt.want {
				t.Errorf("Sample(%.1f, %.0f, nearest) = %.4f, want %.4f", tt.mapRel, tt.rpm, got, tt.want)
			}
		})
	}
}

func TestStoreFallbacks(t *testing.T) {
	st := NewStore()

	if ve := st.SampleVE("missing", 0.5, 2000, SampleBilinear); ve != DefaultVE {
		t.Errorf("VE fallback = %.2f, want %.2f", ve, DefaultVE)
	}
	if la := st.SampleLambda("missing", 0.5, 2000, SampleBilinear); la != DefaultLambda {
		t.Errorf("lambda fallback = %.2f, want %.2f", la, DefaultLambda)
	}
}

func TestStoreSetAndVersion(t *testing.T) {
	st := NewStore()

	if err := st.Set("car", testVE()); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ve, _ := st.Versions("car"); ve != 1 {
		t.Errorf("VE version = %d, want 1", ve)
	}

	if err := st.Set("car", testVE()); err != nil {
		t.Fatalf("Set again: %v", err)
	}
	if ve, _ := st.Versions("car"); ve != 2 {
		t.Errorf("VE version after second set = %d, want 2", ve)
	}

	got := st.SampleVE("car", 0.5, 2000, SampleBilinear)
	if math.Abs(got-0.85) > 1e-9 {
		t.Errorf("stored surface sample = %.4f, want 0.85", got)
	}

	st.DeleteVehicle("car")
	if ve, la := st.Versions("car"); ve != 0 || la != 0 {
		t.Errorf("versions after delete = (%d, %d), want (0, 0)", ve, la)
	}
}

func TestSurfaceCheck(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Surface)
		wantErr bool
	}{
		{"valid surface passes", func(s *Surface) {}, false},
		{"zero VE rejected", func(s *Surface) { s.Values[0][0] = 0 }, true},
		{"VE above 1.3 rejected", func(s *Surface) { s.Values[1][1] = 1.4 }, true},
		{"ragged row rejected", func(s *Surface) { s.Values[0] = s.Values[0][:1] }, true},
		{"row count mismatch rejected", func(s *Surface) { s.Values = s.Values[:1] }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testVE()
			tt.mutate(s)
			err := s.Check()
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	lambda := &Surface{
		Kind:    KindLambda,
		MapAxis: []float64{0},
		RPMAxis: []float64{1000},
		Values:  [][]float64{{0.6}},
	}
	if err := lambda.Check(); err != nil {
		t.Errorf("lambda at lower bound should pass: %v", err)
	}
	lambda.Values[0][0] = 0.55
	if err := lambda.Check(); err == nil {
		t.Error("lambda below 0.6 should fail")
	}
}
