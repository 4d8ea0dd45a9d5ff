// Package surface stores the per-vehicle volumetric-efficiency and
// lambda-target surfaces and answers interpolated lookups on them.
package surface

import (
	"fmt"
	"sync"
)

// Fallback constants substituted when a vehicle has no persisted surface:
// a conservative VE and stoichiometric lambda.
const (
	DefaultVE     = 0.80
	DefaultLambda = 1.00
)

// Accepted value ranges per surface kind
const (
	veMin, veMax         = 0.0, 1.3
	lambdaMin, lambdaMax = 0.6, 1.5
)

// Kind distinguishes the two surface types
type Kind string

const (
	KindVE     Kind = "ve"
	KindLambda Kind = "lambda"
)

// SampleMode selects how off-grid points are sampled. Bilinear is the
// default; nearest remains available for matching external tool output.
type SampleMode int

const (
	SampleBilinear SampleMode = iota
	SampleNearest
)

// Surface is a dense grid of values over a (MAP, RPM) breakpoint pair
type Surface struct {
	Kind    Kind
	MapAxis []float64   // ascending, bar relative
	RPMAxis []float64   // ascending
	Values  [][]float64 // [len(MapAxis)][len(RPMAxis)]
	Version int
}

// Check verifies grid shape and value ranges for the surface kind
func (s *Surface) Check() error {
	if len(s.Values) != len(s.MapAxis) {
		return fmt.Errorf("surface %s: %d rows for %d map positions", s.Kind, len(s.Values), len(s.MapAxis))
	}
	lo, hi := veMin, veMax
	if s.Kind == KindLambda {
		lo, hi = lambdaMin, lambdaMax
	}
	for i, row := range s.Values {
		if len(row) != len(s.RPMAxis) {
			return fmt.Errorf("surface %s: row %d has %d columns for %d rpm positions",
				s.Kind, i, len(row), len(s.RPMAxis))
		}
		for j, v := range row {
			// VE excludes its lower bound, lambda includes it
			outside := v > hi || v < lo || (s.Kind == KindVE && v == lo)
			if outside {
				return fmt.Errorf("surface %s: value %.4f at [%d,%d] outside [%g, %g]",
					s.Kind, v, i, j, lo, hi)
			}
		}
	}
	return nil
}

// Sample returns the surface value at (mapRel, rpm). Points outside the
// breakpoint range clamp to the edge.
func (s *Surface) Sample(mapRel, rpm float64, mode SampleMode) float64 {
	if len(s.MapAxis) == 0 || len(s.RPMAxis) == 0 {
		if s.Kind == KindLambda {
			return DefaultLambda
		}
		return DefaultVE
	}

	i, fi := indexAndFrac(s.MapAxis, mapRel)
	j, fj := indexAndFrac(s.RPMAxis, rpm)

	if mode == SampleNearest {
		if fi >= 0.5 {
			i++
		}
		if fj >= 0.5 {
			j++
		}
		return s.Values[i][j]
	}

	i2, j2 := i, j
	if i+1 < len(s.MapAxis) {
		i2 = i + 1
	}
	if j+1 < len(s.RPMAxis) {
		j2 = j + 1
	}

	v00 := s.Values[i][j]
	v01 := s.Values[i][j2]
	v10 := s.Values[i2][j]
	v11 := s.Values[i2][j2]

	top := v00*(1-fj) + v01*fj
	bottom := v10*(1-fj) + v11*fj
	return top*(1-fi) + bottom*fi
}

// indexAndFrac locates the lower bracketing index for v and the fraction
// toward the next breakpoint, clamped to the grid.
func indexAndFrac(axis []float64, v float64) (int, float64) {
	if v <= axis[0] {
		return 0, 0
	}
	last := len(axis) - 1
	if v >= axis[last] {
		return last, 0
	}
	for i := 0; i < last; i++ {
		if v < axis[i+1] {
			span := axis[i+1] - axis[i]
			return i, (v - axis[i]) / span
		}
	}
	return last, 0
}

// Store holds the persisted surfaces per vehicle
type Store struct {
	mu       sync.RWMutex
	surfaces map[string]map[Kind]*Surface
}

// NewStore creates an empty surface store
func NewStore() *Store {
	return &Store{surfaces: make(map[string]map[Kind]*Surface)}
}

// Set validates and stores a surface for a vehicle, bumping its version
func (st *Store) Set(vehicleID string, s *Surface) error {
	if err := s.Check(); err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.surfaces[vehicleID] == nil {
		st.surfaces[vehicleID] = make(map[Kind]*Surface)
	}
	if prev := st.surfaces[vehicleID][s.Kind]; prev != nil {
		s.Version = prev.Version + 1
	} else {
		s.Version = 1
	}
	st.surfaces[vehicleID][s.Kind] = s
	return nil
}

// Get returns the stored surface, or nil when the vehicle has none
func (st *Store) Get(vehicleID string, kind Kind) *Surface {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.surfaces[vehicleID][kind]
}

// SampleVE samples the VE surface, falling back to DefaultVE when the
// vehicle has no persisted surface.
func (st *Store) SampleVE(vehicleID string, mapRel, rpm float64, mode SampleMode) float64 {
	s := st.Get(vehicleID, KindVE)
	if s == nil {
		return DefaultVE
	}
	return s.Sample(mapRel, rpm, mode)
}

// SampleLambda samples the lambda-target surface, falling back to
// DefaultLambda when the vehicle has none.
func (st *Store) SampleLambda(vehicleID string, mapRel, rpm float64, mode SampleMode) float64 {
	s := st.Get(vehicleID, KindLambda)
	if s == nil {
		return DefaultLambda
	}
	return s.Sample(mapRel, rpm, mode)
}

// Versions returns the current VE and lambda surface versions (0 = absent)
func (st *Store) Versions(vehicleID string) (int, int) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var ve, la int
	if s := st.surfaces[vehicleID][KindVE]; s != nil {
		ve = s.Version
	}
	if s := st.surfaces[vehicleID][KindLambda]; s != nil {
		la = s.Version
	}
	return ve, la
}

// DeleteVehicle removes every surface belonging to a vehicle
func (st *Store) DeleteVehicle(vehicleID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.surfaces, vehicleID)
}
