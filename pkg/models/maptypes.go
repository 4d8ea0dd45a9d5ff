package models

import (
	"encoding/json"
	"fmt"
	"os"
)

// MapTypeConfig defines the shape, unit and value range of one map type,
// plus the default axis layout used when a map is created lazily.
type MapTypeConfig struct {
	Type      MapType
	Name      string
	XAxis     AxisKind
	YAxis     AxisKind // zero for 1D maps
	Dimension Dimension
	Unit      string
	MinValue  float64
	MaxValue  float64

	DefaultMapValues  []float64
	DefaultMapEnabled []bool
	DefaultRPMValues  []float64
	DefaultRPMEnabled []bool
}

// defaultMAPAxis spans -0.9 to +2.1 bar relative in 0.2 bar steps. The
// boost range above +0.7 bar ships disabled so naturally aspirated setups
// start with a clean 9-point line.
func defaultMAPAxis() ([]float64, []bool) {
	values := make([]float64, 16)
	enabled := make([]bool, 16)
	for i := range values {
		values[i] = -0.9 + 0.2*float64(i)
		enabled[i] = values[i] <= 0.7+1e-9
	}
	return values, enabled
}

func defaultRPMAxis() ([]float64, []bool) {
	values := make([]float64, 16)
	enabled := make([]bool, 16)
	for i := range values {
		values[i] = 500 + 500*float64(i)
		enabled[i] = true
	}
	return values, enabled
}

// MapTypeConfigs is the built-in map-type table. A JSON file loaded through
// LoadMapTypeConfigs may override it; any divergence between the two is
// reported, never silently resolved.
var MapTypeConfigs = buildDefaultConfigs()

func buildDefaultConfigs() []MapTypeConfig {
	mapVals, mapEn := defaultMAPAxis()
	rpmVals, rpmEn := defaultRPMAxis()

	return []MapTypeConfig{
		{
			Type:              MapInjection,
			Name:              "Injection Time",
			XAxis:             AxisMAP,
			Dimension:         Dim1D,
			Unit:              "ms",
			MinValue:          0,
			MaxValue:          50,
			DefaultMapValues:  mapVals,
			DefaultMapEnabled: mapEn,
		},
		{
			Type:              MapInjection2D,
			Name:              "Injection Time 2D",
			XAxis:             AxisMAP,
			YAxis:             AxisRPM,
			Dimension:         Dim2D,
			Unit:              "ms",
			MinValue:          0,
			MaxValue:          50,
			DefaultMapValues:  mapVals,
			DefaultMapEnabled: mapEn,
			DefaultRPMValues:  rpmVals,
			DefaultRPMEnabled: rpmEn,
		},
		{
			Type:              MapIgnition,
			Name:              "Ignition Advance",
			XAxis:             AxisMAP,
			YAxis:             AxisRPM,
			Dimension:         Dim2D,
			Unit:              "deg",
			MinValue:          -10,
			MaxValue:          60,
			DefaultMapValues:  mapVals,
			DefaultMapEnabled: mapEn,
			DefaultRPMValues:  rpmVals,
			DefaultRPMEnabled: rpmEn,
		},
		{
			Type:              MapLambda,
			Name:              "Lambda Target",
			XAxis:             AxisMAP,
			YAxis:             AxisRPM,
			Dimension:         Dim2D,
			Unit:              "λ",
			MinValue:          0.6,
			MaxValue:          1.5,
			DefaultMapValues:  mapVals,
			DefaultMapEnabled: mapEn,
			DefaultRPMValues:  rpmVals,
			DefaultRPMEnabled: rpmEn,
		},
	}
}

// MapTypeConfigFor looks up a map type in a config table
func MapTypeConfigFor(configs []MapTypeConfig, t MapType) (MapTypeConfig, error) {
	for _, c := range configs {
		if c.Type == t {
			return c, nil
		}
	}
	return MapTypeConfig{}, fmt.Errorf("unknown map type: %s", t)
}

// ConfigDivergence records one field where a loaded map-type config disagrees
// with the built-in table for the same map type.
type ConfigDivergence struct {
	Type    MapType
	Field   string
	Builtin string
	Loaded  string
}

func (d ConfigDivergence) String() string {
	return fmt.Sprintf("%s.%s: builtin %s, loaded %s", d.Type, d.Field, d.Builtin, d.Loaded)
}

// mapTypeJSON is the on-disk shape of one map-type entry
type mapTypeJSON struct {
	Name              string    `json:"name"`
	Label             string    `json:"label"`
	XAxisType         string    `json:"x_axis_type"`
	YAxisType         string    `json:"y_axis_type"`
	GridSize          int       `json:"grid_size"`
	Unit              string    `json:"unit"`
	MinValue          float64   `json:"min_value"`
	MaxValue          float64   `json:"max_value"`
	DefaultMapValues  []float64 `json:"default_map_values"`
	DefaultMapEnabled []bool    `json:"default_map_enabled"`
	DefaultRPMValues  []float64 `json:"default_rpm_values"`
	DefaultRPMEnabled []bool    `json:"default_rpm_enabled"`
}

// LoadMapTypeConfigs reads a map-type configuration file and merges it over
// the built-in table. Loaded entries win, but every field where they diverge
// from the built-in defaults is returned so validation can surface it.
func LoadMapTypeConfigs(path string) ([]MapTypeConfig, []ConfigDivergence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading map type config: %w", err)
	}

	var entries []mapTypeJSON
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil, fmt.Errorf("parsing map type config: %w", err)
	}

	configs := append([]MapTypeConfig(nil), MapTypeConfigs...)
	var divergences []ConfigDivergence

	for _, e := range entries {
		idx := -1
		for i, c := range configs {
			if c.Type == MapType(e.Name) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, fmt.Errorf("map type config names unknown type %q", e.Name)
		}

		builtin := configs[idx]
		loaded := builtin
		if e.Label != "" {
			loaded.Name = e.Label
		}
		if e.Unit != "" {
			loaded.Unit = e.Unit
		}
		loaded.MinValue = e.MinValue
		loaded.MaxValue = e.MaxValue
		if e.DefaultMapValues != nil {
			loaded.DefaultMapValues = e.DefaultMapValues
		}
		if e.DefaultMapEnabled != nil {
			loaded.DefaultMapEnabled = e.DefaultMapEnabled
		}
		if e.DefaultRPMValues != nil {
			loaded.DefaultRPMValues = e.DefaultRPMValues
		}
		if e.DefaultRPMEnabled != nil {
			loaded.DefaultRPMEnabled = e.DefaultRPMEnabled
		}

		divergences = append(divergences, diffConfigs(builtin, loaded)...)
		configs[idx] = loaded
	}

	return configs, divergences, nil
}

func diffConfigs(builtin, loaded MapTypeConfig) []ConfigDivergence {
	var out []ConfigDivergence

	add := func(field, b, l string) {
		if b != l {
			out = append(out, ConfigDivergence{Type: builtin.Type, Field: field, Builtin: b, Loaded: l})
		}
	}

	add("unit", builtin.Unit, loaded.Unit)
	add("min_value", fmt.Sprintf("%g", builtin.MinValue), fmt.Sprintf("%g", loaded.MinValue))
	add("max_value", fmt.Sprintf("%g", builtin.MaxValue), fmt.Sprintf("%g", loaded.MaxValue))
	add("map_positions", fmt.Sprintf("%d", len(builtin.DefaultMapValues)), fmt.Sprintf("%d", len(loaded.DefaultMapValues)))
	add("map_enabled_count", fmt.Sprintf("%d", countTrue(builtin.DefaultMapEnabled)), fmt.Sprintf("%d", countTrue(loaded.DefaultMapEnabled)))
	if builtin.Dimension == Dim2D {
		add("rpm_positions", fmt.Sprintf("%d", len(builtin.DefaultRPMValues)), fmt.Sprintf("%d", len(loaded.DefaultRPMValues)))
		add("rpm_enabled_count", fmt.Sprintf("%d", countTrue(builtin.DefaultRPMEnabled)), fmt.Sprintf("%d", countTrue(loaded.DefaultRPMEnabled)))
	}

	return out
}

func countTrue(mask []bool) int {
	n := 0
	for _, b := range mask {
		if b {
			n++
		}
	}
	return n
}

// DefaultMap creates the lazy default FuelMap instance for a map type
func (c MapTypeConfig) DefaultMap(vehicleID string, bank BankID) *FuelMap {
	m := &FuelMap{
		VehicleID: vehicleID,
		Type:      c.Type,
		Bank:      bank,
		Dimension: c.Dimension,
		Unit:      c.Unit,
		MapAxis: AxisDefinition{
			Kind:    c.XAxis,
			Unit:    "bar",
			Values:  append([]float64(nil), c.DefaultMapValues...),
			Enabled: append([]bool(nil), c.DefaultMapEnabled...),
		},
	}

	if c.Dimension == Dim2D {
		m.RPMAxis = AxisDefinition{
			Kind:    c.YAxis,
			Unit:    "rpm",
			Values:  append([]float64(nil), c.DefaultRPMValues...),
			Enabled: append([]bool(nil), c.DefaultRPMEnabled...),
		}
		m.Matrix = make([][]float64, len(m.MapAxis.Values))
		m.Saturated = make([][]bool, len(m.MapAxis.Values))
		for i := range m.Matrix {
			m.Matrix[i] = make([]float64, len(m.RPMAxis.Values))
			m.Saturated[i] = make([]bool, len(m.RPMAxis.Values))
		}
	} else {
		m.Line = make([]float64, len(m.MapAxis.Values))
		m.SaturatedLine = make([]bool, len(m.MapAxis.Values))
	}

	return m
}
