package models

import "time"

// MaxGridSize is the fixed capacity of any axis. Axis resize moves the live
// length within this bound so existing cell references stay valid.
const MaxGridSize = 32

// AxisKind identifies what physical quantity an axis spans
type AxisKind string

const (
	AxisRPM AxisKind = "rpm"
	AxisMAP AxisKind = "map"
)

// Dimension distinguishes single-line maps from full grids
type Dimension int

const (
	Dim1D Dimension = 1
	Dim2D Dimension = 2
)

// MapType identifies one calibration table in the closed set of table kinds
type MapType string

const (
	MapInjection   MapType = "injection"
	MapInjection2D MapType = "injection_2d"
	MapIgnition    MapType = "ignition"
	MapLambda      MapType = "lambda_target"
)

// BankID names one of the two injector banks
type BankID string

const (
	BankA BankID = "A"
	BankB BankID = "B"
)

// AxisDefinition is an ordered sequence of breakpoints plus a same-length
// enabled mask. Values are ascending; disabled positions keep their value so
// re-enabling never loses data.
type AxisDefinition struct {
	Kind    AxisKind  `json:"kind"`
	Unit    string    `json:"unit"`
	Values  []float64 `json:"values"`
	Enabled []bool    `json:"enabled"`
}

// Len returns the number of axis positions, enabled or not
func (a AxisDefinition) Len() int {
	return len(a.Values)
}

// EnabledCount returns how many positions are currently enabled
func (a AxisDefinition) EnabledCount() int {
	n := 0
	for _, e := range a.Enabled {
		if e {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the axis
func (a AxisDefinition) Clone() AxisDefinition {
	c := a
	c.Values = append([]float64(nil), a.Values...)
	c.Enabled = append([]bool(nil), a.Enabled...)
	return c
}

// FuelMap is one calibration table instance for a (vehicle, type, bank) key.
// For 2D maps Matrix is [len(MapAxis)][len(RPMAxis)]; for 1D maps Line is
// [len(MapAxis)] and Matrix is nil.
type FuelMap struct {
	VehicleID string
	Type      MapType
	Bank      BankID
	Dimension Dimension
	Unit      string

	MapAxis AxisDefinition
	RPMAxis AxisDefinition

	Line   []float64
	Matrix [][]float64

	// Saturated marks cells whose pulse width was clamped or whose
	// differential pressure collapsed. Same shape as Line/Matrix.
	SaturatedLine []bool
	Saturated     [][]bool

	Version        string
	ParentVersion  string
	Timestamp      time.Time
	CalculatedWith string
}

// Clone returns a deep copy of the map, axes and matrices included
func (m *FuelMap) Clone() *FuelMap {
	c := *m
	c.MapAxis = m.MapAxis.Clone()
	c.RPMAxis = m.RPMAxis.Clone()
	c.Line = append([]float64(nil), m.Line...)
	c.SaturatedLine = append([]bool(nil), m.SaturatedLine...)
	if m.Matrix != nil {
		c.Matrix = make([][]float64, len(m.Matrix))
		for i, row := range m.Matrix {
			c.Matrix[i] = append([]float64(nil), row...)
		}
	}
	if m.Saturated != nil {
		c.Saturated = make([][]bool, len(m.Saturated))
		for i, row := range m.Saturated {
			c.Saturated[i] = append([]bool(nil), row...)
		}
	}
	return &c
}

// InjectionMode selects how outputs of a bank are driven
type InjectionMode string

const (
	ModeMultipoint     InjectionMode = "multipoint"
	ModeSemiSequential InjectionMode = "semi-sequential"
	ModeSequential     InjectionMode = "sequential"
)

// RegulatorType distinguishes manifold-referenced from fixed-pressure regulators
type RegulatorType string

const (
	RegulatorOneToOne RegulatorType = "1:1"
	RegulatorFixed    RegulatorType = "fixed"
)

// BankConfig holds the injector topology and flow data of one bank
type BankConfig struct {
	ID              BankID        `json:"id"`
	Enabled         bool          `json:"enabled"`
	Mode            InjectionMode `json:"mode"`
	Outputs         []int         `json:"outputs"`
	InjectorFlowCC  float64       `json:"injector_flow_cc"` // cc/min at 3.0 bar
	InjectorCount   int           `json:"injector_count"`
	DeadTime13V     float64       `json:"dead_time_13v"` // ms
	Regulator       RegulatorType `json:"regulator"`
	BasePressureBar float64       `json:"base_pressure_bar"`
}

// Clone returns a copy with its own outputs slice
func (b BankConfig) Clone() BankConfig {
	c := b
	c.Outputs = append([]int(nil), b.Outputs...)
	return c
}

// VehicleContext carries the read-only physical parameters of the vehicle.
// It is owned by the profile subsystem and only consumed here.
type VehicleContext struct {
	VehicleID     string  `json:"vehicle_id"`
	DisplacementL float64 `json:"displacement_l"`
	Cylinders     int     `json:"cylinders"`
	AFRStoich     float64 `json:"afr_stoich"`
	IntakeTempK   float64 `json:"intake_temp_k"`
	BatteryV      float64 `json:"battery_v"`
}
