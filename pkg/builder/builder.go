// Package builder assembles calibration maps from the physics chain, the
// axis layout and the persisted surfaces. A build is a pure function of its
// context: identical inputs produce identical matrices, so results are
// memoized by content hash.
package builder

import (
	"fmt"
	"sync"

	"github.com/tosih/fuelcalc/pkg/axis"
	"github.com/tosih/fuelcalc/pkg/models"
	"github.com/tosih/fuelcalc/pkg/physics"
	"github.com/tosih/fuelcalc/pkg/surface"
	"github.com/tosih/fuelcalc/pkg/validate"
)

// State tracks a build through its lifecycle
type State int

const (
	StateCollecting State = iota
	StateComputing
	StateValidating
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateComputing:
		return "computing"
	case StateValidating:
		return "validating"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// DefaultPWMinMs is the minimum drivable injector pulse
const DefaultPWMinMs = 0.2

// DefaultRefRPM is the reference engine speed for 1D builds when the
// context carries no rpm axis to take a median of.
const DefaultRefRPM = 3000.0

// Ignition curve constants: base advance at idle, full centrifugal advance
// reached at the peak rpm, and load retard per bar of relative manifold
// pressure.
const (
	ignBaseAdvance = 10.0
	ignRPMAdvance  = 24.0
	ignIdleRPM     = 800.0
	ignPeakRPM     = 6000.0
	ignMAPRetard   = 10.0
)

// Options tune one build without touching the physical inputs
type Options struct {
	SampleMode       surface.SampleMode `json:"sample_mode"`
	ClosedLoop       bool               `json:"closed_loop"`
	ClosedLoopFactor float64            `json:"closed_loop_factor"` // 0 = 1.0
	GlobalFactor     float64            `json:"global_factor"`      // 0 = 1.0
	DeltaMode        bool               `json:"delta_mode"`
	RefRPM           float64            `json:"ref_rpm"` // 0 = median of enabled rpm axis
	PWMinMs          float64            `json:"pw_min_ms"`
	TempMotorPct     float64            `json:"temp_motor_pct"`
	TempAirPct       float64            `json:"temp_air_pct"`
	RPMUserAdjust    []float64          `json:"rpm_user_adjust,omitempty"` // per rpm slot, 0 entries = 1.0
	Smoothness       float64            `json:"smoothness"`
}

// Context carries every input of one map build. It replaces any ambient
// session state: two builds with equal contexts and surface versions are
// interchangeable.
type Context struct {
	Vehicle    models.VehicleContext `json:"vehicle"`
	Bank       models.BankConfig     `json:"bank"`
	TypeConfig models.MapTypeConfig  `json:"-"`
	MapType    models.MapType        `json:"map_type"`
	MapAxis    models.AxisDefinition `json:"map_axis"`
	RPMAxis    models.AxisDefinition `json:"rpm_axis"`
	Options    Options               `json:"options"`
}

// Build is the outcome of one map build
type Build struct {
	State    State
	Map      *models.FuelMap
	Issues   []validate.Issue
	Err      error
	Hash     string
	CacheHit bool
}

// Builder computes maps against one surface store
type Builder struct {
	surfaces *surface.Store

	mu    sync.Mutex
	cache map[string]*Build
}

// New creates a builder over a surface store
func New(surfaces *surface.Store) *Builder {
	return &Builder{surfaces: surfaces, cache: make(map[string]*Build)}
}

// Run executes a full build: input checks, per-cell computation, validation.
// The returned build is Ready or Failed; a Failed build still carries every
// issue found so the caller can report them.
func (b *Builder) Run(ctx Context) *Build {
	ctx.MapType = ctx.TypeConfig.Type
	hash, err := contextHash(ctx, b.surfaces)
	if err == nil {
		b.mu.Lock()
		if hit := b.cache[hash]; hit != nil {
			b.mu.Unlock()
			out := *hit
			out.Map = hit.Map.Clone()
			out.CacheHit = true
			return &out
		}
		b.mu.Unlock()
	}

	build := &Build{State: StateCollecting, Hash: hash}
	if err := b.collect(&ctx); err != nil {
		build.State = StateFailed
		build.Err = err
		return build
	}

	build.State = StateComputing
	m, err := b.compute(ctx)
	if err != nil {
		build.State = StateFailed
		build.Err = err
		return build
	}
	build.Map = m

	build.State = StateValidating
	cfg := ctx.TypeConfig
	if ctx.Options.DeltaMode {
		// Delta lines swing negative below atmospheric pressure
		cfg.MinValue -= cfg.MaxValue
	}
	build.Issues = validate.CheckMap(m, cfg, ctx.Options.Smoothness)
	if validate.HasErrors(build.Issues) {
		build.State = StateFailed
		build.Err = fmt.Errorf("map failed validation with %d issues", len(build.Issues))
		return build
	}

	build.State = StateReady
	if hash != "" {
		b.mu.Lock()
		cached := *build
		cached.Map = m.Clone()
		b.cache[hash] = &cached
		b.mu.Unlock()
	}
	return build
}

// collect verifies the inputs before any computation runs
func (b *Builder) collect(ctx *Context) error {
	if err := axis.EnsureInterpolable(ctx.MapAxis); err != nil {
		return err
	}
	if ctx.TypeConfig.Dimension == models.Dim2D {
		if err := axis.EnsureInterpolable(ctx.RPMAxis); err != nil {
			return err
		}
	}
	if ctx.Options.RefRPM == 0 {
		ref, err := axis.Median(ctx.RPMAxis)
		if err != nil {
			if ctx.TypeConfig.Dimension == models.Dim2D {
				return fmt.Errorf("choosing reference rpm: %w", err)
			}
			// 1D builds may run without any rpm axis at all
			ref = DefaultRefRPM
		}
		ctx.Options.RefRPM = ref
	}
	if ctx.Options.PWMinMs == 0 {
		ctx.Options.PWMinMs = DefaultPWMinMs
	}
	if ctx.Options.GlobalFactor == 0 {
		ctx.Options.GlobalFactor = 1
	}
	if ctx.Options.ClosedLoopFactor == 0 {
		ctx.Options.ClosedLoopFactor = 1
	}
	return nil
}

func (b *Builder) compute(ctx Context) (*models.FuelMap, error) {
	switch {
	case ctx.TypeConfig.Dimension == models.Dim1D:
		return b.build1D(ctx)
	case ctx.TypeConfig.Type == models.MapIgnition:
		return b.buildIgnition(ctx)
	case ctx.TypeConfig.Type == models.MapLambda:
		return b.buildLambda(ctx)
	case ctx.Options.ClosedLoop:
		return b.buildClosedLoop2D(ctx)
	default:
		return b.buildOpenLoop2D(ctx)
	}
}

func (b *Builder) newMap(ctx Context) *models.FuelMap {
	m := &models.FuelMap{
		VehicleID:      ctx.Vehicle.VehicleID,
		Type:           ctx.TypeConfig.Type,
		Bank:           ctx.Bank.ID,
		Dimension:      ctx.TypeConfig.Dimension,
		Unit:           ctx.TypeConfig.Unit,
		MapAxis:        ctx.MapAxis.Clone(),
		CalculatedWith: calculatedWith(ctx),
	}
	n := ctx.MapAxis.Len()
	if ctx.TypeConfig.Dimension == models.Dim2D {
		m.RPMAxis = ctx.RPMAxis.Clone()
		m.Matrix = make([][]float64, n)
		m.Saturated = make([][]bool, n)
		for i := range m.Matrix {
			m.Matrix[i] = make([]float64, ctx.RPMAxis.Len())
			m.Saturated[i] = make([]bool, ctx.RPMAxis.Len())
		}
	} else {
		m.Line = make([]float64, n)
		m.SaturatedLine = make([]bool, n)
	}
	return m
}

func calculatedWith(ctx Context) string {
	mode := "open-loop"
	if ctx.Options.ClosedLoop {
		mode = "closed-loop"
	}
	sampling := "bilinear"
	if ctx.Options.SampleMode == surface.SampleNearest {
		sampling = "nearest"
	}
	return fmt.Sprintf("fuelcalc %s/%s", mode, sampling)
}

// fuelCell runs the physics pipeline for one (mapRel, ve, lambda) triple
func fuelCell(ctx Context, mapRel, ve, lambda float64) physics.CellResult {
	return physics.ComputePulseWidth(physics.CellInput{
		MapRel:       mapRel,
		VE:           ve,
		Lambda:       lambda,
		Vehicle:      ctx.Vehicle,
		Bank:         ctx.Bank,
		TempMotorPct: ctx.Options.TempMotorPct,
		TempAirPct:   ctx.Options.TempAirPct,
		PWMinMs:      ctx.Options.PWMinMs,
	})
}

// build1D computes the injection line over the MAP axis at the reference rpm
func (b *Builder) build1D(ctx Context) (*models.FuelMap, error) {
	m := b.newMap(ctx)
	refRPM := ctx.Options.RefRPM
	vid := ctx.Vehicle.VehicleID

	for i, mapRel := range ctx.MapAxis.Values {
		ve := b.surfaces.SampleVE(vid, mapRel, refRPM, ctx.Options.SampleMode)
		lambda := b.surfaces.SampleLambda(vid, mapRel, refRPM, ctx.Options.SampleMode)
		cell := fuelCell(ctx, mapRel, ve, lambda)
		m.Line[i] = cell.PulseWidthMs
		m.SaturatedLine[i] = cell.Saturated
	}

	if ctx.Options.DeltaMode {
		// Delta mode stores enrichment relative to atmospheric manifold
		// pressure instead of absolute pulse widths.
		ve0 := b.surfaces.SampleVE(vid, 0, refRPM, ctx.Options.SampleMode)
		lambda0 := b.surfaces.SampleLambda(vid, 0, refRPM, ctx.Options.SampleMode)
		base := fuelCell(ctx, 0, ve0, lambda0).PulseWidthMs
		for i := range m.Line {
			m.Line[i] -= base
		}
	}
	return m, nil
}

// buildOpenLoop2D projects the 1D line across the rpm axis using VE ratios,
// skipping the per-cell AFR recomputation. This keeps the 2D grid consistent
// with the 1D line at the reference rpm column.
func (b *Builder) buildOpenLoop2D(ctx Context) (*models.FuelMap, error) {
	m := b.newMap(ctx)
	refRPM := ctx.Options.RefRPM
	vid := ctx.Vehicle.VehicleID

	for i, mapRel := range ctx.MapAxis.Values {
		veRef := b.surfaces.SampleVE(vid, mapRel, refRPM, ctx.Options.SampleMode)
		lambdaRef := b.surfaces.SampleLambda(vid, mapRel, refRPM, ctx.Options.SampleMode)
		base := fuelCell(ctx, mapRel, veRef, lambdaRef)

		for j, rpm := range ctx.RPMAxis.Values {
			ratio := 1.0
			if veRef > 0 {
				ratio = b.surfaces.SampleVE(vid, mapRel, rpm, ctx.Options.SampleMode) / veRef
			}
			pw := base.PulseWidthMs * ratio * ctx.Options.GlobalFactor
			saturated := base.Saturated
			if pw < ctx.Options.PWMinMs {
				// Scaling can undershoot the minimum drivable pulse
				pw = ctx.Options.PWMinMs
				saturated = true
			}
			m.Matrix[i][j] = pw
			m.Saturated[i][j] = saturated
		}
	}
	return m, nil
}

// buildClosedLoop2D runs the full formula chain per cell with a
// cell-specific lambda target derived from the lambda mesh.
func (b *Builder) buildClosedLoop2D(ctx Context) (*models.FuelMap, error) {
	m := b.newMap(ctx)

	for i, mapRel := range ctx.MapAxis.Values {
		for j, rpm := range ctx.RPMAxis.Values {
			ve := b.surfaces.SampleVE(ctx.Vehicle.VehicleID, mapRel, rpm, ctx.Options.SampleMode)
			lambda := b.lambdaTarget(ctx, mapRel, rpm, j)
			cell := fuelCell(ctx, mapRel, ve, lambda)
			m.Matrix[i][j] = cell.PulseWidthMs
			m.Saturated[i][j] = cell.Saturated
		}
	}
	return m, nil
}

// lambdaTarget composes the closed-loop per-cell target: the per-MAP base
// curve scaled by the closed-loop factor, the rpm shape of the lambda mesh
// and any per-slot user adjustment. The result stays inside the physical
// lambda window.
func (b *Builder) lambdaTarget(ctx Context, mapRel, rpm float64, rpmSlot int) float64 {
	vid := ctx.Vehicle.VehicleID
	mode := ctx.Options.SampleMode
	refRPM := ctx.Options.RefRPM

	base := b.surfaces.SampleLambda(vid, mapRel, refRPM, mode)
	shape := 1.0
	if base > 0 {
		shape = b.surfaces.SampleLambda(vid, mapRel, rpm, mode) / base
	}

	adjust := 1.0
	if rpmSlot < len(ctx.Options.RPMUserAdjust) && ctx.Options.RPMUserAdjust[rpmSlot] > 0 {
		adjust = ctx.Options.RPMUserAdjust[rpmSlot]
	}

	lambda := base * ctx.Options.ClosedLoopFactor * shape * adjust
	if lambda < 0.6 {
		lambda = 0.6
	}
	if lambda > 1.5 {
		lambda = 1.5
	}
	return lambda
}

// buildIgnition fills the spark advance grid: base advance plus an rpm ramp,
// pulled back proportionally to load.
func (b *Builder) buildIgnition(ctx Context) (*models.FuelMap, error) {
	m := b.newMap(ctx)

	for i, mapRel := range ctx.MapAxis.Values {
		for j, rpm := range ctx.RPMAxis.Values {
			ramp := (rpm - ignIdleRPM) / (ignPeakRPM - ignIdleRPM)
			if ramp < 0 {
				ramp = 0
			}
			if ramp > 1 {
				ramp = 1
			}
			adv := ignBaseAdvance + ignRPMAdvance*ramp - ignMAPRetard*mapRel
			if adv < ctx.TypeConfig.MinValue {
				adv = ctx.TypeConfig.MinValue
			}
			if adv > ctx.TypeConfig.MaxValue {
				adv = ctx.TypeConfig.MaxValue
			}
			m.Matrix[i][j] = adv
		}
	}
	return m, nil
}

// buildLambda materializes the lambda-target grid itself, closed-loop
// composition included when enabled.
func (b *Builder) buildLambda(ctx Context) (*models.FuelMap, error) {
	m := b.newMap(ctx)

	for i, mapRel := range ctx.MapAxis.Values {
		for j, rpm := range ctx.RPMAxis.Values {
			if ctx.Options.ClosedLoop {
				m.Matrix[i][j] = b.lambdaTarget(ctx, mapRel, rpm, j)
			} else {
				m.Matrix[i][j] = b.surfaces.SampleLambda(ctx.Vehicle.VehicleID, mapRel, rpm, ctx.Options.SampleMode)
			}
		}
	}
	return m, nil
}

// RPMFactors extracts the VE ratio line fRPM(rpm) = VE(refMAP, rpm) /
// VE(refMAP, refRPM), used to project a 1D line across the rpm axis without
// recomputing AFR per cell.
func (b *Builder) RPMFactors(vehicleID string, rpmAxis models.AxisDefinition, refMAP, refRPM float64, mode surface.SampleMode) ([]float64, error) {
	if err := axis.EnsureInterpolable(rpmAxis); err != nil {
		return nil, err
	}
	ref := b.surfaces.SampleVE(vehicleID, refMAP, refRPM, mode)
	out := make([]float64, rpmAxis.Len())
	for j, rpm := range rpmAxis.Values {
		if ref > 0 {
			out[j] = b.surfaces.SampleVE(vehicleID, refMAP, rpm, mode) / ref
		} else {
			out[j] = 1
		}
	}
	return out, nil
}

// InvalidateCache drops every memoized build, e.g. after a surface edit
// that did not go through the store's version counter.
func (b *Builder) InvalidateCache() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache = make(map[string]*Build)
}
