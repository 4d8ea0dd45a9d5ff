package physics

import "github.com/tosih/fuelcalc/pkg/models"

// CellInput gathers everything one injection cell computation needs
type CellInput struct {
	MapRel       float64
	VE           float64
	Lambda       float64
	Vehicle      models.VehicleContext
	Bank         models.BankConfig
	TempMotorPct float64
	TempAirPct   float64
	PWMinMs      float64
}

// CellResult is the outcome of one cell computation
type CellResult struct {
	PulseWidthMs float64
	DeltaPBar    float64
	FlowCCMin    float64
	Saturated    bool
}

// ComputePulseWidth runs the full formula chain for one cell: differential
// pressure, effective flow, air mass, fuel mass, theoretical pulse width,
// temperature compensations, dead time, minimum clamp.
func ComputePulseWidth(in CellInput) CellResult {
	tempK := in.Vehicle.IntakeTempK
	if tempK <= 0 {
		tempK = DefaultIntakeTempK
	}

	deltaP := DifferentialPressure(in.MapRel, in.Bank.BasePressureBar, in.Bank.Regulator == models.RegulatorOneToOne)
	flow := InjectorFlow(in.Bank.InjectorFlowCC, deltaP)

	airMass := AirMassPerCylinder(in.Vehicle.DisplacementL, in.Vehicle.Cylinders,
		AbsolutePressurePa(in.MapRel), tempK, in.VE)
	fuelMass := FuelMass(airMass, AFRTarget(in.Vehicle.AFRStoich, in.Lambda))

	pw, noFlow := PulseWidthTheoretical(fuelMass, flow)
	if noFlow {
		// No differential pressure means no deliverable fuel; the cell
		// pins at the minimum drivable pulse.
		return CellResult{PulseWidthMs: in.PWMinMs, DeltaPBar: deltaP, Saturated: true}
	}

	pw = ApplyCompensations(pw, in.TempMotorPct, in.TempAirPct)
	pw, clamped := FinalPulseWidth(pw, in.Bank.DeadTime13V, DeadTimeExtra(in.Vehicle.BatteryV), in.PWMinMs)

	return CellResult{
		PulseWidthMs: pw,
		DeltaPBar:    deltaP,
		FlowCCMin:    flow,
		Saturated:    clamped,
	}
}
