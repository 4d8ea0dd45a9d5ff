// Package physics implements the injection formula chain: manifold pressure
// to air mass, air mass to fuel mass, fuel mass to injector pulse width.
// Every function is pure and deterministic; saturation is reported as a flag,
// never as an error.
package physics

import "math"

const (
	// GasConstantAir is R for dry air in J/(kg·K)
	GasConstantAir = 287.0

	// FuelDensityMgPerCC converts injector volume flow to mass flow
	// (gasoline, 745 kg/m³).
	FuelDensityMgPerCC = 745.0

	// ReferencePressureBar is the pressure injector flow is rated at
	ReferencePressureBar = 3.0

	// DefaultIntakeTempK is used when the vehicle profile supplies no
	// intake air temperature (20 °C).
	DefaultIntakeTempK = 293.15

	// DeadTimeVoltSlope adds opening delay per volt below the 13 V
	// reference the dead time is specified at.
	DeadTimeVoltSlope = 0.04 // ms/V

	// NominalBatteryV is the dead-time reference voltage
	NominalBatteryV = 13.0
)

// AbsolutePressureBar converts relative manifold pressure to absolute
func AbsolutePressureBar(mapRel float64) float64 {
	return 1 + mapRel
}

// AbsolutePressurePa converts relative manifold pressure to absolute pascal
func AbsolutePressurePa(mapRel float64) float64 {
	return AbsolutePressureBar(mapRel) * 1e5
}

// DifferentialPressure returns the pressure across the injector in bar.
// A 1:1 regulator tracks manifold pressure, so the differential is constant;
// a fixed regulator loses differential as boost rises and may reach zero or
// below.
func DifferentialPressure(mapRel, baseBar float64, oneToOne bool) float64 {
	if oneToOne {
		return baseBar
	}
	return baseBar - mapRel
}

// InjectorFlow returns the effective flow in cc/min at the given differential
// pressure for an injector rated nominalCCMin at the 3 bar reference.
// Zero or negative differential means no flow.
func InjectorFlow(nominalCCMin, deltaPBar float64) float64 {
	if deltaPBar <= 0 {
		return 0
	}
	return nominalCCMin * math.Sqrt(deltaPBar/ReferencePressureBar)
}

// FlowMgPerMs converts a volume flow in cc/min to a mass flow in mg/ms
func FlowMgPerMs(ccMin float64) float64 {
	return ccMin * FuelDensityMgPerCC / 60000.0
}

// AirMassPerCylinder returns the inducted air mass in kg for one cylinder
// fill, from the ideal gas law scaled by volumetric efficiency.
func AirMassPerCylinder(dispL float64, cylinders int, absPa, tempK, ve float64) float64 {
	if cylinders <= 0 || tempK <= 0 {
		return 0
	}
	volM3 := dispL / float64(cylinders) / 1000.0
	return absPa * volM3 * ve / (GasConstantAir * tempK)
}

// AFRTarget returns the targeted air-fuel ratio
func AFRTarget(afrStoich, lambda float64) float64 {
	return afrStoich * lambda
}

// FuelMass returns the fuel mass in kg for an air mass and AFR target
func FuelMass(airMassKg, afrTarget float64) float64 {
	if afrTarget <= 0 {
		return 0
	}
	return airMassKg / afrTarget
}

// PulseWidthTheoretical returns the raw opening time in ms for a fuel mass
// and an effective injector flow. Zero flow cannot deliver fuel: the result
// is 0 with the saturated flag set, and the caller clamps to its minimum.
func PulseWidthTheoretical(fuelMassKg, flowCCMin float64) (float64, bool) {
	flowMgMs := FlowMgPerMs(flowCCMin)
	if flowMgMs <= 0 {
		return 0, true
	}
	return fuelMassKg * 1e6 / flowMgMs, false
}

// ApplyCompensations scales a pulse width by engine and air temperature
// correction percentages (0.05 = +5%).
func ApplyCompensations(pw, tempMotorPct, tempAirPct float64) float64 {
	return pw * (1 + tempMotorPct) * (1 + tempAirPct)
}

// DeadTimeExtra returns the additional opening delay in ms for battery
// voltage below the 13 V reference. Voltage above reference never reduces
// the specified dead time.
func DeadTimeExtra(batteryV float64) float64 {
	if batteryV >= NominalBatteryV || batteryV <= 0 {
		return 0
	}
	return (NominalBatteryV - batteryV) * DeadTimeVoltSlope
}

// FinalPulseWidth adds dead time and clamps to the minimum drivable pulse.
// The second return reports whether the clamp engaged.
func FinalPulseWidth(pwComp, deadTime13V, deadTimeExtra, pwMin float64) (float64, bool) {
	pw := pwComp + deadTime13V + deadTimeExtra
	if pw < pwMin {
		return pwMin, true
	}
	return pw, false
}
