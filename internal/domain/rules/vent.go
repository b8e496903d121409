package rules

import "github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"

// VentTarget caps a pressure-target device's goal for this update:
// (target − outlet) × transferRatio above the current outlet pressure.
// ok is false when the outlet is already at or above target, so a vent
// never lowers its outlet.
func VentTarget(outletPressure, targetPressure, transferRatio float64) (capped float64, ok bool) {
	if !(targetPressure > outletPressure) {
		return outletPressure, false
	}
	if transferRatio > 1 {
		transferRatio = 1
	}
	if !(transferRatio > 0) {
		return outletPressure, false
	}
	goal := (targetPressure - outletPressure) * transferRatio
	return outletPressure + goal, true
}

// PumpGasTo moves gas from src toward dst until dst reaches the capped
// target for this update. Returns the moles moved; dst pressure never
// drops.
func PumpGasTo(src, dst *gas.Mixture, targetPressure, transferRatio float64) float64 {
	if src == nil || dst == nil {
		return 0
	}
	goal, ok := VentTarget(dst.Pressure(), targetPressure, transferRatio)
	if !ok {
		return 0
	}
	return src.TransferTo(dst, goal)
}
