// Package units provides shared constants and validation for volume units
package units

// Unit constants
const (
	CY = "cy"
	M3 = "m3"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{CY, M3}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "cy, m3"
}

// ConvertVolume converts a volume from cubic yards to the target units
// The engine computes and stores volumes in cy (cubic yards)
func ConvertVolume(volumeCy float64, targetUnits string) float64 {
	switch targetUnits {
	case M3:
		return volumeCy * 0.764554857984 // cy to m³ (0.9144³)
	case CY:
		return volumeCy
	default:
		return volumeCy // default to cy if unknown unit
	}
}
