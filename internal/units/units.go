// Package units provides shared constants and validation for speed units.
package units

// Unit constants. The pipeline computes speeds in km/h; other units are
// conversions at the reporting boundary.
const (
	KMH = "kmh"
	MPS = "mps"
	MPH = "mph"
)

// ValidUnits contains all valid unit values.
var ValidUnits = []string{KMH, MPS, MPH}

// IsValid checks if the given unit is in the list of valid units.
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for
// error messages.
func GetValidUnitsString() string {
	return "kmh, mps, mph"
}

// ConvertSpeed converts a speed from km/h to the target units. Unknown
// units pass the value through unchanged.
func ConvertSpeed(speedKmh float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return speedKmh / 3.6
	case MPH:
		return speedKmh * 0.62137119223733
	default:
		return speedKmh
	}
}
