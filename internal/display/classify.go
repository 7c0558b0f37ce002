package display

// Threshold classifiers. All ranges are inclusive: a value sitting
// exactly on a boundary is normal.

// TemperatureStatus classifies degrees Celsius against the 18–30 band.
func TemperatureStatus(c float64) string {
	switch {
	case c < 18:
		return StatusLow
	case c > 30:
		return StatusHigh
	default:
		return StatusNormal
	}
}

// HumidityStatus classifies relative humidity against the 40–80 band.
func HumidityStatus(pct float64) string {
	switch {
	case pct < 40:
		return StatusLow
	case pct > 80:
		return StatusHigh
	default:
		return StatusNormal
	}
}

// LightStatus classifies lux against the 200–1000 band.
func LightStatus(lux float64) string {
	switch {
	case lux < 200:
		return StatusLow
	case lux > 1000:
		return StatusHigh
	default:
		return StatusNormal
	}
}

// WaterLevelStatus classifies tank fill percent against the 30–90 band.
func WaterLevelStatus(pct float64) string {
	switch {
	case pct < 30:
		return StatusLow
	case pct > 90:
		return StatusHigh
	default:
		return StatusNormal
	}
}

// SoilMoistureStatus classifies soil moisture percent against the 30–80
// band. Both soil probes share it.
func SoilMoistureStatus(pct float64) string {
	switch {
	case pct < 30:
		return StatusLow
	case pct > 80:
		return StatusHigh
	default:
		return StatusNormal
	}
}
