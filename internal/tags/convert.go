package tags

import (
	"fmt"

	"github.com/afroash/weatherwd/internal/models"
)

// UnitSystem selects the display units tags are rendered in. Stored and
// computed values stay metric-wx; conversion happens here, at the edge.
type UnitSystem string

const (
	UnitsMetric UnitSystem = "metric"
	UnitsUS     UnitSystem = "us"
)

// convert maps a metric-wx value into the display system.
func convert(v float64, u models.Unit, sys UnitSystem) (float64, models.Unit) {
	if sys != UnitsUS {
		return v, u
	}
	switch u {
	case models.UnitCelsius:
		return v*9/5 + 32, models.UnitFahrenheit
	case models.UnitMps:
		return v * 2.236936, models.UnitMph
	case models.UnitKmh:
		return v * 0.621371, models.UnitMph
	case models.UnitMm:
		return v / 25.4, models.UnitInch
	case models.UnitMmHr:
		return v / 25.4, models.UnitInHr
	case models.UnitHPa:
		return v * 0.0295299830714, models.UnitInHg
	case models.UnitKm:
		return v * 0.621371, models.UnitMile
	}
	return v, u
}

// unitLabel is the printed suffix for a unit.
func unitLabel(u models.Unit) string {
	switch u {
	case models.UnitCelsius:
		return "°C"
	case models.UnitFahrenheit:
		return "°F"
	case models.UnitPercent:
		return "%"
	case models.UnitMps:
		return " m/s"
	case models.UnitKmh:
		return " km/h"
	case models.UnitMph:
		return " mph"
	case models.UnitMm:
		return " mm"
	case models.UnitInch:
		return " in"
	case models.UnitMmHr:
		return " mm/h"
	case models.UnitInHr:
		return " in/h"
	case models.UnitHPa:
		return " hPa"
	case models.UnitInHg:
		return " inHg"
	case models.UnitWpm2:
		return " W/m²"
	case models.UnitKm:
		return " km"
	case models.UnitMile:
		return " mi"
	case models.UnitDegree:
		return "°"
	case models.UnitKgPerM3:
		return " kg/m³"
	case models.UnitSecond:
		return " s"
	}
	return ""
}

// decimals picks how many fraction digits a unit is conventionally shown with.
func decimals(u models.Unit) int {
	switch u {
	case models.UnitHPa, models.UnitWpm2, models.UnitSecond, models.UnitPercent, models.UnitDegree, models.UnitCount:
		return 0
	case models.UnitInch, models.UnitInHg, models.UnitInHr:
		return 2
	case models.UnitKgPerM3:
		return 3
	}
	return 1
}

// render converts a value to the display system and formats it.
func render(v float64, u models.Unit, sys UnitSystem) models.TagValue {
	cv, cu := convert(v, u, sys)
	return models.TagValue{
		Value:     cv,
		Unit:      cu,
		Formatted: fmt.Sprintf("%.*f%s", decimals(cu), cv, unitLabel(cu)),
	}
}
