package calc

import (
	"fmt"
	"math"
)

// Zambretti forecast texts, indexed by the letter code A..Z of the
// original Negretti & Zambra forecaster.
var zambrettiText = [...]string{
	"Settled fine",
	"Fine weather",
	"Becoming fine",
	"Fine, becoming less settled",
	"Fine, possible showers",
	"Fairly fine, improving",
	"Fairly fine, possible showers early",
	"Fairly fine, showery later",
	"Showery early, improving",
	"Changeable, mending",
	"Fairly fine, showers likely",
	"Rather unsettled clearing later",
	"Unsettled, probably improving",
	"Showery, bright intervals",
	"Showery, becoming less settled",
	"Changeable, some rain",
	"Unsettled, short fine intervals",
	"Unsettled, rain later",
	"Unsettled, some rain",
	"Mostly very unsettled",
	"Occasional rain, worsening",
	"Rain at times, very unsettled",
	"Rain at frequent intervals",
	"Rain, very unsettled",
	"Stormy, may improve",
	"Stormy, much rain",
}

// Forecast icon codes follow the weather-display convention used by the
// report skins: 0 sunny, 1 partly cloudy, 2 cloudy, 3 rain, 4 storm.
func zambrettiIcon(code int) int {
	switch {
	case code <= 2:
		return 0
	case code <= 9:
		return 1
	case code <= 17:
		return 2
	case code <= 23:
		return 3
	default:
		return 4
	}
}

// PressureTrend classifies a 3-hour barometric change.
type PressureTrend int

const (
	TrendSteady PressureTrend = iota
	TrendRising
	TrendFalling
)

// ClassifyTrend buckets a 3h pressure delta (hPa). The 1.6 hPa threshold is
// the conventional Zambretti discriminator.
func ClassifyTrend(delta3hHPa float64) PressureTrend {
	switch {
	case delta3hHPa >= 1.6:
		return TrendRising
	case delta3hHPa <= -1.6:
		return TrendFalling
	default:
		return TrendSteady
	}
}

// ZambrettiForecast maps sea-level pressure and its 3h trend to a forecast
// rule: an icon code and a short text. Pressure outside 947..1050 hPa is
// outside the instrument range the tables were built for.
func ZambrettiForecast(pressureHPa float64, trend PressureTrend) (icon int, text string, err error) {
	if pressureHPa < 947 || pressureHPa > 1050 {
		return 0, "", fmt.Errorf("pressure %.1f hPa outside forecaster range", pressureHPa)
	}

	var z float64
	switch trend {
	case TrendFalling:
		z = 127 - 0.12*pressureHPa
	case TrendRising:
		z = 185 - 0.16*pressureHPa
	default:
		z = 144 - 0.13*pressureHPa
	}

	code := int(math.Round(z))
	if code < 0 {
		code = 0
	}
	if code > len(zambrettiText)-1 {
		code = len(zambrettiText) - 1
	}
	return zambrettiIcon(code), zambrettiText[code], nil
}
