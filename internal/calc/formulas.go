package calc

import (
	"fmt"
	"math"
)

// All formulas work in metric-wx units: degree C, percent RH, m/s wind,
// hPa pressure. Each returns an error when its inputs fall outside the
// published domain of validity; the caller records the field as absent.

func cToF(c float64) float64 { return c*9/5 + 32 }
func fToC(f float64) float64 { return (f - 32) * 5 / 9 }

// DewPointC computes the dew point with the Magnus-Tetens approximation.
// Valid for -45..60 C and RH > 0.
func DewPointC(tempC, rh float64) (float64, error) {
	if rh <= 0 || rh > 100 {
		return 0, fmt.Errorf("relative humidity %.1f%% outside (0, 100]", rh)
	}
	if tempC < -45 || tempC > 60 {
		return 0, fmt.Errorf("temperature %.1fC outside Magnus domain", tempC)
	}
	gamma := math.Log(rh/100) + 17.62*tempC/(243.12+tempC)
	return 243.12 * gamma / (17.62 - gamma), nil
}

// HumidexC computes the Canadian humidex. When the computed value does not
// exceed the air temperature, the air temperature is returned (humidex only
// reports added discomfort, never relief).
func HumidexC(tempC, rh float64) (float64, error) {
	td, err := DewPointC(tempC, rh)
	if err != nil {
		return 0, err
	}
	e := 6.11 * math.Exp(5417.753*(1/273.16-1/(273.15+td)))
	h := tempC + 0.5555*(e-10)
	if h < tempC {
		return tempC, nil
	}
	return h, nil
}

// ApparentTempC computes Steadman's apparent temperature ("feels like")
// from temperature, humidity and wind speed (m/s).
func ApparentTempC(tempC, rh, windMps float64) (float64, error) {
	if rh < 0 || rh > 100 {
		return 0, fmt.Errorf("relative humidity %.1f%% outside [0, 100]", rh)
	}
	if windMps < 0 {
		return 0, fmt.Errorf("negative wind speed %.2f", windMps)
	}
	e := rh / 100 * 6.105 * math.Exp(17.27*tempC/(237.7+tempC))
	return tempC + 0.33*e - 0.70*windMps - 4.00, nil
}

// WindChillC computes the 2001 NWS/Environment Canada wind chill. Below the
// domain (temp > 10C or wind <= 4.8 km/h) the air temperature is returned.
func WindChillC(tempC, windMps float64) (float64, error) {
	if windMps < 0 {
		return 0, fmt.Errorf("negative wind speed %.2f", windMps)
	}
	windKmh := windMps * 3.6
	if tempC > 10 || windKmh <= 4.8 {
		return tempC, nil
	}
	v := math.Pow(windKmh, 0.16)
	return 13.12 + 0.6215*tempC - 11.37*v + 0.3965*tempC*v, nil
}

// HeatIndexC computes the NWS heat index. Below 77F the temperature is
// returned unchanged; Steadman's simplified formula applies while its result
// stays under 80F, the Rothfusz regression with the low/high humidity
// adjustments above that.
func HeatIndexC(tempC, rh float64) (float64, error) {
	if rh < 0 || rh > 100 {
		return 0, fmt.Errorf("relative humidity %.1f%% outside [0, 100]", rh)
	}
	temp := cToF(tempC)

	if temp < 77 {
		return tempC, nil
	}

	hi := 0.5 * (temp + 61.0 + ((temp - 68.0) * 1.2) + (rh * 0.094))
	if hi < 80 {
		if hi > temp {
			return fToC(hi), nil
		}
		return tempC, nil
	}

	c1 := -42.379
	c2 := 2.04901523
	c3 := 10.14333127
	c4 := 0.22475541
	c5 := 0.00683783
	c6 := 0.05481717
	c7 := 0.00122874
	c8 := 0.00085282
	c9 := 0.00000199

	hi = c1 + c2*temp + c3*rh - c4*temp*rh - c5*temp*temp - c6*rh*rh +
		c7*temp*temp*rh + c8*temp*rh*rh - c9*temp*temp*rh*rh

	if rh < 13 && temp >= 80 && temp <= 112 {
		hi -= ((13 - rh) / 4) * math.Sqrt((17-math.Abs(temp-95.0))/17)
	} else if rh > 80 && temp >= 80 && temp <= 87 {
		hi += ((rh - 85.0) / 10) * ((87.0 - temp) / 5)
	}

	if hi > temp {
		return fToC(hi), nil
	}
	return tempC, nil
}

// WetBulbC computes the wet-bulb temperature with Stull's 2011 empirical
// fit, valid for RH 5..99% and temperatures -20..50C.
func WetBulbC(tempC, rh float64) (float64, error) {
	if rh < 5 || rh > 99 {
		return 0, fmt.Errorf("relative humidity %.1f%% outside Stull domain [5, 99]", rh)
	}
	if tempC < -20 || tempC > 50 {
		return 0, fmt.Errorf("temperature %.1fC outside Stull domain [-20, 50]", tempC)
	}
	return tempC*math.Atan(0.151977*math.Sqrt(rh+8.313659)) +
		math.Atan(tempC+rh) -
		math.Atan(rh-1.676331) +
		0.00391838*math.Pow(rh, 1.5)*math.Atan(0.023101*rh) -
		4.686035, nil
}

// AirDensityKgM3 computes moist air density from temperature, humidity and
// station pressure using the partial-pressure form of the ideal gas law.
func AirDensityKgM3(tempC, rh, pressureHPa float64) (float64, error) {
	if pressureHPa < 500 || pressureHPa > 1100 {
		return 0, fmt.Errorf("pressure %.1f hPa implausible", pressureHPa)
	}
	if rh < 0 || rh > 100 {
		return 0, fmt.Errorf("relative humidity %.1f%% outside [0, 100]", rh)
	}
	tK := tempC + 273.15
	svp := 6.1078 * math.Pow(10, 7.5*tempC/(237.3+tempC)) // hPa
	pv := rh / 100 * svp
	pd := pressureHPa - pv
	const rDry = 287.058
	const rVapor = 461.495
	return pd*100/(rDry*tK) + pv*100/(rVapor*tK), nil
}

// StandardPressureHPa estimates sea-level-reduced station pressure for an
// altitude, used when the barometer is absent from a snapshot.
func StandardPressureHPa(altitudeM float64) float64 {
	return 1013.25 * math.Pow(1-2.25577e-5*altitudeM, 5.25588)
}

// DayNightSplit mirrors the warmest-night/coldest-day bookkeeping: the
// temperature lands in the day slot between 06:00 (exclusive) and 18:00
// (inclusive) local time, otherwise in the night slot. A record stamped
// exactly 06:00 closes the night interval, hence the one-second shift.
func DayNightSplit(tempC float64, hourOfRecordMinus1s int) (day, night *float64) {
	v := tempC
	if hourOfRecordMinus1s < 6 || hourOfRecordMinus1s > 17 {
		return nil, &v
	}
	return &v, nil
}

// WindrunKm returns the wind-travel distance for one interval.
func WindrunKm(windMps float64, intervalSecs float64) float64 {
	return windMps * intervalSecs / 1000
}
