package calc

import (
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/afroash/weatherwd/internal/models"
)

// MissingWindPolicy picks how windrun treats an interval with no wind speed
// observation: count it as zero travel (legacy parity, keeps cumulative
// totals intact) or leave the interval's contribution out.
type MissingWindPolicy string

const (
	MissingWindZero   MissingWindPolicy = "zero"
	MissingWindAbsent MissingWindPolicy = "absent"
)

// Params is the slowly-changing configuration the calculator reads.
type Params struct {
	Latitude             float64
	Longitude            float64
	AltitudeM            float64
	Bounds               models.BoundaryRule
	SunshineThresholdWm2 float64
	RainRateWindow       int
	MissingWind          MissingWindPolicy
	Turbidity            float64 // Bras atmospheric turbidity, 2 = clear sky
}

// PressurePoint is one barometer sample retained for trend detection.
type PressurePoint struct {
	Time time.Time
	HPa  float64
}

// RollingState is the mutable state the calculator threads between archive
// intervals: rain-rate smoothing window, pressure trend history and storm
// bookkeeping. The augmentation service owns it and rebuilds it from the
// store on cold start; Calculate never mutates its argument.
type RollingState struct {
	RainRates    []float64
	Pressures    []PressurePoint
	StormRain    float64
	StormStart   time.Time
	LastRainTime time.Time
}

func (s RollingState) copy() RollingState {
	out := s
	out.RainRates = append([]float64(nil), s.RainRates...)
	out.Pressures = append([]PressurePoint(nil), s.Pressures...)
	return out
}

// Calculator derives supplementary fields from an observation snapshot and
// the previous supplementary record.
type Calculator struct {
	params Params
	logger zerolog.Logger
}

// New creates a Calculator.
func New(params Params, logger zerolog.Logger) *Calculator {
	if params.Turbidity == 0 {
		params.Turbidity = 2
	}
	if params.RainRateWindow <= 0 {
		params.RainRateWindow = 5
	}
	if params.MissingWind == "" {
		params.MissingWind = MissingWindZero
	}
	return &Calculator{params: params, logger: logger}
}

// Calculate produces the supplementary record for one archive interval.
// A failing field never aborts the record: it is left absent and reported
// in the returned slice. prev may be nil at cold start.
func (c *Calculator) Calculate(snap *models.Snapshot, prev *models.Record, state RollingState) (*models.Record, RollingState, []*models.ComputationError) {
	rec := &models.Record{Time: snap.Time, Interval: snap.Interval}
	st := state.copy()
	var errs []*models.ComputationError

	fail := func(field models.Field, inputs map[models.ObsType]float64, err error) {
		ce := &models.ComputationError{Field: field, Time: snap.Time, Inputs: inputs, Err: err}
		errs = append(errs, ce)
		c.logger.Warn().
			Str("field", string(field)).
			Time("timestamp", snap.Time).
			Interface("inputs", inputs).
			Err(err).
			Msg("Derived field computation failed")
	}

	temp, hasTemp := snap.Get(models.ObsOutTemp)
	rh, hasRH := snap.Get(models.ObsOutHumidity)
	wind, hasWind := snap.Get(models.ObsWindSpeed)
	rain, hasRain := snap.Get(models.ObsRain)
	pressure, hasPressure := snap.Get(models.ObsBarometer)
	radiation, hasRadiation := snap.Get(models.ObsSolarRadiation)

	if hasTemp && hasRH {
		in := map[models.ObsType]float64{models.ObsOutTemp: temp, models.ObsOutHumidity: rh}
		if v, err := DewPointC(temp, rh); err != nil {
			fail(models.FieldDewPoint, in, err)
		} else {
			rec.DewPoint = models.Float(v)
		}
		if v, err := HumidexC(temp, rh); err != nil {
			fail(models.FieldHumidex, in, err)
		} else {
			rec.Humidex = models.Float(v)
		}
		if v, err := HeatIndexC(temp, rh); err != nil {
			fail(models.FieldHeatIndex, in, err)
		} else {
			rec.HeatIndex = models.Float(v)
		}
		if v, err := WetBulbC(temp, rh); err != nil {
			fail(models.FieldWetBulb, in, err)
		} else {
			rec.WetBulb = models.Float(v)
		}
	}

	if hasTemp && hasRH && hasWind {
		in := map[models.ObsType]float64{models.ObsOutTemp: temp, models.ObsOutHumidity: rh, models.ObsWindSpeed: wind}
		if v, err := ApparentTempC(temp, rh, wind); err != nil {
			fail(models.FieldAppTemp, in, err)
		} else {
			rec.AppTemp = models.Float(v)
		}
	}

	if hasTemp && hasWind {
		in := map[models.ObsType]float64{models.ObsOutTemp: temp, models.ObsWindSpeed: wind}
		if v, err := WindChillC(temp, wind); err != nil {
			fail(models.FieldWindChill, in, err)
		} else {
			rec.WindChill = models.Float(v)
		}
	}

	if hasTemp && hasRH {
		p := pressure
		if !hasPressure {
			p = StandardPressureHPa(c.params.AltitudeM)
		}
		in := map[models.ObsType]float64{models.ObsOutTemp: temp, models.ObsOutHumidity: rh, models.ObsBarometer: p}
		if v, err := AirDensityKgM3(temp, rh, p); err != nil {
			fail(models.FieldAirDensity, in, err)
		} else {
			rec.AirDensity = models.Float(v)
		}
	}

	if hasTemp {
		hour := snap.Time.In(c.params.Bounds.Loc()).Add(-time.Second).Hour()
		rec.OutTempDay, rec.OutTempNight = DayNightSplit(temp, hour)
	}

	c.windrun(rec, prev, snap, wind, hasWind)
	st = c.rainRate(rec, snap, rain, hasRain, st)
	st = c.storm(rec, snap, rain, hasRain, st)
	st = c.forecast(rec, snap, pressure, hasPressure, st, fail)

	if hasRadiation {
		secs := 0.0
		if radiation >= c.params.SunshineThresholdWm2 {
			secs = snap.Interval.Seconds()
		}
		rec.SunshineSecs = models.Float(secs)
	}

	rec.MaxSolarRad = models.Float(MaxSolarRadWm2(c.params.Latitude, c.params.Longitude, snap.Time, c.params.Turbidity))

	if text, ok := snap.Text[models.ObsCurrentText]; ok {
		rec.CurrentText = models.Str(text)
	}

	return rec, st, errs
}

// windrun carries the cumulative day total forward, resetting exactly on the
// day boundary. A record on the boundary belongs to the day it starts.
func (c *Calculator) windrun(rec *models.Record, prev *models.Record, snap *models.Snapshot, wind float64, hasWind bool) {
	base := 0.0
	if prev != nil && prev.WindrunDay != nil &&
		c.params.Bounds.DayStart(snap.Time).Equal(c.params.Bounds.DayStart(prev.Time)) {
		base = *prev.WindrunDay
	}

	if !hasWind {
		if c.params.MissingWind == MissingWindAbsent {
			rec.WindrunDay = models.Float(base)
			return
		}
		// zero-contribution policy: the total is intact, the interval adds
		// no distance
		c.logger.Debug().
			Time("timestamp", snap.Time).
			Msg("Wind speed missing, windrun contribution counted as zero")
		rec.WindrunDay = models.Float(base)
		return
	}
	rec.WindrunDay = models.Float(base + WindrunKm(wind, snap.Interval.Seconds()))
}

// rainRate smooths the instantaneous interval rate over a trailing window.
func (c *Calculator) rainRate(rec *models.Record, snap *models.Snapshot, rain float64, hasRain bool, st RollingState) RollingState {
	inst := 0.0
	if hasRain {
		hours := snap.Interval.Hours()
		if hours > 0 {
			inst = rain / hours
		}
	} else {
		c.logger.Debug().
			Time("timestamp", snap.Time).
			Msg("Rain missing, rate contribution counted as zero")
	}
	st.RainRates = append(st.RainRates, inst)
	if n := len(st.RainRates) - c.params.RainRateWindow; n > 0 {
		st.RainRates = st.RainRates[n:]
	}
	rec.RainRate = models.Float(stat.Mean(st.RainRates, nil))
	return st
}

// storm accumulates rain from the first wet interval until 24 dry hours
// have passed, after which the storm state clears.
func (c *Calculator) storm(rec *models.Record, snap *models.Snapshot, rain float64, hasRain bool, st RollingState) RollingState {
	if hasRain && rain > 0 {
		if st.StormStart.IsZero() {
			st.StormStart = snap.Time
			st.StormRain = 0
		}
		st.StormRain += rain
		st.LastRainTime = snap.Time
	} else if !st.StormStart.IsZero() && snap.Time.Sub(st.LastRainTime) >= 24*time.Hour {
		st.StormStart = time.Time{}
		st.StormRain = 0
		st.LastRainTime = time.Time{}
	}

	if !st.StormStart.IsZero() {
		rec.StormRain = models.Float(st.StormRain)
		start := st.StormStart
		rec.StormStart = &start
	}
	return st
}

// forecast keeps a short pressure history and runs the Zambretti rule once
// three hours of history exist. Adapter-supplied forecast text wins over the
// local heuristic.
func (c *Calculator) forecast(rec *models.Record, snap *models.Snapshot, pressure float64, hasPressure bool, st RollingState,
	fail func(models.Field, map[models.ObsType]float64, error)) RollingState {

	if text, ok := snap.Text[models.ObsForecastText]; ok {
		rec.ForecastText = models.Str(text)
	}

	if !hasPressure {
		return st
	}

	st.Pressures = append(st.Pressures, PressurePoint{Time: snap.Time, HPa: pressure})
	cutoff := snap.Time.Add(-210 * time.Minute)
	for len(st.Pressures) > 0 && st.Pressures[0].Time.Before(cutoff) {
		st.Pressures = st.Pressures[1:]
	}

	oldest := st.Pressures[0]
	if snap.Time.Sub(oldest.Time) < 150*time.Minute {
		// not enough history for a trend yet
		return st
	}

	icon, text, err := ZambrettiForecast(pressure, ClassifyTrend(pressure-oldest.HPa))
	if err != nil {
		fail(models.Field("forecastRule"), map[models.ObsType]float64{models.ObsBarometer: pressure}, err)
		return st
	}
	rec.ForecastIcon = models.Int(icon)
	if rec.ForecastText == nil {
		rec.ForecastText = models.Str(text)
	}
	return st
}
