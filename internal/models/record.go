package models

import (
	"fmt"
	"time"
)

// SchemaVersion is written to wd_meta on create and checked on every open.
const SchemaVersion = 2

// Field names a derived column of the supplementary schema, or a host
// observation when used in statistics queries.
type Field string

const (
	FieldHumidex      Field = "humidex"
	FieldAppTemp      Field = "appTemp"
	FieldWindChill    Field = "windChill"
	FieldHeatIndex    Field = "heatIndex"
	FieldWetBulb      Field = "wetBulb"
	FieldDewPoint     Field = "dewPoint"
	FieldAirDensity   Field = "airDensity"
	FieldOutTempDay   Field = "outTempDay"
	FieldOutTempNight Field = "outTempNight"
	FieldWindrunDay   Field = "windrunDay"
	FieldRainRate     Field = "rainRate"
	FieldSunshineSecs Field = "sunshineSecs"
	FieldMaxSolarRad  Field = "maxSolarRad"
	FieldStormRain    Field = "stormRain"

	// Host-side fields, resolved through the primary day summaries rather
	// than the supplementary store.
	FieldOutTemp   Field = "outTemp"
	FieldRain      Field = "rain"
	FieldWindSpeed Field = "windSpeed"
	FieldWindGust  Field = "windGust"
)

// Record is one row of the supplementary archive: every derived field for a
// single archive timestamp. Nil pointers are absent values. Records are
// append-only; a correction is a delete plus a fresh append.
type Record struct {
	Time     time.Time
	Interval time.Duration

	Humidex      *float64 // degree C
	AppTemp      *float64 // degree C
	WindChill    *float64 // degree C
	HeatIndex    *float64 // degree C
	WetBulb      *float64 // degree C
	DewPoint     *float64 // degree C
	AirDensity   *float64 // kg/m3
	OutTempDay   *float64 // degree C, 06:00-18:00 only
	OutTempNight *float64 // degree C, complement
	WindrunDay   *float64 // km, cumulative since day start
	RainRate     *float64 // mm/h, smoothed
	SunshineSecs *float64 // seconds of this interval above the sunshine threshold
	MaxSolarRad  *float64 // W/m2, theoretical clear-sky maximum
	StormRain    *float64 // mm, accumulated over the current storm
	StormStart   *time.Time

	ForecastIcon *int
	ForecastText *string
	CurrentIcon  *int
	CurrentText  *string
}

// SuppField reports whether f is stored in the supplementary schema (as
// opposed to a host observation answered from primary day summaries).
func SuppField(f Field) bool {
	switch f {
	case FieldHumidex, FieldAppTemp, FieldWindChill, FieldHeatIndex,
		FieldWetBulb, FieldDewPoint, FieldAirDensity, FieldOutTempDay,
		FieldOutTempNight, FieldWindrunDay, FieldRainRate,
		FieldSunshineSecs, FieldMaxSolarRad, FieldStormRain:
		return true
	}
	return false
}

// FieldValue returns the named numeric field, or nil when absent or unknown.
func (r *Record) FieldValue(f Field) *float64 {
	switch f {
	case FieldHumidex:
		return r.Humidex
	case FieldAppTemp:
		return r.AppTemp
	case FieldWindChill:
		return r.WindChill
	case FieldHeatIndex:
		return r.HeatIndex
	case FieldWetBulb:
		return r.WetBulb
	case FieldDewPoint:
		return r.DewPoint
	case FieldAirDensity:
		return r.AirDensity
	case FieldOutTempDay:
		return r.OutTempDay
	case FieldOutTempNight:
		return r.OutTempNight
	case FieldWindrunDay:
		return r.WindrunDay
	case FieldRainRate:
		return r.RainRate
	case FieldSunshineSecs:
		return r.SunshineSecs
	case FieldMaxSolarRad:
		return r.MaxSolarRad
	case FieldStormRain:
		return r.StormRain
	}
	return nil
}

// FieldUnit returns the metric-wx unit a field is stored in.
func FieldUnit(f Field) Unit {
	switch f {
	case FieldHumidex, FieldAppTemp, FieldWindChill, FieldHeatIndex,
		FieldWetBulb, FieldDewPoint, FieldOutTempDay, FieldOutTempNight,
		FieldOutTemp:
		return UnitCelsius
	case FieldAirDensity:
		return UnitKgPerM3
	case FieldWindrunDay:
		return UnitKm
	case FieldRainRate:
		return UnitMmHr
	case FieldSunshineSecs:
		return UnitSecond
	case FieldMaxSolarRad:
		return UnitWpm2
	case FieldStormRain, FieldRain:
		return UnitMm
	case FieldWindSpeed, FieldWindGust:
		return UnitMps
	}
	return UnitNone
}

func (r *Record) String() string {
	return fmt.Sprintf("supp record @%s interval=%s", r.Time.Format(time.RFC3339), r.Interval)
}

// Copy returns a deep copy of the record.
func (r *Record) Copy() *Record {
	if r == nil {
		return nil
	}
	out := *r
	cf := func(p *float64) *float64 {
		if p == nil {
			return nil
		}
		v := *p
		return &v
	}
	ci := func(p *int) *int {
		if p == nil {
			return nil
		}
		v := *p
		return &v
	}
	cs := func(p *string) *string {
		if p == nil {
			return nil
		}
		v := *p
		return &v
	}
	out.Humidex = cf(r.Humidex)
	out.AppTemp = cf(r.AppTemp)
	out.WindChill = cf(r.WindChill)
	out.HeatIndex = cf(r.HeatIndex)
	out.WetBulb = cf(r.WetBulb)
	out.DewPoint = cf(r.DewPoint)
	out.AirDensity = cf(r.AirDensity)
	out.OutTempDay = cf(r.OutTempDay)
	out.OutTempNight = cf(r.OutTempNight)
	out.WindrunDay = cf(r.WindrunDay)
	out.RainRate = cf(r.RainRate)
	out.SunshineSecs = cf(r.SunshineSecs)
	out.MaxSolarRad = cf(r.MaxSolarRad)
	out.StormRain = cf(r.StormRain)
	if r.StormStart != nil {
		t := *r.StormStart
		out.StormStart = &t
	}
	out.ForecastIcon = ci(r.ForecastIcon)
	out.ForecastText = cs(r.ForecastText)
	out.CurrentIcon = ci(r.CurrentIcon)
	out.CurrentText = cs(r.CurrentText)
	return &out
}

// Float is a convenience for building optional values inline.
func Float(v float64) *float64 { return &v }

// Int is a convenience for building optional values inline.
func Int(v int) *int { return &v }

// Str is a convenience for building optional values inline.
func Str(v string) *string { return &v }
