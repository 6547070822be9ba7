package models

import (
	"fmt"
	"time"
)

// ObsType identifies a raw observation in a snapshot.
type ObsType string

const (
	ObsOutTemp        ObsType = "outTemp"        // degree C
	ObsOutHumidity    ObsType = "outHumidity"    // percent
	ObsWindSpeed      ObsType = "windSpeed"      // m/s
	ObsWindGust       ObsType = "windGust"       // m/s
	ObsWindDir        ObsType = "windDir"        // degrees
	ObsRain           ObsType = "rain"           // mm over the interval
	ObsBarometer      ObsType = "barometer"      // hPa
	ObsSolarRadiation ObsType = "radiation"      // W/m2
	ObsUV             ObsType = "UV"             // index
	ObsInTemp         ObsType = "inTemp"         // degree C
	ObsInHumidity     ObsType = "inHumidity"     // percent
	ObsForecastText   ObsType = "forecastText"   // adapter-supplied, dimensionless
	ObsCurrentText    ObsType = "currentText"    // adapter-supplied, dimensionless
)

// Unit names the unit a Value carries. Snapshots are always metric-wx
// internally; conversion to the display system happens at tag resolution.
type Unit string

const (
	UnitCelsius    Unit = "degree_C"
	UnitFahrenheit Unit = "degree_F"
	UnitPercent    Unit = "percent"
	UnitMps        Unit = "meter_per_second"
	UnitKmh        Unit = "km_per_hour"
	UnitMph        Unit = "mile_per_hour"
	UnitMm         Unit = "mm"
	UnitInch       Unit = "inch"
	UnitMmHr       Unit = "mm_per_hour"
	UnitInHr       Unit = "inch_per_hour"
	UnitHPa        Unit = "hPa"
	UnitInHg       Unit = "inHg"
	UnitWpm2       Unit = "watt_per_meter_squared"
	UnitKm         Unit = "km"
	UnitMile       Unit = "mile"
	UnitDegree     Unit = "degree_compass"
	UnitKgPerM3    Unit = "kg_per_meter_cubed"
	UnitSecond     Unit = "second"
	UnitCount      Unit = "count"
	UnitNone       Unit = ""
)

// Value is a single observed quantity with its unit.
type Value struct {
	Float float64
	Unit  Unit
}

// Snapshot is the set of raw observations the host produced for one archive
// interval, keyed by observation type. Missing sensors are simply absent
// keys. Snapshots are treated as immutable once built; Merge copies.
type Snapshot struct {
	Time     time.Time
	Interval time.Duration
	Obs      map[ObsType]Value
	Text     map[ObsType]string
}

// NewSnapshot creates an empty snapshot for one archive interval.
func NewSnapshot(ts time.Time, interval time.Duration) *Snapshot {
	return &Snapshot{
		Time:     ts,
		Interval: interval,
		Obs:      make(map[ObsType]Value),
		Text:     make(map[ObsType]string),
	}
}

// Get returns an observation value and whether it is present.
func (s *Snapshot) Get(t ObsType) (float64, bool) {
	v, ok := s.Obs[t]
	return v.Float, ok
}

// Set records an observation. Nil-safe for tests building snapshots inline.
func (s *Snapshot) Set(t ObsType, f float64, u Unit) *Snapshot {
	s.Obs[t] = Value{Float: f, Unit: u}
	return s
}

// Merge returns a copy of s with the extra fields added. Existing host
// observations win over adapter-supplied ones of the same type.
func (s *Snapshot) Merge(extra map[ObsType]Value, text map[ObsType]string) *Snapshot {
	out := NewSnapshot(s.Time, s.Interval)
	for k, v := range extra {
		out.Obs[k] = v
	}
	for k, v := range text {
		out.Text[k] = v
	}
	for k, v := range s.Obs {
		out.Obs[k] = v
	}
	for k, v := range s.Text {
		out.Text[k] = v
	}
	return out
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("snapshot@%s (%d obs)", s.Time.Format(time.RFC3339), len(s.Obs))
}

// Notification tells the augmentation service that the host has committed a
// new archive record. It carries the interval's snapshot so augmentation
// never has to call back into the host on the hot path.
type Notification struct {
	Snapshot *Snapshot
}
