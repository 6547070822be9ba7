package models

import "time"

// Station contains slowly-changing metadata about the observing site, used
// by the calculator for pressure, density and solar computations.
type Station struct {
	Name      string    `json:"name"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	AltitudeM float64   `json:"altitude_m"`
	StartTime time.Time `json:"start_time"`
}

// Uptime returns the duration since the service started.
func (s *Station) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// NewStation creates station metadata with the current time as start time.
func NewStation(name string, lat, lon, altM float64) *Station {
	return &Station{
		Name:      name,
		Latitude:  lat,
		Longitude: lon,
		AltitudeM: altM,
		StartTime: time.Now(),
	}
}
