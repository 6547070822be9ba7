package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the weatherwd service.
type Config struct {
	Station    StationConfig   `yaml:"station"`
	Boundaries BoundaryConfig  `yaml:"boundaries"`
	Calc       CalcConfig      `yaml:"calc"`
	Database   DatabaseConfig  `yaml:"database"`
	Host       HostConfig      `yaml:"host"`
	Server     ServerConfig    `yaml:"server"`
	Adapters   []AdapterConfig `yaml:"adapters"`
	Logging    LoggingConfig   `yaml:"logging"`
}

// StationConfig describes the observing site.
type StationConfig struct {
	Name       string  `yaml:"name"`
	Latitude   float64 `yaml:"latitude"`
	Longitude  float64 `yaml:"longitude"`
	AltitudeM  float64 `yaml:"altitude_m"`
	UnitSystem string  `yaml:"unit_system"` // "metric" or "us"
}

// BoundaryConfig sets where weather days and weeks begin.
type BoundaryConfig struct {
	DayStartHour int    `yaml:"day_start_hour"`
	WeekStart    string `yaml:"week_start"` // weekday name, e.g. "sunday"
	Timezone     string `yaml:"timezone"`
}

// CalcConfig holds calculator thresholds and policies.
type CalcConfig struct {
	SunshineThresholdWm2 float64 `yaml:"sunshine_threshold_wm2"`
	WetDayThresholdMm    float64 `yaml:"wet_day_threshold_mm"`
	GrowingBaseC         float64 `yaml:"growing_base_c"`
	HeatingBaseC         float64 `yaml:"heating_base_c"`
	CoolingBaseC         float64 `yaml:"cooling_base_c"`
	RainRateWindow       int     `yaml:"rain_rate_window"` // intervals in the smoothing window
	MissingWind          string  `yaml:"missing_wind"`     // "zero" or "absent"
}

// DatabaseConfig configures the supplementary SQLite store.
type DatabaseConfig struct {
	Path          string        `yaml:"path"`
	RetentionDays int           `yaml:"retention_days"` // 0 = keep forever
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
	VacuumPeriod  time.Duration `yaml:"vacuum_period"`
	ColdStartDays int           `yaml:"cold_start_days"`
}

// HostConfig points at the host's primary archive for day summaries.
type HostConfig struct {
	SummaryDBPath string `yaml:"summary_db_path"`
	AuthToken     string `yaml:"auth_token"` // bearer token the host presents on /ws
	QueueSize     int    `yaml:"queue_size"`
}

// ServerConfig contains the HTTP listener settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AdapterConfig enables one optional third-party observation source.
type AdapterConfig struct {
	Name         string        `yaml:"name"`
	Type         string        `yaml:"type"` // "poll" or "filedrop"
	Enabled      bool          `yaml:"enabled"`
	URL          string        `yaml:"url"`
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAge       time.Duration `yaml:"max_age"` // cached result older than this is absent
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var config Config
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("unmarshalling config file: %w", err)
	}

	config.ApplyDefaults()
	config.OverrideFromEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &config, nil
}

// ApplyDefaults sets default values for any unset fields.
func (c *Config) ApplyDefaults() {
	if c.Station.UnitSystem == "" {
		c.Station.UnitSystem = "metric"
	}
	if c.Boundaries.WeekStart == "" {
		c.Boundaries.WeekStart = "sunday"
	}
	if c.Boundaries.Timezone == "" {
		c.Boundaries.Timezone = "UTC"
	}
	if c.Calc.SunshineThresholdWm2 == 0 {
		c.Calc.SunshineThresholdWm2 = 120
	}
	if c.Calc.WetDayThresholdMm == 0 {
		c.Calc.WetDayThresholdMm = 0.2
	}
	if c.Calc.GrowingBaseC == 0 {
		c.Calc.GrowingBaseC = 10
	}
	if c.Calc.HeatingBaseC == 0 {
		c.Calc.HeatingBaseC = 18.3
	}
	if c.Calc.CoolingBaseC == 0 {
		c.Calc.CoolingBaseC = 18.3
	}
	if c.Calc.RainRateWindow == 0 {
		c.Calc.RainRateWindow = 5
	}
	if c.Calc.MissingWind == "" {
		c.Calc.MissingWind = "zero"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/weatherwd.db"
	}
	if c.Database.CleanupPeriod == 0 {
		c.Database.CleanupPeriod = 1 * time.Hour
	}
	if c.Database.VacuumPeriod == 0 {
		c.Database.VacuumPeriod = 24 * time.Hour
	}
	if c.Database.ColdStartDays == 0 {
		c.Database.ColdStartDays = 32
	}
	if c.Host.QueueSize == 0 {
		c.Host.QueueSize = 64
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8220
	}
	for i := range c.Adapters {
		a := &c.Adapters[i]
		if a.PollInterval == 0 {
			a.PollInterval = 30 * time.Minute
		}
		if a.Timeout == 0 {
			a.Timeout = 10 * time.Second
		}
		if a.MaxAge == 0 {
			a.MaxAge = 2 * a.PollInterval
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// OverrideFromEnv applies environment variable overrides.
func (c *Config) OverrideFromEnv() {
	if v := os.Getenv("WEATHERWD_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("WEATHERWD_AUTH_TOKEN"); v != "" {
		c.Host.AuthToken = v
	}
	if v := os.Getenv("WEATHERWD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("WEATHERWD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Station.Latitude < -90 || c.Station.Latitude > 90 {
		return fmt.Errorf("station latitude %f out of range", c.Station.Latitude)
	}
	if c.Station.Longitude < -180 || c.Station.Longitude > 180 {
		return fmt.Errorf("station longitude %f out of range", c.Station.Longitude)
	}
	if c.Station.UnitSystem != "metric" && c.Station.UnitSystem != "us" {
		return fmt.Errorf("unknown unit system %q", c.Station.UnitSystem)
	}
	if c.Boundaries.DayStartHour < 0 || c.Boundaries.DayStartHour > 23 {
		return fmt.Errorf("day_start_hour %d out of range", c.Boundaries.DayStartHour)
	}
	if _, err := c.WeekStartDay(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Boundaries.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Boundaries.Timezone, err)
	}
	if c.Calc.MissingWind != "zero" && c.Calc.MissingWind != "absent" {
		return fmt.Errorf("missing_wind must be \"zero\" or \"absent\", got %q", c.Calc.MissingWind)
	}
	if c.Database.RetentionDays < 0 {
		return fmt.Errorf("retention_days must be >= 0")
	}
	for _, a := range c.Adapters {
		if a.Type != "poll" && a.Type != "filedrop" {
			return fmt.Errorf("adapter %q: unknown type %q", a.Name, a.Type)
		}
		if a.Type == "poll" && a.Enabled && a.URL == "" {
			return fmt.Errorf("adapter %q: poll adapter needs a url", a.Name)
		}
		if a.Type == "filedrop" && a.Enabled && a.Path == "" {
			return fmt.Errorf("adapter %q: filedrop adapter needs a path", a.Name)
		}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}

// WeekStartDay parses the configured week start weekday.
func (c *Config) WeekStartDay() (time.Weekday, error) {
	switch c.Boundaries.WeekStart {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return time.Sunday, fmt.Errorf("unknown week_start %q", c.Boundaries.WeekStart)
}

// Location returns the configured timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Boundaries.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BoundaryRuleValues returns the parsed boundary rule pieces for components
// that need them at construction.
func (c *Config) BoundaryRuleValues() (int, time.Weekday, *time.Location) {
	ws, _ := c.WeekStartDay()
	return c.Boundaries.DayStartHour, ws, c.Location()
}
