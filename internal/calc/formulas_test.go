package calc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDewPoint(t *testing.T) {
	td, err := DewPointC(20, 50)
	require.NoError(t, err)
	assert.InDelta(t, 9.3, td, 0.3)

	// saturated air dews at the air temperature
	td, err = DewPointC(15, 100)
	require.NoError(t, err)
	assert.InDelta(t, 15, td, 0.05)

	_, err = DewPointC(20, 0)
	assert.Error(t, err)
}

func TestHumidex(t *testing.T) {
	h, err := HumidexC(30, 70)
	require.NoError(t, err)
	assert.InDelta(t, 41, h, 1.5)

	// cool dry air: humidex never reports below the air temperature
	h, err = HumidexC(10, 30)
	require.NoError(t, err)
	assert.Equal(t, 10.0, h)
}

func TestApparentTemp(t *testing.T) {
	// hot, humid, still air feels hotter
	at, err := ApparentTempC(30, 80, 0)
	require.NoError(t, err)
	assert.Greater(t, at, 30.0)

	// strong wind on a mild day feels cooler
	at, err = ApparentTempC(20, 40, 10)
	require.NoError(t, err)
	assert.Less(t, at, 20.0)

	_, err = ApparentTempC(20, 140, 1)
	assert.Error(t, err)
}

func TestWindChill(t *testing.T) {
	// outside the domain the air temperature comes back unchanged
	wc, err := WindChillC(15, 10)
	require.NoError(t, err)
	assert.Equal(t, 15.0, wc)

	wc, err = WindChillC(-5, 1) // 3.6 km/h, below the 4.8 km/h floor
	require.NoError(t, err)
	assert.Equal(t, -5.0, wc)

	// NWS table: -10C at 30 km/h is about -20C
	wc, err = WindChillC(-10, 30.0/3.6)
	require.NoError(t, err)
	assert.InDelta(t, -19.5, wc, 1.0)
}

func TestHeatIndex_Breakpoints(t *testing.T) {
	// below 77F: unchanged
	hi, err := HeatIndexC(20, 90)
	require.NoError(t, err)
	assert.Equal(t, 20.0, hi)

	// Steadman zone: 78F / 40% stays under 80F, returns near the input
	hi, err = HeatIndexC(fToC(78), 40)
	require.NoError(t, err)
	assert.LessOrEqual(t, hi, fToC(80))

	// Rothfusz zone: NWS table gives ~105F for 90F / 70%
	hi, err = HeatIndexC(fToC(90), 70)
	require.NoError(t, err)
	assert.InDelta(t, fToC(105), hi, 1.5)

	// low-humidity adjustment region still exceeds the dry-bulb check
	hi, err = HeatIndexC(fToC(100), 10)
	require.NoError(t, err)
	assert.InDelta(t, fToC(100), hi, 3)
}

func TestWetBulb(t *testing.T) {
	wb, err := WetBulbC(20, 50)
	require.NoError(t, err)
	assert.InDelta(t, 13.7, wb, 0.5)
	assert.Less(t, wb, 20.0)

	_, err = WetBulbC(20, 3)
	assert.Error(t, err)
	_, err = WetBulbC(55, 50)
	assert.Error(t, err)
}

func TestAirDensity(t *testing.T) {
	rho, err := AirDensityKgM3(15, 0, 1013.25)
	require.NoError(t, err)
	assert.InDelta(t, 1.225, rho, 0.005)

	// moist air is lighter
	moist, err := AirDensityKgM3(15, 100, 1013.25)
	require.NoError(t, err)
	assert.Less(t, moist, rho)

	_, err = AirDensityKgM3(15, 50, 200)
	assert.Error(t, err)
}

func TestStandardPressure(t *testing.T) {
	assert.InDelta(t, 1013.25, StandardPressureHPa(0), 0.01)
	assert.InDelta(t, 954, StandardPressureHPa(500), 3)
}

func TestDayNightSplit(t *testing.T) {
	day, night := DayNightSplit(21, 12)
	require.NotNil(t, day)
	assert.Nil(t, night)
	assert.Equal(t, 21.0, *day)

	// hour 5 (before 06:00) is night
	day, night = DayNightSplit(10, 5)
	assert.Nil(t, day)
	require.NotNil(t, night)

	// shifted hour 18 means the record is from after 18:00: night
	day, night = DayNightSplit(10, 18)
	assert.Nil(t, day)
	require.NotNil(t, night)

	// shifted hour 17 covers records up to and including 18:00: day
	day, night = DayNightSplit(10, 17)
	require.NotNil(t, day)
	assert.Nil(t, night)
}

func TestWindrunKm(t *testing.T) {
	// 10 m/s for five minutes travels 3 km
	assert.InDelta(t, 3.0, WindrunKm(10, 300), 1e-9)
}

func TestZambretti(t *testing.T) {
	assert.Equal(t, TrendRising, ClassifyTrend(2.0))
	assert.Equal(t, TrendFalling, ClassifyTrend(-2.0))
	assert.Equal(t, TrendSteady, ClassifyTrend(0.5))

	icon, text, err := ZambrettiForecast(1030, TrendRising)
	require.NoError(t, err)
	assert.Equal(t, 0, icon)
	assert.Equal(t, "Settled fine", text)

	icon, text, err = ZambrettiForecast(960, TrendFalling)
	require.NoError(t, err)
	assert.Equal(t, 4, icon)
	assert.NotEmpty(t, text)

	_, _, err = ZambrettiForecast(900, TrendSteady)
	assert.Error(t, err)
}

func TestMaxSolarRad(t *testing.T) {
	// local solar noon in midsummer at a mid latitude
	noon := time.Date(2025, 6, 21, 12, 0, 0, 0, time.UTC)
	sr := MaxSolarRadWm2(45, 0, noon, 2)
	assert.Greater(t, sr, 700.0)
	assert.Less(t, sr, 1100.0)

	// midnight is dark
	midnight := time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0.0, MaxSolarRadWm2(45, 0, midnight, 2))
}
