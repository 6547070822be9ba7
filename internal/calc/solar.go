package calc

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

func degToRad(deg float64) float64 { return deg * math.Pi / 180.0 }
func radToDeg(rad float64) float64 { return rad * 180.0 / math.Pi }
func fixAngle(a float64) float64   { return a - 360.0*math.Floor(a/360.0) }

// MaxSolarRadWm2 returns the theoretical clear-sky solar irradiance at the
// station for the given instant, using the Bras atmospheric attenuation
// model. nfac is the atmospheric turbidity factor (2 = clear, 5 = smoggy).
// Returns 0 when the sun is below the horizon.
func MaxSolarRadWm2(lat, lon float64, ts time.Time, nfac float64) float64 {
	const solarConstant = 1367.0

	t := ts.UTC()
	jd := julian.TimeToJD(t)
	T := (jd - 2451545.0) / 36525.0

	L0 := fixAngle(280.46646 + T*(36000.76983+T*0.0003032))
	M := fixAngle(357.52911 + T*(35999.05029-T*0.0001537))
	e := 0.016708634 - T*(0.000042037+T*0.0000001267)
	C := math.Sin(degToRad(M))*(1.914602-T*(0.004817+T*0.000014)) +
		math.Sin(degToRad(2*M))*(0.019993-T*0.000101) +
		math.Sin(degToRad(3*M))*0.000289
	sunLong := L0 + C
	omega := 125.04 - 1934.136*T
	lambda := sunLong - 0.00569 - 0.00478*math.Sin(degToRad(omega))
	eps0 := 23 + (26+(21.448-T*(46.815+T*(0.00059-T*0.001813)))/60)/60
	decl := math.Asin(math.Sin(degToRad(eps0)) * math.Sin(degToRad(lambda)))

	y := math.Tan(degToRad(eps0)/2) * math.Tan(degToRad(eps0)/2)
	eqTimeMin := radToDeg(y*math.Sin(degToRad(2*L0))-
		2*e*math.Sin(degToRad(M))+
		4*e*y*math.Sin(degToRad(M))*math.Cos(degToRad(2*L0))-
		0.5*y*y*math.Sin(degToRad(4*L0))-
		1.25*e*e*math.Sin(degToRad(2*M))) * 4

	utcMin := float64(t.Hour()*60+t.Minute()) + float64(t.Second())/60.0
	tst := utcMin + 4*lon + eqTimeMin
	haRad := degToRad(tst/4 - 180)

	latRad := degToRad(lat)
	cosZen := math.Sin(latRad)*math.Sin(decl) + math.Cos(latRad)*math.Cos(decl)*math.Cos(haRad)
	elDeg := 90 - radToDeg(math.Acos(cosZen)) + 0.5667
	if elDeg <= 0 {
		return 0
	}

	// Sun-Earth distance in AU for the inverse-square correction
	mRad := degToRad(M)
	E := mRad + e*math.Sin(mRad)*(1+e*math.Cos(mRad))
	v := 2 * math.Atan(math.Sqrt((1+e)/(1-e))*math.Tan(E/2))
	r := (1 - e*e) / (1 + e*math.Cos(v))

	io := cosZen * solarConstant / (r * r)
	m := 1.0 / (cosZen + 0.15*math.Pow(elDeg+3.885, -1.253))
	a1 := 0.128 - 0.054*math.Log(m)/math.Ln10
	sr := io * math.Exp(-nfac*a1*m)
	if sr < 0 {
		return 0
	}
	return sr
}
