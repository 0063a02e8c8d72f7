package feature

import (
	"math"
	"time"
)

// SolarCalculator computes the apparent position of the sun for a timestamp
// and location. Results are memoized by (date, lat, lon, minute) since solar
// position is expensive to recompute per-row at scale and does not change
// meaningfully within a minute.
type SolarCalculator struct {
	cache map[solarKey]solarPos
}

type solarKey struct {
	year     int
	yday     int
	minute   int
	latMicro int64
	lonMicro int64
}

type solarPos struct {
	elevation float64
	azimuth   float64
}

// NewSolarCalculator creates a SolarCalculator with an empty memo.
func NewSolarCalculator() *SolarCalculator {
	return &SolarCalculator{cache: make(map[solarKey]solarPos)}
}

// Position returns the sun's elevation and azimuth in degrees for the given
// UTC instant and location. Azimuth is measured clockwise from north;
// elevation is positive above the horizon.
func (s *SolarCalculator) Position(t time.Time, lat, lon float64) (elevation, azimuth float64) {
	t = t.UTC()
	key := solarKey{
		year:     t.Year(),
		yday:     t.YearDay(),
		minute:   t.Hour()*60 + t.Minute(),
		latMicro: int64(lat * 1e6),
		lonMicro: int64(lon * 1e6),
	}
	if p, ok := s.cache[key]; ok {
		return p.elevation, p.azimuth
	}

	el, az := solarPosition(t, lat, lon)
	s.cache[key] = solarPos{elevation: el, azimuth: az}
	return el, az
}

// solarPosition implements the low-accuracy solar ephemeris from the
// Astronomical Almanac (accurate to ~0.01 degrees between 1950 and 2050),
// which is more than sufficient for feature engineering.
func solarPosition(t time.Time, lat, lon float64) (elevation, azimuth float64) {
	const deg = math.Pi / 180

	// Days since J2000.0 (2000-01-01 12:00 UTC), including the day fraction.
	j2000 := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	d := t.Sub(j2000).Hours() / 24

	// Mean longitude and mean anomaly of the sun.
	meanLon := math.Mod(280.460+0.9856474*d, 360)
	meanAnom := math.Mod(357.528+0.9856003*d, 360) * deg

	// Ecliptic longitude and obliquity of the ecliptic.
	eclipticLon := (meanLon + 1.915*math.Sin(meanAnom) + 0.020*math.Sin(2*meanAnom)) * deg
	obliquity := (23.439 - 0.0000004*d) * deg

	// Right ascension and declination.
	rightAsc := math.Atan2(math.Cos(obliquity)*math.Sin(eclipticLon), math.Cos(eclipticLon))
	declination := math.Asin(math.Sin(obliquity) * math.Sin(eclipticLon))

	// Local hour angle from Greenwich mean sidereal time.
	gmstHours := math.Mod(18.697374558+24.06570982441908*d, 24)
	localSiderealDeg := gmstHours*15 + lon
	hourAngle := math.Mod(localSiderealDeg*deg-rightAsc, 2*math.Pi)

	latRad := lat * deg
	sinEl := math.Sin(latRad)*math.Sin(declination) + math.Cos(latRad)*math.Cos(declination)*math.Cos(hourAngle)
	elevation = math.Asin(sinEl) / deg

	// Azimuth measured clockwise from north.
	azRad := math.Atan2(
		-math.Sin(hourAngle),
		math.Tan(declination)*math.Cos(latRad)-math.Sin(latRad)*math.Cos(hourAngle),
	)
	azimuth = math.Mod(azRad/deg+360, 360)

	return elevation, azimuth
}
