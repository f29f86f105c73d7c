// Package geodesy implements the spherical-earth primitives used to lay out
// camera tours: great-circle distance, forward azimuth and the direct
// problem (destination given bearing and angular distance).
package geodesy

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

const (
	// EarthRadiusKm is the mean earth radius used by every computation.
	EarthRadiusKm = 6371.0

	// EarthRadiusMeters is EarthRadiusKm in meters.
	EarthRadiusMeters = EarthRadiusKm * 1000
)

var InvalidInputErr = errors.New("invalid coordinate")

// Point is a longitude/latitude pair in degrees.
type Point struct {
	Lon float64
	Lat float64
}

func (p Point) String() string {
	return fmt.Sprintf("%g,%g", p.Lon, p.Lat)
}

// Validate reports InvalidInputErr for coordinates outside of the geodetic
// range or not finite.
func Validate(p Point) error {
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) || math.IsInf(p.Lon, 0) || math.IsInf(p.Lat, 0) {
		return errors.Wrapf(InvalidInputErr, "%s is not finite", p)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return errors.Wrapf(InvalidInputErr, "latitude of %s out of range", p)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return errors.Wrapf(InvalidInputErr, "longitude of %s out of range", p)
	}
	return nil
}

// Distance returns the great-circle distance between two points in km.
func Distance(p1, p2 Point) float64 {
	if p1 == p2 {
		return 0
	}
	lat1, lat2 := toRad(p1.Lat), toRad(p2.Lat)
	dLon := toRad(p1.Lon - p2.Lon)
	// The approximation overflows 1 for (nearly) identical points.
	c := math.Min(1, math.Sin(lat1)*math.Sin(lat2)+math.Cos(lat1)*math.Cos(lat2)*math.Cos(dLon))
	return EarthRadiusKm * math.Acos(c)
}

// Bearing returns the initial compass bearing from one point to another in
// radians: 0 is north, increasing clockwise, within [-π, π].
func Bearing(from, to Point) float64 {
	dLon := toRad(to.Lon - from.Lon)
	lat1, lat2 := toRad(from.Lat), toRad(to.Lat)
	x := math.Cos(lat2) * math.Sin(dLon)
	y := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return math.Atan2(x, y)
}

// Destination returns the point reached from origin when travelling along
// the given bearing (radians) for the given angular distance (distance over
// earth radius, radians).
func Destination(origin Point, bearing, angularDistance float64) Point {
	lat := toRad(origin.Lat)
	lat2 := math.Asin(math.Sin(lat)*math.Cos(angularDistance) + math.Cos(lat)*math.Sin(angularDistance)*math.Cos(bearing))
	dLon := math.Atan2(
		math.Sin(bearing)*math.Sin(angularDistance)*math.Cos(lat),
		math.Cos(angularDistance)-math.Sin(lat)*math.Sin(lat2))
	return Point{
		Lon: origin.Lon + toDeg(dLon),
		Lat: toDeg(lat2),
	}
}

// AngularDistance converts a ground distance in meters to radians.
func AngularDistance(meters float64) float64 {
	return meters / EarthRadiusMeters
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
