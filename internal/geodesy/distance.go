// Package geodesy computes great-circle (orthodromic) distances on a sphere
// using the spherical law of cosines.
package geodesy

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6371220.0

var (
	// ErrInvalidUnit is returned for angle units other than degrees or radians.
	ErrInvalidUnit = errors.New("invalid angle unit")

	// ErrShapeMismatch is returned when inputs cannot be broadcast together.
	ErrShapeMismatch = errors.New("coordinate shapes cannot be broadcast")
)

// Unit is the angular unit of input coordinates.
type Unit int

const (
	Degrees Unit = iota
	Radians
)

func (u Unit) String() string {
	switch u {
	case Degrees:
		return "degrees"
	case Radians:
		return "radians"
	default:
		return fmt.Sprintf("Unit(%d)", int(u))
	}
}

// ParseUnit accepts degrees, deg, d, radians, rad or r in any case.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "degrees", "deg", "d":
		return Degrees, nil
	case "radians", "rad", "r":
		return Radians, nil
	default:
		return 0, fmt.Errorf("%w: %q (must be degrees or radians)", ErrInvalidUnit, s)
	}
}

// toRadians returns the factor converting a value in unit u to radians.
func (u Unit) toRadians() float64 {
	if u == Radians {
		return 1
	}
	return math.Pi / 180
}

// Distance returns the great-circle distance between (lon1, lat1) and
// (lon2, lat2). A radius <= 0 selects EarthRadius.
func Distance(lon1, lat1, lon2, lat2 float64, unit Unit, radius float64) float64 {
	k := unit.toRadians()
	return centralAngle(
		math.Sin(lat1*k), math.Cos(lat1*k),
		math.Sin(lat2*k), math.Cos(lat2*k),
		(lon2-lon1)*k,
	) * effectiveRadius(radius)
}

// Broadcast computes element-wise distances into dst. Each input either has
// the common length n or length 1, in which case it is repeated. dst is
// reallocated when its length is not n.
func Broadcast(dst, lon1, lat1, lon2, lat2 []float64, unit Unit, radius float64) ([]float64, error) {
	n, err := broadcastLen(len(lon1), len(lat1), len(lon2), len(lat2))
	if err != nil {
		return nil, err
	}
	if len(dst) != n {
		dst = make([]float64, n)
	}
	at := func(s []float64, i int) float64 {
		if len(s) == 1 {
			return s[0]
		}
		return s[i]
	}
	for i := range n {
		dst[i] = Distance(at(lon1, i), at(lat1, i), at(lon2, i), at(lat2, i), unit, radius)
	}
	return dst, nil
}

func broadcastLen(lengths ...int) (int, error) {
	n := 1
	for _, l := range lengths {
		switch {
		case l == 0:
			return 0, fmt.Errorf("%w: empty input", ErrShapeMismatch)
		case l == 1:
		case n == 1:
			n = l
		case l != n:
			return 0, fmt.Errorf("%w: lengths %v", ErrShapeMismatch, lengths)
		}
	}
	return n, nil
}

// centralAngle evaluates the law of cosines. The arccos argument is clamped to
// [-1, 1]; rounding pushes it slightly outside for coincident and antipodal
// points.
func centralAngle(sinLat1, cosLat1, sinLat2, cosLat2, dLon float64) float64 {
	c := sinLat1*sinLat2 + cosLat1*cosLat2*math.Cos(dLon)
	return math.Acos(math.Max(-1, math.Min(1, c)))
}

func effectiveRadius(radius float64) float64 {
	if radius <= 0 {
		return EarthRadius
	}
	return radius
}

// Field holds the trig terms of a fixed set of points so repeated distance
// queries against it only evaluate one cosine per point.
type Field struct {
	unit   Unit
	lon    []float64 // radians
	sinLat []float64
	cosLat []float64
}

// NewField precomputes a Field for the given per-point coordinates.
func NewField(lons, lats []float64, unit Unit) (*Field, error) {
	if len(lons) != len(lats) {
		return nil, fmt.Errorf("%w: %d longitudes, %d latitudes", ErrShapeMismatch, len(lons), len(lats))
	}
	k := unit.toRadians()
	f := &Field{
		unit:   unit,
		lon:    floats.ScaleTo(make([]float64, len(lons)), k, lons),
		sinLat: make([]float64, len(lats)),
		cosLat: make([]float64, len(lats)),
	}
	for i, lat := range lats {
		f.sinLat[i], f.cosLat[i] = math.Sincos(lat * k)
	}
	return f, nil
}

// Len reports the number of points in the field.
func (f *Field) Len() int { return len(f.lon) }

// DistancesFrom writes the distance from (lon, lat) to every field point into
// dst, which is reallocated if it has the wrong length. lon and lat use the
// unit the field was built with.
func (f *Field) DistancesFrom(dst []float64, lon, lat, radius float64) []float64 {
	if len(dst) != len(f.lon) {
		dst = make([]float64, len(f.lon))
	}
	k := f.unit.toRadians()
	lon *= k
	sinLat, cosLat := math.Sincos(lat * k)
	for i := range f.lon {
		dst[i] = centralAngle(f.sinLat[i], f.cosLat[i], sinLat, cosLat, lon-f.lon[i])
	}
	floats.Scale(effectiveRadius(radius), dst)
	return dst
}
