package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ctessum/sparse"
)

var (
	// ErrCoordinatesNotFound means none of the candidate lon/lat names exist.
	ErrCoordinatesNotFound = errors.New("cell coordinates not found")

	// ErrGridShape is returned when a grid's arrays disagree on size.
	ErrGridShape = errors.New("inconsistent grid shape")
)

// CoordinateNames is a lon/lat variable name pair.
type CoordinateNames struct {
	Lon string
	Lat string
}

// DefaultCoordinateNames is the lookup order for cell coordinates.
var DefaultCoordinateNames = []CoordinateNames{
	{Lon: "lon", Lat: "lat"},
	{Lon: "longitude", Lat: "latitude"},
}

// GridField is the detector's binary output with its time axis and per-cell
// coordinates. Binary has shape [len(Times)] + SpatialShape; every Coords
// entry is flattened to CellCount values and is constant across time.
type GridField struct {
	Times        []time.Time
	SpatialDims  []string // optional dimension names, parallel to SpatialShape
	SpatialShape []int
	Binary       *sparse.DenseArray
	Coords       map[string][]float64
}

// CellCount is the number of spatial cells per time step.
func (g GridField) CellCount() int {
	n := 1
	for _, d := range g.SpatialShape {
		n *= d
	}
	return n
}

// Shape returns the full [time, space...] shape.
func (g GridField) Shape() []int {
	return append([]int{len(g.Times)}, g.SpatialShape...)
}

// Validate checks that the binary field and coordinates agree with the axes.
func (g GridField) Validate() error {
	if g.Binary == nil {
		return fmt.Errorf("%w: missing binary field", ErrGridShape)
	}
	want := len(g.Times) * g.CellCount()
	if len(g.Binary.Elements) != want {
		return fmt.Errorf("%w: binary field has %d values, want %d for shape %v",
			ErrGridShape, len(g.Binary.Elements), want, g.Shape())
	}
	for name, c := range g.Coords {
		if len(c) != g.CellCount() {
			return fmt.Errorf("%w: coordinate %q has %d values, want %d", ErrGridShape, name, len(c), g.CellCount())
		}
	}
	return nil
}

// Step returns the binary values of time step i as a view into the field.
func (g GridField) Step(i int) []float64 {
	n := g.CellCount()
	return g.Binary.Elements[i*n : (i+1)*n]
}

// TimeIndex maps each time-axis instant, as Unix seconds, to its position.
// When the axis holds duplicates the first occurrence wins.
func (g GridField) TimeIndex() map[int64]int {
	idx := make(map[int64]int, len(g.Times))
	for i, t := range g.Times {
		if _, ok := idx[t.Unix()]; !ok {
			idx[t.Unix()] = i
		}
	}
	return idx
}

// ResolveCoordinates returns the first candidate pair present in coords.
func ResolveCoordinates(coords map[string][]float64, candidates []CoordinateNames) (lons, lats []float64, names CoordinateNames, err error) {
	tried := make([]string, 0, len(candidates))
	for _, c := range candidates {
		lon, okLon := coords[c.Lon]
		lat, okLat := coords[c.Lat]
		if okLon && okLat {
			return lon, lat, c, nil
		}
		tried = append(tried, c.Lon+"/"+c.Lat)
	}
	return nil, nil, CoordinateNames{}, fmt.Errorf("%w: tried %s", ErrCoordinatesNotFound, strings.Join(tried, ", "))
}

// TagField is the integer storm-id output with the same shape as the binary
// field. Zero means untagged.
type TagField struct {
	Shape  []int
	Values []int32
}

// NewTagField returns an all-zero tag field of the given shape.
func NewTagField(shape []int) TagField {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return TagField{Shape: append([]int(nil), shape...), Values: make([]int32, n)}
}

// Step returns the tag values of time step i as a view into the field.
func (f TagField) Step(i int) []int32 {
	n := len(f.Values)
	if len(f.Shape) > 0 && f.Shape[0] > 0 {
		n /= f.Shape[0]
	}
	return f.Values[i*n : (i+1)*n]
}

// At returns the tag at a full [time, space...] index.
func (f TagField) At(index ...int) int32 {
	flat := 0
	for i, v := range index {
		flat = flat*f.Shape[i] + v
	}
	return f.Values[flat]
}
