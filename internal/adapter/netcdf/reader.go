// Package netcdf reads storm detection masks from netCDF-3 files and writes
// them back out with an added storm-id variable.
package netcdf

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"

	"github.com/couchcryptid/storm-track-tagger/internal/domain"
)

// ErrVariableNotFound is returned when a required variable is missing.
var ErrVariableNotFound = errors.New("variable not found")

const (
	DefaultBinaryVar = "ETC_binary_tag"
	DefaultTagVar    = "ETC_int_tag"
	DefaultTimeVar   = "time"
)

// Options names the variables the dataset is read and written with.
// Zero values select the defaults.
type Options struct {
	BinaryVar   string
	TagVar      string
	TimeVar     string
	Coordinates []domain.CoordinateNames
}

func (o Options) withDefaults() Options {
	if o.BinaryVar == "" {
		o.BinaryVar = DefaultBinaryVar
	}
	if o.TagVar == "" {
		o.TagVar = DefaultTagVar
	}
	if o.TimeVar == "" {
		o.TimeVar = DefaultTimeVar
	}
	if len(o.Coordinates) == 0 {
		o.Coordinates = domain.DefaultCoordinateNames
	}
	return o
}

// Dataset is an open netCDF file.
type Dataset struct {
	path string
	file *os.File
	nc   *cdf.File
	size int64
	opts Options
}

// Open opens path read-only.
func Open(path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat dataset: %w", err)
	}
	nc, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read netcdf header %s: %w", path, err)
	}
	return &Dataset{path: path, file: f, nc: nc, size: info.Size(), opts: opts.withDefaults()}, nil
}

// Close releases the underlying file.
func (d *Dataset) Close() error {
	return d.file.Close()
}

// Path is the file the dataset was opened from.
func (d *Dataset) Path() string { return d.path }

// Variables lists the variable names in the file.
func (d *Dataset) Variables() []string {
	return d.nc.Header.Variables()
}

func (d *Dataset) has(v string) bool {
	return slices.Contains(d.nc.Header.Variables(), v)
}

// lengths returns the concrete extent of v, with the record dimension
// resolved from the file size.
func (d *Dataset) lengths(v string) []int {
	l := d.nc.Header.Lengths(v)
	if d.nc.Header.IsRecordVariable(v) && len(l) > 0 {
		l[0] = int(d.nc.Header.NumRecs(d.size))
	}
	return l
}

// ReadFloat64 reads v in full, converting numeric types to float64.
func (d *Dataset) ReadFloat64(v string) ([]float64, []int, error) {
	if !d.has(v) {
		return nil, nil, fmt.Errorf("%w: %q in %s", ErrVariableNotFound, v, d.path)
	}
	end := d.lengths(v)
	n := product(end)
	buf := d.nc.Header.ZeroValue(v, n)
	if n > 0 {
		if _, err := d.nc.Reader(v, make([]int, len(end)), end).Read(buf); err != nil {
			return nil, nil, fmt.Errorf("read variable %s: %w", v, err)
		}
	}
	vals, err := toFloat64(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("read variable %s: %w", v, err)
	}
	return vals, end, nil
}

// ReadGrid loads the binary detection field, its time axis and the first
// candidate coordinate pair present in the file. Coordinate variables may
// span any ordered subset of the spatial dimensions (1-D lat/lon axes on a
// structured grid, or per-cell arrays); they are expanded to one value per
// cell.
func (d *Dataset) ReadGrid() (domain.GridField, error) {
	o := d.opts
	h := d.nc.Header

	values, shape, err := d.ReadFloat64(o.BinaryVar)
	if err != nil {
		return domain.GridField{}, err
	}
	dims := h.Dimensions(o.BinaryVar)
	if len(dims) < 2 {
		return domain.GridField{}, fmt.Errorf("%w: %s has dimensions %v, want time plus at least one spatial dimension",
			domain.ErrGridShape, o.BinaryVar, dims)
	}

	times, err := d.readTimes(dims[0], shape[0])
	if err != nil {
		return domain.GridField{}, err
	}

	binary := sparse.ZerosDense(shape...)
	copy(binary.Elements, values)

	grid := domain.GridField{
		Times:        times,
		SpatialDims:  dims[1:],
		SpatialShape: shape[1:],
		Binary:       binary,
		Coords:       make(map[string][]float64),
	}
	for _, c := range o.Coordinates {
		if !d.has(c.Lon) || !d.has(c.Lat) {
			continue
		}
		for _, name := range []string{c.Lon, c.Lat} {
			vals, err := d.readCoordinate(name, grid.SpatialDims, grid.SpatialShape)
			if err != nil {
				return domain.GridField{}, err
			}
			grid.Coords[name] = vals
		}
		break
	}
	return grid, nil
}

func (d *Dataset) readTimes(dim string, n int) ([]time.Time, error) {
	v := d.opts.TimeVar
	if !d.has(v) {
		return nil, fmt.Errorf("%w: time variable %q in %s", ErrVariableNotFound, v, d.path)
	}
	if vd := d.nc.Header.Dimensions(v); len(vd) != 1 || vd[0] != dim {
		return nil, fmt.Errorf("%w: %s has dimensions %v, want [%s]", ErrTimeAxis, v, vd, dim)
	}
	units, _ := d.nc.Header.GetAttribute(v, "units").(string)
	calendar, _ := d.nc.Header.GetAttribute(v, "calendar").(string)
	tu, err := parseTimeUnits(units, calendar)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", v, err)
	}
	raw, _, err := d.ReadFloat64(v)
	if err != nil {
		return nil, err
	}
	if len(raw) != n {
		return nil, fmt.Errorf("%w: %s has %d values, binary field has %d steps", ErrTimeAxis, v, len(raw), n)
	}
	return tu.decode(raw), nil
}

func (d *Dataset) readCoordinate(name string, spatialDims []string, spatialShape []int) ([]float64, error) {
	vals, _, err := d.ReadFloat64(name)
	if err != nil {
		return nil, err
	}
	cells, err := expand(vals, d.nc.Header.Dimensions(name), spatialDims, spatialShape)
	if err != nil {
		return nil, fmt.Errorf("coordinate %s: %w", name, err)
	}
	return cells, nil
}

// expand broadcasts a variable over an ordered subset of the spatial
// dimensions to one value per cell.
func expand(vals []float64, varDims, spatialDims []string, spatialShape []int) ([]float64, error) {
	if slices.Equal(varDims, spatialDims) {
		return vals, nil
	}
	pos := make([]int, len(varDims))
	next := 0
	for i, vd := range varDims {
		j := slices.Index(spatialDims[next:], vd)
		if j < 0 {
			return nil, fmt.Errorf("%w: dimensions %v are not an ordered subset of %v", domain.ErrGridShape, varDims, spatialDims)
		}
		pos[i] = next + j
		next += j + 1
	}

	cells := product(spatialShape)
	out := make([]float64, cells)
	idx := make([]int, len(spatialShape))
	for c := range cells {
		// Unravel c into a row-major spatial index, then ravel the
		// components the variable spans.
		rem := c
		for k := len(spatialShape) - 1; k >= 0; k-- {
			idx[k] = rem % spatialShape[k]
			rem /= spatialShape[k]
		}
		flat := 0
		for _, p := range pos {
			flat = flat*spatialShape[p] + idx[p]
		}
		out[c] = vals[flat]
	}
	return out, nil
}

func product(shape []int) int {
	n := 1
	for _, v := range shape {
		n *= v
	}
	return n
}

func toFloat64(buf any) ([]float64, error) {
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		return convert(b), nil
	case []int32:
		return convert(b), nil
	case []int16:
		return convert(b), nil
	case []int8:
		return convert(b), nil
	case []uint8:
		return convert(b), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", buf)
	}
}

func convert[T float32 | int32 | int16 | int8 | uint8](in []T) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
