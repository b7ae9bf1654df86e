package netcdf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/ctessum/cdf"

	"github.com/couchcryptid/storm-track-tagger/internal/domain"
)

var (
	// ErrSameFile is returned when asked to write a dataset over its own input.
	ErrSameFile = errors.New("output would overwrite input")
	// ErrReservedVariable is returned when the tag variable would replace
	// the binary field, the time axis or a coordinate variable.
	ErrReservedVariable = errors.New("tag variable name is reserved")
)

// WriteTagged writes a copy of the dataset to path with the tag field added
// as an int32 variable over the binary variable's dimensions. Every input
// variable and attribute is carried over; an existing tag variable of the
// same name is replaced unless it is one of the variables the grid is read
// from. The record dimension, if any, becomes a fixed
// dimension in the output.
func (d *Dataset) WriteTagged(path string, tags domain.TagField) error {
	if same, err := samePath(d.path, path); err != nil {
		return err
	} else if same {
		return fmt.Errorf("%w: %s", ErrSameFile, path)
	}
	o := d.opts
	src := d.nc.Header
	if d.reserved(o.TagVar) {
		return fmt.Errorf("%w: %q", ErrReservedVariable, o.TagVar)
	}

	binShape := d.lengths(o.BinaryVar)
	if !slices.Equal(binShape, tags.Shape) {
		return fmt.Errorf("%w: tag field shape %v does not match %s %v", domain.ErrGridShape, tags.Shape, o.BinaryVar, binShape)
	}

	dims := src.Dimensions("")
	lengths := src.Lengths("")
	numRecs := int(src.NumRecs(d.size))
	for i, l := range lengths {
		if l == 0 {
			lengths[i] = numRecs
		}
	}

	h := cdf.NewHeader(dims, lengths)
	copyAttributes(h, src, "")
	vars := make([]string, 0, len(src.Variables()))
	for _, v := range src.Variables() {
		if v == o.TagVar {
			continue
		}
		vars = append(vars, v)
		h.AddVariable(v, src.Dimensions(v), src.ZeroValue(v, 1))
		copyAttributes(h, src, v)
	}
	h.AddVariable(o.TagVar, src.Dimensions(o.BinaryVar), []int32{0})
	h.AddAttribute(o.TagVar, "long_name", "storm track id")
	h.AddAttribute(o.TagVar, "description", "1-based storm index from the track file; 0 where no storm was assigned")
	h.AddAttribute(o.TagVar, "source_variable", o.BinaryVar)
	h.Define()

	return writeAtomic(path, h, func(f *cdf.File) error {
		for _, v := range vars {
			end := d.lengths(v)
			n := product(end)
			if n == 0 {
				continue
			}
			buf := src.ZeroValue(v, n)
			if _, err := d.nc.Reader(v, make([]int, len(end)), end).Read(buf); err != nil {
				return fmt.Errorf("read variable %s: %w", v, err)
			}
			if err := writeVar(f, v, end, buf); err != nil {
				return err
			}
		}
		return writeVar(f, o.TagVar, tags.Shape, tags.Values)
	})
}

// reserved reports whether v is read by ReadGrid or names a dimension.
func (d *Dataset) reserved(v string) bool {
	o := d.opts
	if v == o.BinaryVar || v == o.TimeVar {
		return true
	}
	for _, c := range o.Coordinates {
		if (v == c.Lon || v == c.Lat) && d.has(v) {
			return true
		}
	}
	return slices.Contains(d.nc.Header.Dimensions(""), v)
}

// WriteGrid writes grid as a fresh dataset: a time axis, the binary field as
// bytes and every coordinate as a per-cell double. Spatial dimensions take
// their names from grid.SpatialDims, falling back to ncells for a flat mesh
// and lat/lon for a 2-D grid.
func WriteGrid(path string, grid domain.GridField, opts Options) error {
	if err := grid.Validate(); err != nil {
		return err
	}
	o := opts.withDefaults()
	spatial := grid.SpatialDims
	if len(spatial) != len(grid.SpatialShape) {
		spatial = defaultSpatialDims(len(grid.SpatialShape))
	}
	timeDim := o.TimeVar
	dims := append([]string{timeDim}, spatial...)
	lengths := append([]int{len(grid.Times)}, grid.SpatialShape...)

	h := cdf.NewHeader(dims, lengths)
	h.AddAttribute("", "title", "storm detection mask")

	h.AddVariable(o.TimeVar, []string{timeDim}, []float64{0})
	h.AddAttribute(o.TimeVar, "units", DefaultTimeUnits)
	h.AddAttribute(o.TimeVar, "calendar", "standard")

	h.AddVariable(o.BinaryVar, dims, []int8{0})
	h.AddAttribute(o.BinaryVar, "long_name", "storm detection flag")

	names := make([]string, 0, len(grid.Coords))
	for name := range grid.Coords {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.AddVariable(name, spatial, []float64{0})
		if u := coordinateUnits(name); u != "" {
			h.AddAttribute(name, "units", u)
		}
	}
	h.Define()

	tu, err := parseTimeUnits(DefaultTimeUnits, "standard")
	if err != nil {
		return err
	}
	binary := make([]int8, len(grid.Binary.Elements))
	for i, v := range grid.Binary.Elements {
		if v == 1 {
			binary[i] = 1
		}
	}

	return writeAtomic(path, h, func(f *cdf.File) error {
		if err := writeVar(f, o.TimeVar, []int{len(grid.Times)}, tu.encode(grid.Times)); err != nil {
			return err
		}
		if err := writeVar(f, o.BinaryVar, lengths, binary); err != nil {
			return err
		}
		for _, name := range names {
			if err := writeVar(f, name, grid.SpatialShape, grid.Coords[name]); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeAtomic creates the file next to path, fills it and renames it into
// place so readers never see a partial dataset.
func writeAtomic(path string, h *cdf.Header, fill func(*cdf.File) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	f, err := cdf.Create(tmp, h)
	if err != nil {
		return fmt.Errorf("write netcdf header: %w", err)
	}
	if err = fill(f); err != nil {
		return err
	}
	if err = cdf.UpdateNumRecs(tmp); err != nil {
		return fmt.Errorf("update record count: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}

func writeVar(f *cdf.File, v string, end []int, data any) error {
	if product(end) == 0 {
		return nil
	}
	if _, err := f.Writer(v, make([]int, len(end)), end).Write(data); err != nil {
		return fmt.Errorf("write variable %s: %w", v, err)
	}
	return nil
}

func copyAttributes(dst, src *cdf.Header, v string) {
	for _, a := range src.Attributes(v) {
		dst.AddAttribute(v, a, src.GetAttribute(v, a))
	}
}

func defaultSpatialDims(n int) []string {
	switch n {
	case 1:
		return []string{"ncells"}
	case 2:
		return []string{"lat", "lon"}
	default:
		dims := make([]string, n)
		for i := range dims {
			dims[i] = fmt.Sprintf("dim%d", i)
		}
		return dims
	}
}

func coordinateUnits(name string) string {
	switch {
	case strings.HasPrefix(name, "lon"):
		return "degrees_east"
	case strings.HasPrefix(name, "lat"):
		return "degrees_north"
	default:
		return ""
	}
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", a, err)
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", b, err)
	}
	return absA == absB, nil
}
