package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-track-tagger/internal/adapter/netcdf"
	"github.com/couchcryptid/storm-track-tagger/internal/domain"
)

func TestCheck(t *testing.T) {
	shape := []int{2, 3}
	binary := []float64{1, 1, 0, 0, 1, 1}

	tests := []struct {
		name         string
		tags         []float64
		maxID        int
		wantCoverage int
		wantRange    int
	}{
		{"clean", []float64{1, 2, 0, 0, 2, 0}, 2, 0, 0},
		{"no upper bound", []float64{7, 0, 0, 0, 9, 0}, 0, 0, 0},
		{"tag on unflagged cell", []float64{1, 0, 1, 2, 0, 0}, 2, 2, 0},
		{"id above max", []float64{1, 3, 0, 0, 0, 0}, 2, 0, 1},
		{"negative id", []float64{-1, 0, 0, 0, 0, 0}, 0, 0, 1},
		{"fractional id", []float64{1.5, 0, 0, 0, 0, 0}, 0, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := check(binary, tt.tags, shape, tt.maxID)
			assert.Equal(t, 4, r.flagged)
			assert.Equal(t, tt.wantCoverage, r.phases[0].total)
			assert.Equal(t, tt.wantRange, r.phases[1].total)
		})
	}
}

func TestCheck_CapsReportedErrors(t *testing.T) {
	n := maxReported + 5
	r := check(make([]float64, n), onesLike(n), []int{n}, 0)
	assert.Equal(t, n, r.phases[0].total)
	assert.Len(t, r.phases[0].errors, maxReported)
	assert.Equal(t, map[int]int{1: n}, r.perStorm)
}

func TestUnravel(t *testing.T) {
	assert.Equal(t, []int{1, 0, 2}, unravel(14, []int{2, 4, 3}))
	assert.Equal(t, []int{0}, unravel(0, []int{5}))
}

func TestRun(t *testing.T) {
	binary := sparse.ZerosDense(1, 3)
	copy(binary.Elements, []float64{1, 0, 1})
	grid := domain.GridField{
		Times:        []time.Time{time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		SpatialShape: []int{3},
		Binary:       binary,
		Coords:       map[string][]float64{"lon": {0, 1, 2}, "lat": {0, 0, 0}},
	}
	dir := t.TempDir()
	mask := filepath.Join(dir, "mask.nc")
	require.NoError(t, netcdf.WriteGrid(mask, grid, netcdf.Options{}))
	ds, err := netcdf.Open(mask, netcdf.Options{})
	require.NoError(t, err)
	defer ds.Close()

	good := domain.TagField{Shape: []int{1, 3}, Values: []int32{1, 0, 2}}
	goodPath := filepath.Join(dir, "good.nc")
	require.NoError(t, ds.WriteTagged(goodPath, good))
	assert.Equal(t, 0, run(goodPath, netcdf.DefaultBinaryVar, netcdf.DefaultTagVar, 2))
	assert.Equal(t, 1, run(goodPath, netcdf.DefaultBinaryVar, netcdf.DefaultTagVar, 1))

	bad := domain.TagField{Shape: []int{1, 3}, Values: []int32{1, 1, 0}}
	badPath := filepath.Join(dir, "bad.nc")
	require.NoError(t, ds.WriteTagged(badPath, bad))
	assert.Equal(t, 1, run(badPath, netcdf.DefaultBinaryVar, netcdf.DefaultTagVar, 0))

	assert.Equal(t, 1, run(mask, netcdf.DefaultBinaryVar, netcdf.DefaultTagVar, 0), "untagged mask")
	assert.Equal(t, 1, run(filepath.Join(dir, "missing.nc"), netcdf.DefaultBinaryVar, netcdf.DefaultTagVar, 0))
}

func onesLike(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
