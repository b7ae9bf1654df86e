package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-track-tagger/internal/adapter/netcdf"
	"github.com/couchcryptid/storm-track-tagger/internal/domain"
)

const trackText = `start 1 2020 1 1 0
0 0.0 0.0 2020 1 1 0
start 1 2020 1 1 6
3 10.0 0.0 2020 1 1 6
`

// writeFixture writes a four-cell mesh with two steps, one storm per step.
func writeFixture(t *testing.T, dir, name string) (tracks, mask string) {
	t.Helper()
	binary := sparse.ZerosDense(2, 4)
	copy(binary.Elements, []float64{1, 1, 0, 0, 0, 0, 1, 1})
	grid := domain.GridField{
		Times: []time.Time{
			time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2020, 1, 1, 6, 0, 0, 0, time.UTC),
		},
		SpatialShape: []int{4},
		Binary:       binary,
		Coords: map[string][]float64{
			"lon": {0, 1, 9, 10},
			"lat": {0, 0, 0, 0},
		},
	}
	mask = filepath.Join(dir, name)
	require.NoError(t, netcdf.WriteGrid(mask, grid, netcdf.Options{}))
	tracks = filepath.Join(dir, "tracks.txt")
	require.NoError(t, os.WriteFile(tracks, []byte(trackText), 0o644))
	return tracks, mask
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func readTags(t *testing.T, path string) []float64 {
	t.Helper()
	ds, err := netcdf.Open(path, netcdf.Options{})
	require.NoError(t, err)
	defer ds.Close()
	vals, _, err := ds.ReadFloat64(netcdf.DefaultTagVar)
	require.NoError(t, err)
	return vals
}

func TestTagCommand(t *testing.T) {
	dir := t.TempDir()
	tracks, mask := writeFixture(t, dir, "mask.nc")
	out := filepath.Join(dir, "mask_tagged.nc")

	stdout, err := execute(t, "tag", tracks, mask, out, "--threshold", "200000", "--log-level", "error")
	require.NoError(t, err)

	var res domain.JobResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, "mask", res.ID)
	assert.Equal(t, domain.StatusSucceeded, res.Status)
	assert.Equal(t, 2, res.Storms)
	assert.Equal(t, 4, res.TaggedCells)

	assert.Equal(t, []float64{1, 1, 0, 0, 0, 0, 2, 2}, readTags(t, out))
}

func TestTagCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	tracks, mask := writeFixture(t, dir, "mask.nc")

	_, err := execute(t, "tag", tracks, mask)
	require.Error(t, err, "three arguments are required")

	_, err = execute(t, "tag", tracks, mask, mask, "--log-level", "error")
	require.ErrorIs(t, err, domain.ErrInvalidJob)

	_, err = execute(t, "tag", filepath.Join(dir, "none.txt"), mask, filepath.Join(dir, "o.nc"), "--log-level", "error")
	require.ErrorIs(t, err, os.ErrNotExist)

	t.Cleanup(func() { tagTagVar = "" })
	out := filepath.Join(dir, "clobber.nc")
	_, err = execute(t, "tag", tracks, mask, out, "--tag-var", netcdf.DefaultBinaryVar, "--log-level", "error")
	require.ErrorIs(t, err, domain.ErrInvalidJob)
	assert.NoFileExists(t, out)
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mask_a.nc")
	writeFixture(t, dir, "mask_b.nc")
	job := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(job, []byte(`
track_file: tracks.txt
mask_files: [mask_a.nc, mask_b.nc]
output_dir: out
threshold_m: 200000
parallel_files: 2
`), 0o644))

	stdout, err := execute(t, "batch", "--job", job, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, "mask_a")
	assert.Contains(t, stdout, "mask_b")

	for _, name := range []string{"mask_a_tagged.nc", "mask_b_tagged.nc"} {
		assert.Equal(t, []float64{1, 1, 0, 0, 0, 0, 2, 2}, readTags(t, filepath.Join(dir, "out", name)))
	}
}

func TestVersionCommand(t *testing.T) {
	stdout, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "storm-tagger dev")
}
