package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-track-tagger/internal/domain"
	"github.com/couchcryptid/storm-track-tagger/internal/pipeline"
)

var (
	step0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	step1 = time.Date(2020, 1, 1, 6, 0, 0, 0, time.UTC)
)

// --- fakes for the runner's collaborators ---

type fakeTracks struct {
	table domain.TrackTable
	err   error
	calls atomic.Int64
}

func (f *fakeTracks) Load(_ context.Context, _ string, _ domain.MeshMode) (domain.TrackTable, error) {
	f.calls.Add(1)
	if f.err != nil {
		return domain.TrackTable{}, f.err
	}
	return f.table, nil
}

type fakeDataset struct {
	grid     domain.GridField
	readErr  error
	writeErr error

	mu      sync.Mutex
	written map[string]domain.TagField
	closed  atomic.Bool
}

func (d *fakeDataset) ReadGrid() (domain.GridField, error) {
	if d.readErr != nil {
		return domain.GridField{}, d.readErr
	}
	return d.grid, nil
}

func (d *fakeDataset) WriteTagged(path string, tags domain.TagField) error {
	if d.writeErr != nil {
		return d.writeErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.written == nil {
		d.written = make(map[string]domain.TagField)
	}
	d.written[path] = tags
	return nil
}

func (d *fakeDataset) Close() error {
	d.closed.Store(true)
	return nil
}

type openCall struct {
	path, binaryVar, tagVar string
}

// fakeGrids serves one shared dataset for every mask path unless a path is
// listed in missing.
type fakeGrids struct {
	dataset *fakeDataset
	missing map[string]bool

	mu    sync.Mutex
	calls []openCall
}

func (g *fakeGrids) open(path, binaryVar, tagVar string) (pipeline.GridDataset, error) {
	g.mu.Lock()
	g.calls = append(g.calls, openCall{path, binaryVar, tagVar})
	g.mu.Unlock()
	if g.missing[path] {
		return nil, errors.New("open dataset: no such file or directory")
	}
	return g.dataset, nil
}

// patchGrid is a 3x3 patch with ~1 km spacing at the origin, every cell
// flagged at both time steps.
func patchGrid() domain.GridField {
	axis := []float64{0, 0.009, 0.018}
	var lons, lats []float64
	for _, lat := range axis {
		for _, lon := range axis {
			lons = append(lons, lon)
			lats = append(lats, lat)
		}
	}
	binary := sparse.ZerosDense(2, 3, 3)
	for i := range binary.Elements {
		binary.Elements[i] = 1
	}
	return domain.GridField{
		Times:        []time.Time{step0, step1},
		SpatialShape: []int{3, 3},
		Binary:       binary,
		Coords:       map[string][]float64{"lon": lons, "lat": lats},
	}
}

// twoStorms has storm 1 at the patch origin at step 0 and storm 2 at the far
// corner at step 1, plus a row on a time the grid does not have.
func twoStorms() domain.TrackTable {
	return domain.TrackTable{
		Storms: []domain.StormHeader{
			{ID: 1, DeclaredSteps: 1, Start: step0},
			{ID: 2, DeclaredSteps: 2, Start: step1},
		},
		Observations: []domain.StormObservation{
			{StormID: 1, Lon: 0, Lat: 0, Year: 2020, Month: 1, Day: 1, Hour: 0},
			{StormID: 2, Lon: 0.018, Lat: 0.018, Year: 2020, Month: 1, Day: 1, Hour: 6},
			{StormID: 2, Lon: 0.018, Lat: 0.018, Year: 2020, Month: 1, Day: 1, Hour: 12},
		},
	}
}

func validRequest(outDir, id string) domain.JobRequest {
	return domain.JobRequest{
		ID:         id,
		TrackFile:  "/data/tracks.txt",
		MaskFile:   "/data/" + id + ".nc",
		OutputFile: filepath.Join(outDir, id+"_tagged.nc"),
	}
}

func makeJobEvent(t *testing.T, req domain.JobRequest) domain.RawEvent {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return domain.RawEvent{
		Key:   []byte(req.ID),
		Value: data,
		Topic: "storm-tag-requests",
	}
}
