package pipeline_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-track-tagger/internal/domain"
	"github.com/couchcryptid/storm-track-tagger/internal/pipeline"
)

func batchRequests(t *testing.T, n int) []domain.JobRequest {
	t.Helper()
	dir := t.TempDir()
	reqs := make([]domain.JobRequest, n)
	for i := range reqs {
		reqs[i] = validRequest(dir, fmt.Sprintf("mask_%02d", i))
	}
	return reqs
}

func TestRunBatch_AllSucceed(t *testing.T) {
	f := newRunnerFixture(t, defaultRunnerConfig, nil)
	reqs := batchRequests(t, 6)

	results, err := pipeline.RunBatch(context.Background(), f.runner, reqs, 3)
	require.NoError(t, err)
	require.Len(t, results, len(reqs))
	for i, res := range results {
		assert.Equal(t, reqs[i].ID, res.ID, "results keep request order")
		assert.Equal(t, domain.StatusSucceeded, res.Status)
	}
	assert.Len(t, f.dataset.written, len(reqs))
	// The track file is loaded once per job; caching is the loader's concern.
	assert.EqualValues(t, len(reqs), f.tracks.calls.Load())
}

func TestRunBatch_FailedJobsDoNotStopOthers(t *testing.T) {
	f := newRunnerFixture(t, defaultRunnerConfig, nil)
	reqs := batchRequests(t, 4)
	f.grids.missing = map[string]bool{reqs[1].MaskFile: true, reqs[3].MaskFile: true}

	results, err := pipeline.RunBatch(context.Background(), f.runner, reqs, 2)
	require.ErrorIs(t, err, pipeline.ErrBatchFailed)
	assert.Contains(t, err.Error(), "2 of 4")

	statuses := make([]string, len(results))
	for i, res := range results {
		statuses[i] = res.Status
	}
	assert.Equal(t, []string{
		domain.StatusSucceeded, domain.StatusFailed,
		domain.StatusSucceeded, domain.StatusFailed,
	}, statuses)
	assert.Len(t, f.dataset.written, 2)
}

func TestRunBatch_DuplicateOutputs(t *testing.T) {
	f := newRunnerFixture(t, defaultRunnerConfig, nil)
	reqs := batchRequests(t, 2)
	reqs[1].OutputFile = reqs[0].OutputFile + "/."

	_, err := pipeline.RunBatch(context.Background(), f.runner, reqs, 2)
	require.ErrorIs(t, err, pipeline.ErrDuplicateOutput)
	assert.Zero(t, f.tracks.calls.Load(), "no job runs when outputs collide")
}

func TestRunBatch_Cancelled(t *testing.T) {
	f := newRunnerFixture(t, defaultRunnerConfig, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := pipeline.RunBatch(ctx, f.runner, batchRequests(t, 3), 1)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 3)
	assert.Empty(t, f.dataset.written)
}

func TestRunBatch_Empty(t *testing.T) {
	runner := pipeline.NewRunner(&fakeTracks{}, (&fakeGrids{}).open, defaultRunnerConfig, nil, nil, slog.Default())
	results, err := pipeline.RunBatch(context.Background(), runner, nil, 4)
	require.NoError(t, err)
	assert.Empty(t, results)
}
