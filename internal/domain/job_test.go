package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTrackFile = "/data/ETC_tracks.txt"
	testMaskFile  = "/data/ETC_mask_2020.nc"
	testOutFile   = "/data/ETC_mask_2020_tagged.nc"
)

func TestParseJobRequest(t *testing.T) {
	t.Run("full request", func(t *testing.T) {
		raw := RawEvent{Value: []byte(`{"id":"job-1","track_file":"` + testTrackFile + `","mask_file":"` + testMaskFile +
			`","output_file":"` + testOutFile + `","mesh":"structured","threshold_m":500000}`)}
		req, err := ParseJobRequest(raw)
		require.NoError(t, err)

		assert.Equal(t, "job-1", req.ID)
		assert.Equal(t, testTrackFile, req.TrackFile)
		assert.Equal(t, "structured", req.Mesh)
		require.NotNil(t, req.Threshold)
		assert.Equal(t, 500000.0, *req.Threshold)
	})

	t.Run("explicit zero threshold kept", func(t *testing.T) {
		raw := RawEvent{Value: []byte(`{"track_file":"a","mask_file":"b","output_file":"c","threshold_m":0}`)}
		req, err := ParseJobRequest(raw)
		require.NoError(t, err)
		require.NotNil(t, req.Threshold)
		assert.Zero(t, *req.Threshold)

		raw = RawEvent{Value: []byte(`{"track_file":"a","mask_file":"b","output_file":"c"}`)}
		req, err = ParseJobRequest(raw)
		require.NoError(t, err)
		assert.Nil(t, req.Threshold)
	})

	t.Run("id from message key", func(t *testing.T) {
		raw := RawEvent{
			Key:   []byte("keyed-job"),
			Value: []byte(`{"track_file":"a","mask_file":"b","output_file":"c"}`),
		}
		req, err := ParseJobRequest(raw)
		require.NoError(t, err)
		assert.Equal(t, "keyed-job", req.ID)
	})

	t.Run("generated id", func(t *testing.T) {
		raw := RawEvent{Value: []byte(`{"track_file":"a","mask_file":"b","output_file":"c"}`)}
		req, err := ParseJobRequest(raw)
		require.NoError(t, err)
		_, err = uuid.Parse(req.ID)
		assert.NoError(t, err)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := ParseJobRequest(RawEvent{Value: []byte("{not json")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse job request")
	})

	t.Run("missing fields keeps id", func(t *testing.T) {
		req, err := ParseJobRequest(RawEvent{Key: []byte("k"), Value: []byte(`{"track_file":"a"}`)})
		require.ErrorIs(t, err, ErrInvalidJob)
		assert.Contains(t, err.Error(), "mask_file, output_file")
		assert.Equal(t, "k", req.ID)
	})
}

func TestJobRequestValidate(t *testing.T) {
	base := JobRequest{TrackFile: "t", MaskFile: "m", OutputFile: "o"}
	require.NoError(t, base.Validate())

	tests := []struct {
		name    string
		mutate  func(*JobRequest)
		wantMsg string
	}{
		{"output overwrites input", func(r *JobRequest) { r.OutputFile = r.MaskFile }, "must differ"},
		{"bad mesh", func(r *JobRequest) { r.Mesh = "icosahedral" }, "unknown mesh mode"},
		{"negative threshold", func(r *JobRequest) { r.Threshold = ptr(-1.0) }, "negative threshold_m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			err := req.Validate()
			require.ErrorIs(t, err, ErrInvalidJob)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestJobResult_ApplyStatsAndDuration(t *testing.T) {
	fixed := time.Date(2024, 4, 27, 6, 0, 0, 0, time.UTC)
	fake := clockwork.NewFakeClockAt(fixed)
	SetClock(fake)
	defer SetClock(nil)

	res := JobResult{ID: "j", StartedAt: Now()}
	fake.Advance(90 * time.Second)
	res.FinishedAt = Now()
	res.ApplyStats(TagStats{Observations: 10, MatchedGroups: 3, SkippedGroups: 1, TaggedCells: 42, Overwrites: 2})

	assert.Equal(t, fixed, res.StartedAt)
	assert.Equal(t, 90*time.Second, res.Duration())
	assert.Equal(t, 10, res.Observations)
	assert.Equal(t, 3, res.MatchedGroups)
	assert.Equal(t, 1, res.SkippedGroups)
	assert.Equal(t, 42, res.TaggedCells)
	assert.Equal(t, 2, res.Overwrites)
}

func TestNewResultEvent(t *testing.T) {
	finished := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	res := JobResult{ID: "job-7", Status: StatusSucceeded, TaggedCells: 12, FinishedAt: finished}

	out, err := NewResultEvent(res)
	require.NoError(t, err)

	assert.Equal(t, []byte("job-7"), out.Key)
	assert.Contains(t, string(out.Value), `"tagged_cells":12`)
	assert.Equal(t, StatusSucceeded, out.Headers["status"])
	assert.Equal(t, finished.Format(time.RFC3339), out.Headers["finished_at"])
}
