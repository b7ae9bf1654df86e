package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/storm-track-tagger/internal/domain"
	"github.com/couchcryptid/storm-track-tagger/internal/observability"
)

// TrackLoader returns the parsed track table for a file.
type TrackLoader interface {
	Load(ctx context.Context, path string, mode domain.MeshMode) (domain.TrackTable, error)
}

// GridDataset is an open detection mask.
type GridDataset interface {
	ReadGrid() (domain.GridField, error)
	WriteTagged(path string, tags domain.TagField) error
	Close() error
}

// GridOpener opens the mask at path with the given binary and tag variable names.
type GridOpener func(path, binaryVar, tagVar string) (GridDataset, error)

// StatusStore keeps the latest result per job id.
type StatusStore interface {
	Put(ctx context.Context, res domain.JobResult) error
	Get(ctx context.Context, id string) (domain.JobResult, error)
}

// RunnerConfig holds the defaults a request may override.
type RunnerConfig struct {
	Tagger    domain.Tagger
	BinaryVar string
	TagVar    string
}

// Runner executes single tagging jobs: load tracks, read the mask, assign
// storm ids and write the tagged copy.
type Runner struct {
	tracks   TrackLoader
	openGrid GridOpener
	cfg      RunnerConfig
	status   StatusStore
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewRunner creates a Runner. status and metrics may be nil.
func NewRunner(tracks TrackLoader, openGrid GridOpener, cfg RunnerConfig, status StatusStore, metrics *observability.Metrics, logger *slog.Logger) *Runner {
	return &Runner{
		tracks:   tracks,
		openGrid: openGrid,
		cfg:      cfg,
		status:   status,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run executes req. The returned result is always populated; on failure its
// status is failed and the error is also returned.
func (r *Runner) Run(ctx context.Context, req domain.JobRequest) (domain.JobResult, error) {
	res := domain.JobResult{
		ID:         req.ID,
		Status:     domain.StatusRunning,
		TrackFile:  req.TrackFile,
		MaskFile:   req.MaskFile,
		OutputFile: req.OutputFile,
		StartedAt:  domain.Now(),
	}
	logger := r.logger.With("job_id", req.ID, "track_file", req.TrackFile, "mask_file", req.MaskFile)
	r.putStatus(ctx, res, logger)

	stats, storms, err := r.execute(ctx, req, logger)
	res.FinishedAt = domain.Now()
	res.Storms = storms
	res.ApplyStats(stats)
	if err != nil {
		res.Status = domain.StatusFailed
		res.Error = err.Error()
		logger.Error("tagging job failed", "error", err, "duration", res.Duration())
	} else {
		res.Status = domain.StatusSucceeded
		logger.Info("tagging job complete",
			"output_file", req.OutputFile,
			"storms", storms,
			"matched_groups", stats.MatchedGroups,
			"skipped_groups", stats.SkippedGroups,
			"tagged_cells", stats.TaggedCells,
			"duration", res.Duration(),
		)
	}
	r.record(res)
	// The job's own context may be done; the final status still has to land.
	r.putStatus(context.WithoutCancel(ctx), res, logger)
	return res, err
}

func (r *Runner) execute(ctx context.Context, req domain.JobRequest, logger *slog.Logger) (domain.TagStats, int, error) {
	if err := req.Validate(); err != nil {
		return domain.TagStats{}, 0, err
	}
	mode, err := domain.ParseMeshMode(req.Mesh)
	if err != nil {
		return domain.TagStats{}, 0, err
	}
	binaryVar := orDefault(req.BinaryVar, r.cfg.BinaryVar)
	tagVar := orDefault(req.TagVar, r.cfg.TagVar)
	if tagVar == binaryVar {
		return domain.TagStats{}, 0, fmt.Errorf("%w: tag variable %q would replace the binary variable", domain.ErrInvalidJob, tagVar)
	}

	tracks, err := r.tracks.Load(ctx, req.TrackFile, mode)
	if err != nil {
		return domain.TagStats{}, 0, fmt.Errorf("load tracks: %w", err)
	}
	for _, m := range tracks.StepMismatches() {
		logger.Warn("storm row count differs from header",
			"storm_id", m.StormID, "declared", m.Declared, "observed", m.Observed)
	}

	ds, err := r.openGrid(req.MaskFile, binaryVar, tagVar)
	if err != nil {
		return domain.TagStats{}, len(tracks.Storms), fmt.Errorf("open mask: %w", err)
	}
	defer ds.Close()

	grid, err := ds.ReadGrid()
	if err != nil {
		return domain.TagStats{}, len(tracks.Storms), fmt.Errorf("read mask: %w", err)
	}
	logger.Debug("mask loaded", "time_steps", len(grid.Times), "shape", grid.SpatialShape)

	tagger := r.cfg.Tagger
	if req.Threshold != nil {
		tagger.Threshold = *req.Threshold
	}
	tagger.Logger = logger

	tags, stats, err := tagger.AssignIDs(ctx, tracks, grid)
	if err != nil {
		return domain.TagStats{}, len(tracks.Storms), fmt.Errorf("assign storm ids: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputFile), 0o755); err != nil {
		return stats, len(tracks.Storms), fmt.Errorf("create output directory: %w", err)
	}
	if err := ds.WriteTagged(req.OutputFile, tags); err != nil {
		return stats, len(tracks.Storms), fmt.Errorf("write output: %w", err)
	}
	return stats, len(tracks.Storms), nil
}

func (r *Runner) putStatus(ctx context.Context, res domain.JobResult, logger *slog.Logger) {
	if r.status == nil {
		return
	}
	if err := r.status.Put(ctx, res); err != nil {
		logger.Warn("store job status failed", "status", res.Status, "error", err)
	}
}

func (r *Runner) record(res domain.JobResult) {
	if r.metrics == nil {
		return
	}
	r.metrics.JobsProcessed.WithLabelValues(res.Status).Inc()
	r.metrics.TaggingDuration.Observe(res.Duration().Seconds())
	r.metrics.TaggedCells.Add(float64(res.TaggedCells))
	r.metrics.SkippedGroups.Add(float64(res.SkippedGroups))
	r.metrics.Overwrites.Add(float64(res.Overwrites))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
