package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/storm-track-tagger/internal/domain"
)

// ErrDuplicateOutput is returned when two batch jobs would write the same file.
var ErrDuplicateOutput = errors.New("duplicate output file")

// ErrBatchFailed is returned when at least one batch job failed.
var ErrBatchFailed = errors.New("batch had failed jobs")

// RunBatch runs every request with at most parallel jobs in flight. A failed
// job does not stop the others; results are returned in request order.
func RunBatch(ctx context.Context, runner *Runner, reqs []domain.JobRequest, parallel int) ([]domain.JobResult, error) {
	if err := checkOutputs(reqs); err != nil {
		return nil, err
	}

	results := make([]domain.JobResult, len(reqs))
	var g errgroup.Group
	g.SetLimit(max(parallel, 1))
	for i, req := range reqs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i], _ = runner.Run(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return results, err
	}

	failed := 0
	for _, res := range results {
		if res.Status != domain.StatusSucceeded {
			failed++
		}
	}
	if failed > 0 {
		return results, fmt.Errorf("%w: %d of %d", ErrBatchFailed, failed, len(reqs))
	}
	return results, nil
}

func checkOutputs(reqs []domain.JobRequest) error {
	seen := make(map[string]string, len(reqs))
	for _, req := range reqs {
		out := filepath.Clean(req.OutputFile)
		if prev, ok := seen[out]; ok {
			return fmt.Errorf("%w: %s from both %s and %s", ErrDuplicateOutput, out, prev, req.MaskFile)
		}
		seen[out] = req.MaskFile
	}
	return nil
}
