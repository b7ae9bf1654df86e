package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/storm-track-tagger/internal/domain"
)

// JobTransformer implements Transformer by running each job request through
// a Runner and encoding the result for the sink topic.
type JobTransformer struct {
	runner *Runner
	logger *slog.Logger
}

// NewTransformer creates a JobTransformer.
func NewTransformer(runner *Runner, logger *slog.Logger) *JobTransformer {
	return &JobTransformer{runner: runner, logger: logger}
}

// Transform returns an error only for messages that are not job requests at
// all or when ctx ends mid-job. Jobs that fail are reported as failed results.
func (t *JobTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	req, err := domain.ParseJobRequest(raw)
	if err != nil && req.ID == "" {
		return domain.OutputEvent{}, err
	}

	res, err := t.runner.Run(ctx, req)
	if err != nil && ctx.Err() != nil {
		return domain.OutputEvent{}, ctx.Err()
	}
	return domain.NewResultEvent(res)
}
