package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-track-tagger/internal/domain"
	"github.com/couchcryptid/storm-track-tagger/internal/observability"
)

// BatchExtractor reads up to batchSize job request messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer runs the job a raw event describes and encodes its result.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error)
}

// BatchLoader publishes multiple job results to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

// Pipeline is the service loop: extract job requests, run them and publish
// their results.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil if the pipeline has published at least one job
// result, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any jobs yet")
	}
	return nil
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	retry := newBackoff(200*time.Millisecond, 5*time.Second)
	for ctx.Err() == nil {
		if !p.runBatch(ctx, retry) {
			break
		}
	}
	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

// jobBatch is the outcome of running every request in one extracted batch.
type jobBatch struct {
	results   []domain.OutputEvent
	published []domain.RawEvent // committed once results are loaded
	succeeded int
	failed    int
	rejected  int
}

// runBatch extracts requests, runs them and publishes their results.
// Returns false if the pipeline should stop.
func (p *Pipeline) runBatch(ctx context.Context, retry *backoff) bool {
	start := time.Now()

	msgs, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return retry.wait(ctx)
	}
	if len(msgs) == 0 {
		return ctx.Err() == nil
	}
	p.metrics.JobsConsumed.Add(float64(len(msgs)))
	p.metrics.BatchSize.Observe(float64(len(msgs)))
	retry.reset()

	batch, ok := p.runJobs(ctx, msgs)
	if !ok {
		// Shutdown cut a job short: nothing from this batch is published or
		// committed past the rejected messages, so the rest is redelivered.
		return false
	}
	if len(batch.results) == 0 {
		return true
	}

	if err := p.loader.LoadBatch(ctx, batch.results); err != nil {
		p.logger.Error("publish results failed", "error", err, "results", len(batch.results))
		return retry.wait(ctx)
	}
	p.metrics.ResultsProduced.Add(float64(len(batch.results)))
	for _, raw := range batch.published {
		p.commitOffset(ctx, raw)
	}

	p.ready.Store(true)
	elapsed := time.Since(start)
	p.metrics.BatchProcessingDuration.Observe(elapsed.Seconds())
	p.logger.Info("job batch published",
		"succeeded", batch.succeeded,
		"failed", batch.failed,
		"rejected", batch.rejected,
		"duration", elapsed,
	)
	return true
}

// runJobs runs each request in order. Messages that are not job requests are
// committed straight away; failed jobs still yield a result to publish.
// Returns false when ctx ended mid-job.
func (p *Pipeline) runJobs(ctx context.Context, msgs []domain.RawEvent) (jobBatch, bool) {
	batch := jobBatch{
		results:   make([]domain.OutputEvent, 0, len(msgs)),
		published: make([]domain.RawEvent, 0, len(msgs)),
	}
	for _, raw := range msgs {
		out, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			if ctx.Err() != nil {
				return batch, false
			}
			p.logger.Warn("not a job request, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.JobsProcessed.WithLabelValues("rejected").Inc()
			batch.rejected++
			p.commitOffset(ctx, raw)
			continue
		}
		if out.Headers["status"] == domain.StatusFailed {
			batch.failed++
		} else {
			batch.succeeded++
		}
		batch.results = append(batch.results, out)
		batch.published = append(batch.published, raw)
	}
	return batch, true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// backoff doubles the retry delay after each failure up to a cap.
type backoff struct {
	initial, max, current time.Duration
}

func newBackoff(initial, ceiling time.Duration) *backoff {
	return &backoff{initial: initial, max: ceiling, current: initial}
}

func (b *backoff) reset() {
	b.current = b.initial
}

// wait sleeps for the current delay and advances it. Returns false if ctx
// ends first.
func (b *backoff) wait(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	timer := time.NewTimer(b.current)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	b.current = min(b.current*2, b.max)
	return true
}
