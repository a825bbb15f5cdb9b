package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/imgopt/internal/model"
	"github.com/nao1215/imgopt/internal/tree"
)

// WalkSource feeds files to a WalkFunc in discovery order.
// tree.Walk bound to a root and exclusion set is the usual source.
type WalkSource func(fn tree.WalkFunc) error

// BatchProcessor runs a pipeline over the files of one site.
// It uses errgroup to bound the number of files in flight.
type BatchProcessor struct {
	// pipeline is shared by all workers.
	pipeline *Pipeline

	// concurrency is the maximum number of files processed at once.
	concurrency int

	// inline runs every file on the walking goroutine.
	inline bool

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of files processed at once.
// Default is 1 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithInline forces every file to run on the walking goroutine.
// Dry runs use it so their log lines follow discovery order.
func WithInline(inline bool) BatchOption {
	return func(b *BatchProcessor) {
		b.inline = inline
	}
}

// NewBatchProcessor creates a new BatchProcessor for pipeline.
func NewBatchProcessor(pipeline *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipeline:    pipeline,
		concurrency: 1,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// Process runs the pipeline for every file produced by source.
//
// Results are returned in discovery order regardless of completion order.
// A failing file never stops the batch. Cancellation stops feeding new
// files; files already in flight are drained. The returned error is the
// error of source (including ctx.Err() after cancellation), reported only
// after all in-flight files finished.
func (bp *BatchProcessor) Process(ctx context.Context, siteRoot string, source WalkSource) ([]*model.FileResult, error) {
	startTime := time.Now()
	results := make([]*model.FileResult, 0)

	// No errgroup context: one file's failure must not cancel the others.
	var g errgroup.Group
	g.SetLimit(bp.concurrency)
	sequential := bp.inline || bp.concurrency == 1

	walkErr := source(func(file model.ImageFile) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		result := model.NewFileResult(file, siteRoot)
		results = append(results, result)

		if sequential {
			bp.run(ctx, result)
			return nil
		}

		g.Go(func() error {
			bp.run(ctx, result)
			return nil
		})
		return nil
	})

	_ = g.Wait() //nolint:errcheck // workers always return nil

	bp.logger.Debug("batch complete",
		"root", siteRoot,
		"files", len(results),
		"concurrency", bp.concurrency,
		"elapsed", time.Since(startTime),
	)

	return results, walkErr
}

// run executes the pipeline for one file and records the duration.
func (bp *BatchProcessor) run(ctx context.Context, result *model.FileResult) {
	start := time.Now()
	_ = bp.pipeline.Execute(ctx, result) //nolint:errcheck // outcome is stored in result
	result.Duration = time.Since(start)
}
