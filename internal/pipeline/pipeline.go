package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/imgopt/internal/model"
)

// ErrStop ends the pipeline for the current file without signalling a
// failure. Steps return it after they settled the file's outcome.
var ErrStop = errors.New("pipeline stopped")

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, each receiving the result built by the
// previous steps. A pipeline is shared by all workers of a site, so steps
// must be safe for concurrent use.
type Step interface {
	// Do executes the pipeline step.
	// Soft failures are recorded in the result and Do returns nil.
	// ErrStop ends the pipeline normally; any other error ends it with
	// the result already marked as failed.
	Do(ctx context.Context, result *model.FileResult) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps for one file.
// Cancellation is checked before each step; steps that block handle the
// context themselves. A result that is still pending when the pipeline
// ends after the last step is marked as optimized; a result left pending
// by cancellation is marked as failed.
func (p *Pipeline) Execute(ctx context.Context, result *model.FileResult) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Debug("pipeline cancelled",
				"step", step.Name(),
				"path", result.File.Path,
				"reason", ctx.Err(),
			)
			if result.Outcome == model.OutcomePending {
				result.Fail("cancelled: " + ctx.Err().Error())
			}
			return ctx.Err()
		default:
		}

		err := step.Do(ctx, result)
		if errors.Is(err, ErrStop) {
			p.logger.Debug("pipeline stopped",
				"step", step.Name(),
				"path", result.File.Path,
				"outcome", result.Outcome,
			)
			return nil
		}
		if err != nil {
			if result.Outcome == model.OutcomePending {
				result.Fail(err.Error())
			}
			p.logger.Debug("step failed",
				"step", step.Name(),
				"path", result.File.Path,
				"error", err,
			)
			return err
		}
	}

	if result.Outcome == model.OutcomePending {
		result.Outcome = model.OutcomeOptimized
	}
	return nil
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
