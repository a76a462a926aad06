// Package pipeline runs the iterated depthwise-separable convolution under one
// of the three concurrency models and gathers the result.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"separable-convolution/internal/algorithms"
	"separable-convolution/internal/config"
	"separable-convolution/internal/core"
)

// Report summarises a finished run.
type Report struct {
	RunID      uuid.UUID
	Model      config.Model
	Workers    int
	Iterations int
	Channels   int
	Duration   time.Duration
	// GlobalMax holds the reduced maximum of every iteration before flooring.
	GlobalMax []byte
}

// Runner executes runs with fixed parameters. A Runner holds no per-run state
// and may be reused.
type Runner struct {
	params config.Params
	kernel []float32
	logger logrus.FieldLogger
}

// New validates params and prepares the depthwise kernel.
func New(params config.Params, logger logrus.FieldLogger) (*Runner, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return &Runner{
		params: params,
		kernel: algorithms.DepthwiseKernel(params.Seed),
		logger: logger,
	}, nil
}

// Params returns the parameters the runner was built with.
func (r *Runner) Params() config.Params {
	return r.params
}

// Run processes img with the configured in-process model and returns a new
// image; img itself is not modified.
func (r *Runner) Run(ctx context.Context, img *core.Image) (*core.Image, *Report, error) {
	if err := core.ValidateImage(img); err != nil {
		return nil, nil, err
	}

	report := r.newReport(uuid.New(), r.params.Workers)
	log := r.runLogger(report)
	log.WithFields(logrus.Fields{
		"width":  img.Width(),
		"height": img.Height(),
	}).Info("PIPELINE: Run started")

	start := time.Now()
	var (
		out *core.Image
		err error
	)
	switch r.params.Model {
	case config.ModelDistributed:
		out, err = r.runDistributed(ctx, img, report, log)
	case config.ModelDataParallel:
		out, err = r.runDataParallel(ctx, img, report, log)
	case config.ModelThreadPool:
		out, err = r.runThreadPool(ctx, img, report, log)
	default:
		err = fmt.Errorf("unknown model %q", r.params.Model)
	}
	report.Duration = time.Since(start)

	if err != nil {
		log.WithError(err).Error("PIPELINE: Run failed")
		return nil, nil, err
	}
	log.WithField("duration_ms", report.Duration.Milliseconds()).Info("PIPELINE: Run complete")
	return out, report, nil
}

func (r *Runner) newReport(runID uuid.UUID, workers int) *Report {
	return &Report{
		RunID:      runID,
		Model:      r.params.Model,
		Workers:    workers,
		Iterations: r.params.Iterations,
		Channels:   r.params.Channels(),
		GlobalMax:  make([]byte, 0, r.params.Iterations),
	}
}

func (r *Runner) runLogger(report *Report) logrus.FieldLogger {
	return r.logger.WithFields(logrus.Fields{
		"run_id":     report.RunID,
		"model":      report.Model,
		"workers":    report.Workers,
		"iterations": report.Iterations,
		"channels":   report.Channels,
	})
}

func logIteration(log logrus.FieldLogger, k int, globalMax byte) {
	log.WithFields(logrus.Fields{
		"iteration":  k,
		"global_max": globalMax,
	}).Debug("PIPELINE: Iteration complete")
}
