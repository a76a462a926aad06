// Shared-memory data-parallel model on a persistent worker pool
package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"separable-convolution/internal/algorithms"
	"separable-convolution/internal/core"
	"separable-convolution/internal/reduce"
	"separable-convolution/internal/workerpool"
)

// runDataParallel runs each stage as one parallel loop over all rows. The
// return of every loop is the stage barrier; the whole image is the halo.
func (r *Runner) runDataParallel(ctx context.Context, img *core.Image, report *Report, log logrus.FieldLogger) (*core.Image, error) {
	pool := workerpool.New(r.params.Workers)
	defer pool.Close()

	work := img.Clone()
	rows := work.Rows()
	scratch := core.Rows{Width: rows.Width, Pix: make([]core.Pixel, len(rows.Pix))}
	height := work.Height()
	channels := r.params.Channels()

	life := NewLifecycle(r.params.Iterations)
	if err := life.Advance(HaloReceived); err != nil {
		return nil, err
	}

	var top reduce.AtomicMax
	for k := 0; k < r.params.Iterations; k++ {
		if err := ctx.Err(); err != nil {
			life.Fail()
			return nil, err
		}
		top.Reset()
		var global byte

		for _, stage := range algorithms.Stages() {
			switch stage {
			case algorithms.StageVertical:
				pool.ParallelFor(height, func(start, end int) {
					algorithms.Snapshot(scratch, rows, core.Span{Lo: start, Hi: end})
				})
				pool.ParallelFor(height, func(start, end int) {
					algorithms.Vertical(rows, scratch, core.Span{Lo: start, Hi: end})
				})
			case algorithms.StageHorizontal:
				pool.ParallelFor(height, func(start, end int) {
					span := core.Span{Lo: start, Hi: end}
					top.Observe(algorithms.Horizontal(rows, span, span))
				})
			case algorithms.StageReduce:
				global = top.Load()
			case algorithms.StageNormalize:
				pool.ParallelFor(height, func(start, end int) {
					algorithms.Normalize(rows, core.Span{Lo: start, Hi: end}, global)
				})
			case algorithms.StageEncode:
				// pixels are independent here, so rows go to whichever worker is free
				pool.ParallelForAtomic(height, func(y int) {
					algorithms.Encode(rows, core.Span{Lo: y, Hi: y + 1}, r.kernel, channels)
				})
			case algorithms.StageDecode:
				pool.ParallelForAtomic(height, func(y int) {
					algorithms.Decode(rows, core.Span{Lo: y, Hi: y + 1}, channels)
				})
			}
			if err := life.Advance(StageState(stage)); err != nil {
				return nil, fmt.Errorf("iteration %d: %w", k, err)
			}
		}
		report.GlobalMax = append(report.GlobalMax, global)
		logIteration(log, k, global)
	}

	if err := life.Advance(Gathered); err != nil {
		return nil, err
	}
	if err := life.Advance(Terminated); err != nil {
		return nil, err
	}
	return work, nil
}
