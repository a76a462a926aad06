// Explicit-worker model synchronized by a barrier and mutex-guarded maxima
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"separable-convolution/internal/algorithms"
	"separable-convolution/internal/core"
	"separable-convolution/internal/reduce"
	"separable-convolution/internal/workerpool"
)

// runThreadPool starts one goroutine per partition. Workers share the image
// and meet at a barrier after every stage; each iteration has its own
// mutex-guarded maximum so no reset has to be ordered against late readers.
func (r *Runner) runThreadPool(ctx context.Context, img *core.Image, report *Report, log logrus.FieldLogger) (*core.Image, error) {
	n := r.params.Workers
	iterations := r.params.Iterations

	work := img.Clone()
	shared := &threadState{
		rows:     work.Rows(),
		scratch:  core.Rows{Width: work.Width(), Pix: make([]core.Pixel, work.Width()*work.Height())},
		barrier:  workerpool.NewBarrier(n),
		maxes:    make([]reduce.LockedMax, iterations),
		kernel:   r.kernel,
		channels: r.params.Channels(),
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for _, part := range core.Partitions(work.Height(), n) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[part.Index] = shared.work(ctx, part, iterations, log.WithField("worker", part.Index))
		}()
	}
	wg.Wait()
	log.WithField("barrier_phases", shared.barrier.Generation()).Debug("PIPELINE: Workers joined")

	if shared.stopped.Load() {
		return nil, ctx.Err()
	}
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("worker %d: %w", i, err)
		}
	}
	for k := range shared.maxes {
		global := shared.maxes[k].Load()
		report.GlobalMax = append(report.GlobalMax, global)
		logIteration(log, k, global)
	}
	return work, nil
}

type threadState struct {
	rows     core.Rows
	scratch  core.Rows
	barrier  *workerpool.Barrier
	maxes    []reduce.LockedMax
	kernel   []float32
	channels int
	// stopped is written by worker 0 before the closing barrier of an
	// iteration and read by everyone after it, so all workers agree.
	stopped atomic.Bool
}

func (s *threadState) work(ctx context.Context, part core.Partition, iterations int, log logrus.FieldLogger) error {
	own := part.Span()
	life := NewLifecycle(iterations)
	lifeErr := life.Advance(HaloReceived)

	for k := 0; k < iterations; k++ {
		var global byte
		for _, stage := range algorithms.Stages() {
			switch stage {
			case algorithms.StageVertical:
				algorithms.Snapshot(s.scratch, s.rows, own)
				s.barrier.Wait()
				algorithms.Vertical(s.rows, s.scratch, own)
			case algorithms.StageHorizontal:
				s.maxes[k].Observe(algorithms.Horizontal(s.rows, own, own))
			case algorithms.StageReduce:
				global = s.maxes[k].Load()
			case algorithms.StageNormalize:
				algorithms.Normalize(s.rows, own, global)
			case algorithms.StageEncode:
				algorithms.Encode(s.rows, own, s.kernel, s.channels)
			case algorithms.StageDecode:
				algorithms.Decode(s.rows, own, s.channels)
				if part.Index == 0 && ctx.Err() != nil {
					s.stopped.Store(true)
				}
			}
			// a worker that errs keeps meeting the barrier so the others finish
			if err := life.Advance(StageState(stage)); err != nil && lifeErr == nil {
				lifeErr = fmt.Errorf("iteration %d: %w", k, err)
				log.WithError(err).Error("PIPELINE: Worker lifecycle violated")
			}
			// the horizontal barrier completes the reduction
			if stage != algorithms.StageReduce {
				s.barrier.Wait()
			}
		}
		if s.stopped.Load() {
			life.Fail()
			return ctx.Err()
		}
	}

	if lifeErr != nil {
		return lifeErr
	}
	if err := life.Advance(Gathered); err != nil {
		return err
	}
	return life.Advance(Terminated)
}
