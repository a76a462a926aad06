// Message-passing model: ranks share nothing and exchange encoded frames
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"separable-convolution/internal/algorithms"
	"separable-convolution/internal/core"
	"separable-convolution/internal/reduce"
	"separable-convolution/internal/transport"
)

// RunCoordinator runs rank 0 of a distributed mesh: it pushes every rank its
// halo block, processes its own partition and gathers the result.
func (r *Runner) RunCoordinator(ctx context.Context, ep transport.Endpoint, img *core.Image) (*core.Image, *Report, error) {
	if ep.Rank() != 0 {
		return nil, nil, fmt.Errorf("coordinator must be rank 0, got rank %d", ep.Rank())
	}
	if err := core.ValidateImage(img); err != nil {
		return nil, nil, err
	}

	report := r.newReport(meshRunID(ep), ep.Size())
	log := r.runLogger(report).WithField("rank", 0)
	log.WithFields(logrus.Fields{
		"width":  img.Width(),
		"height": img.Height(),
	}).Info("PIPELINE: Coordinator started")

	out, maxes, err := r.coordinate(ctx, ep, img, log)
	if err != nil {
		log.WithError(err).Error("PIPELINE: Coordinator failed")
		return nil, nil, err
	}
	report.GlobalMax = maxes
	log.Info("PIPELINE: Coordinator complete")
	return out, report, nil
}

// RunRank runs a non-coordinator rank until its partition has been gathered.
func (r *Runner) RunRank(ctx context.Context, ep transport.Endpoint) (*Report, error) {
	if ep.Rank() == 0 {
		return nil, fmt.Errorf("rank 0 is the coordinator")
	}

	report := r.newReport(meshRunID(ep), ep.Size())
	log := r.runLogger(report).WithField("rank", ep.Rank())
	log.Info("PIPELINE: Rank started")

	maxes, err := r.participate(ctx, ep, log)
	if err != nil {
		log.WithError(err).Error("PIPELINE: Rank failed")
		return nil, err
	}
	report.GlobalMax = maxes
	log.Info("PIPELINE: Rank complete")
	return report, nil
}

// runDistributed runs every rank as a goroutine over an in-process mesh. A
// failing rank cancels the others so the error surfaces instead of a hang.
func (r *Runner) runDistributed(ctx context.Context, img *core.Image, report *Report, log logrus.FieldLogger) (*core.Image, error) {
	codec, err := transport.NewCodec(r.params.Compress)
	if err != nil {
		return nil, err
	}
	defer codec.Close()

	mesh := transport.NewLocalMesh(r.params.Workers, codec)
	defer mesh.Close()

	g, gctx := errgroup.WithContext(ctx)
	var out *core.Image
	g.Go(func() error {
		var err error
		out, report.GlobalMax, err = r.coordinate(gctx, mesh.Endpoint(0), img, log.WithField("rank", 0))
		return err
	})
	for rank := 1; rank < r.params.Workers; rank++ {
		g.Go(func() error {
			_, err := r.participate(gctx, mesh.Endpoint(rank), log.WithField("rank", rank))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Runner) coordinate(ctx context.Context, ep transport.Endpoint, img *core.Image, log logrus.FieldLogger) (*core.Image, []byte, error) {
	iterations := r.params.Iterations
	parts := core.Partitions(img.Height(), ep.Size())
	life := NewLifecycle(iterations)

	fail := func(err error) (*core.Image, []byte, error) {
		life.Fail()
		return nil, nil, err
	}

	dims := transport.Dims{Width: img.Width(), Height: img.Height()}
	for _, part := range parts[1:] {
		if err := ep.Send(ctx, part.Index, dims); err != nil {
			return fail(fmt.Errorf("failed to send dimensions to rank %d: %w", part.Index, err))
		}
		block := core.Extract(img, part, iterations)
		batch := transport.HaloBatch{Lo: block.Lo, Hi: block.Hi, Planes: transport.PackRows(block.Rows())}
		if err := ep.Send(ctx, part.Index, batch); err != nil {
			return fail(fmt.Errorf("failed to send halo to rank %d: %w", part.Index, err))
		}
		log.WithFields(logrus.Fields{
			"peer": part.Index,
			"lo":   block.Lo,
			"hi":   block.Hi,
		}).Debug("PIPELINE: Halo pushed")
	}

	own := core.Extract(img, parts[0], iterations)
	if err := life.Advance(HaloReceived); err != nil {
		return fail(err)
	}
	w := newBlockWorker(own, r.kernel, r.params.Channels(), life, log)
	maxes, err := w.run(ctx, iterations, allToAll(ep))
	if err != nil {
		return fail(err)
	}

	out := core.NewImage(img.Width(), img.Height())
	own.Store(out)
	for _, part := range parts[1:] {
		batch, err := transport.Expect[transport.GatherBatch](ctx, ep, part.Index)
		if err != nil {
			return fail(fmt.Errorf("failed to gather rank %d: %w", part.Index, err))
		}
		if batch.Start != part.Start || batch.End != part.End {
			return fail(fmt.Errorf("%w: rank %d returned rows [%d, %d), owns %s",
				transport.ErrUnexpectedMessage, part.Index, batch.Start, batch.End, part))
		}
		if err := transport.UnpackRows(out.Span(part.Start, part.End), batch.Planes); err != nil {
			return fail(fmt.Errorf("rank %d gather: %w", part.Index, err))
		}
	}
	if err := life.Advance(Gathered); err != nil {
		return fail(err)
	}
	if err := life.Advance(Terminated); err != nil {
		return fail(err)
	}
	return out, maxes, nil
}

func (r *Runner) participate(ctx context.Context, ep transport.Endpoint, log logrus.FieldLogger) ([]byte, error) {
	iterations := r.params.Iterations
	life := NewLifecycle(iterations)

	fail := func(err error) ([]byte, error) {
		life.Fail()
		return nil, err
	}

	dims, err := transport.Expect[transport.Dims](ctx, ep, 0)
	if err != nil {
		return fail(fmt.Errorf("failed to receive dimensions: %w", err))
	}
	if dims.Width <= 0 || dims.Height <= 0 || dims.Width > core.MaxDimension || dims.Height > core.MaxDimension {
		return fail(fmt.Errorf("coordinator announced invalid dimensions %dx%d", dims.Width, dims.Height))
	}

	part := core.PartitionFor(dims.Height, ep.Size(), ep.Rank())
	block := core.NewBlock(dims.Width, dims.Height, part, iterations)
	halo, err := transport.Expect[transport.HaloBatch](ctx, ep, 0)
	if err != nil {
		return fail(fmt.Errorf("failed to receive halo: %w", err))
	}
	if halo.Lo != block.Lo || halo.Hi != block.Hi {
		return fail(fmt.Errorf("%w: halo rows [%d, %d), want [%d, %d)",
			transport.ErrUnexpectedMessage, halo.Lo, halo.Hi, block.Lo, block.Hi))
	}
	if err := transport.UnpackRows(block.Rows(), halo.Planes); err != nil {
		return fail(fmt.Errorf("halo: %w", err))
	}
	if err := life.Advance(HaloReceived); err != nil {
		return fail(err)
	}
	log.WithFields(logrus.Fields{
		"partition": part.String(),
		"lo":        block.Lo,
		"hi":        block.Hi,
	}).Debug("PIPELINE: Halo received")

	w := newBlockWorker(block, r.kernel, r.params.Channels(), life, log)
	maxes, err := w.run(ctx, iterations, allToAll(ep))
	if err != nil {
		return fail(err)
	}

	gather := transport.GatherBatch{Start: part.Start, End: part.End, Planes: transport.PackRows(block.OwnedRows())}
	if err := ep.Send(ctx, 0, gather); err != nil {
		return fail(fmt.Errorf("failed to send partition: %w", err))
	}
	if err := life.Advance(Gathered); err != nil {
		return fail(err)
	}
	if err := life.Advance(Terminated); err != nil {
		return fail(err)
	}
	return maxes, nil
}

type reduceFunc func(ctx context.Context, k int, local byte) (byte, error)

func allToAll(ep transport.Endpoint) reduceFunc {
	return func(ctx context.Context, k int, local byte) (byte, error) {
		return reduce.AllToAll(ctx, ep, k, local)
	}
}

// blockWorker runs the stages of every iteration over one halo block.
type blockWorker struct {
	block    *core.Block
	scratch  core.Rows
	kernel   []float32
	channels int
	life     *Lifecycle
	log      logrus.FieldLogger
}

func newBlockWorker(block *core.Block, kernel []float32, channels int, life *Lifecycle, log logrus.FieldLogger) *blockWorker {
	return &blockWorker{
		block:    block,
		scratch:  core.Rows{Width: block.Width, Pix: make([]core.Pixel, len(block.Rows().Pix))},
		kernel:   kernel,
		channels: channels,
		life:     life,
		log:      log,
	}
}

func (w *blockWorker) run(ctx context.Context, iterations int, combine reduceFunc) ([]byte, error) {
	maxes := make([]byte, 0, iterations)
	for k := 0; k < iterations; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		top, err := w.iterate(ctx, k, combine)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", k, err)
		}
		maxes = append(maxes, top)
		logIteration(w.log, k, top)
	}
	return maxes, nil
}

func (w *blockWorker) iterate(ctx context.Context, k int, combine reduceFunc) (byte, error) {
	rows := w.block.Rows()
	active := w.block.Active(k)
	var local, global byte

	for _, stage := range algorithms.Stages() {
		switch stage {
		case algorithms.StageVertical:
			algorithms.Snapshot(w.scratch, rows, core.Span{Lo: 0, Hi: rows.Len()})
			algorithms.Vertical(rows, w.scratch, active)
		case algorithms.StageHorizontal:
			local = algorithms.Horizontal(rows, active, w.block.Owned())
		case algorithms.StageReduce:
			var err error
			if global, err = combine(ctx, k, local); err != nil {
				return 0, err
			}
		case algorithms.StageNormalize:
			algorithms.Normalize(rows, active, global)
		case algorithms.StageEncode:
			algorithms.Encode(rows, active, w.kernel, w.channels)
		case algorithms.StageDecode:
			algorithms.Decode(rows, active, w.channels)
		}
		if err := w.life.Advance(StageState(stage)); err != nil {
			return 0, err
		}
	}
	return global, nil
}

func meshRunID(ep transport.Endpoint) uuid.UUID {
	if m, ok := ep.(interface{ RunID() uuid.UUID }); ok {
		return m.RunID()
	}
	return uuid.New()
}
