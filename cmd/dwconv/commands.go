package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"separable-convolution/internal/config"
	"separable-convolution/internal/core"
	"separable-convolution/internal/imageio"
	"separable-convolution/internal/metrics"
	"separable-convolution/internal/pipeline"
	"separable-convolution/internal/transport"
)

type globalOptions struct {
	debug      bool
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           AppName,
		Short:         "Iterated depthwise-separable convolution over partitioned images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug mode with verbose logging")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "TOML parameter file; explicit flags override it")

	root.AddCommand(newRunCmd(opts), newRankCmd(opts), newVersionCmd())
	return root
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	var flags config.Params
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process an image in this process with the selected model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := resolveParams(cmd.Flags(), opts.configPath, flags)
			if err != nil {
				return err
			}
			if p.Distributed() {
				return errors.New("peers are set; use the rank command for multi-process runs")
			}
			if err := requirePaths(p); err != nil {
				return err
			}
			logger := initLogger(opts.debug, p.Log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLocal(ctx, p, logger)
		},
	}
	addParamFlags(cmd.Flags(), &flags)
	return cmd
}

func newRankCmd(opts *globalOptions) *cobra.Command {
	var flags config.Params
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Join a multi-process distributed run as one rank",
		Long: "Every process is started with the same --peers list and its own --rank.\n" +
			"Rank 0 reads --input, pushes halos, gathers the result and writes --output.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := resolveParams(cmd.Flags(), opts.configPath, flags)
			if err != nil {
				return err
			}
			if !p.Distributed() {
				return errors.New("--peers is required")
			}
			if p.Rank == 0 {
				if err := requirePaths(p); err != nil {
					return err
				}
			}
			logger := initLogger(opts.debug, p.Log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRank(ctx, p, logger)
		},
	}
	addParamFlags(cmd.Flags(), &flags)
	addRankFlags(cmd.Flags(), &flags)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s %s/%s)\n", AppName, AppVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

func requirePaths(p config.Params) error {
	if p.Input == "" {
		return errors.New("--input is required")
	}
	if p.Output == "" {
		return errors.New("--output is required")
	}
	return nil
}

func newLoader(logger *logrus.Logger) *imageio.Loader {
	loader := imageio.NewLoader(logger)
	imageio.RegisterOpenCV(loader)
	return loader
}

func runLocal(ctx context.Context, p config.Params, logger *logrus.Logger) error {
	loader := newLoader(logger)
	img, err := loader.Load(p.Input)
	if err != nil {
		return err
	}
	runner, err := pipeline.New(p, logger)
	if err != nil {
		return err
	}
	out, report, err := runner.Run(ctx, img)
	if err != nil {
		return err
	}
	if err := loader.Save(out, p.Output); err != nil {
		return err
	}
	logReport(logger, report, img, out)
	return nil
}

func runRank(ctx context.Context, p config.Params, logger *logrus.Logger) error {
	runner, err := pipeline.New(p, logger)
	if err != nil {
		return err
	}

	// rank 0 loads before joining so a bad input fails fast
	var (
		loader *imageio.Loader
		img    *core.Image
	)
	if p.Rank == 0 {
		loader = newLoader(logger)
		if img, err = loader.Load(p.Input); err != nil {
			return err
		}
	}

	codec, err := transport.NewCodec(p.Compress)
	if err != nil {
		return err
	}
	defer codec.Close()

	ep, err := transport.DialMesh(ctx, p.Rank, p.Peers, transport.MeshID(p.Peers), codec, logger)
	if err != nil {
		return err
	}
	defer ep.Close()

	if p.Rank != 0 {
		report, err := runner.RunRank(ctx, ep)
		if err != nil {
			return err
		}
		logReport(logger, report, nil, nil)
		return nil
	}

	out, report, err := runner.RunCoordinator(ctx, ep, img)
	if err != nil {
		return err
	}
	if err := loader.Save(out, p.Output); err != nil {
		return err
	}
	logReport(logger, report, img, out)
	return nil
}

// logReport logs timing, the per-iteration maxima and, when both images are
// at hand, quality metrics of the result against the input.
func logReport(logger *logrus.Logger, report *pipeline.Report, in, out *core.Image) {
	logger.WithFields(logrus.Fields{
		"run_id":      report.RunID,
		"model":       report.Model,
		"workers":     report.Workers,
		"iterations":  report.Iterations,
		"channels":    report.Channels,
		"duration_ms": report.Duration.Milliseconds(),
		"global_max":  lo.Map(report.GlobalMax, func(v byte, _ int) int { return int(v) }),
	}).Info("Run finished")

	if in == nil || out == nil {
		return
	}
	evaluator := metrics.NewEvaluator()
	results := evaluator.CalculateAll(in, out)
	// JSON cannot carry the infinite PSNR of an unchanged image
	finite := lo.OmitBy(results, func(_ string, v float64) bool { return math.IsInf(v, 0) || math.IsNaN(v) })
	logger.WithFields(logrus.Fields{
		"width":   out.Width(),
		"height":  out.Height(),
		"metrics": finite,
	}).Info("Quality metrics")

	info := evaluator.GetMetricInfo()
	for _, name := range evaluator.Names() {
		value, ok := finite[name]
		if !ok {
			continue
		}
		logger.WithFields(logrus.Fields{
			"metric":        name,
			"value":         value,
			"range":         info[name].Range,
			"higher_better": info[name].HigherBetter,
		}).Debug(info[name].Description)
	}
}
