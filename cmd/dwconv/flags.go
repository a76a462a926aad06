package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"separable-convolution/internal/config"
)

// addParamFlags registers the run parameters on fs, writing into p.
func addParamFlags(fs *pflag.FlagSet, p *config.Params) {
	d := config.Default()
	fs.StringVar((*string)(&p.Model), "model", string(d.Model), "concurrency model: distributed, dataparallel or threadpool")
	fs.IntVarP(&p.Workers, "workers", "n", d.Workers, "number of partitions and workers")
	fs.StringVarP(&p.Input, "input", "i", d.Input, "input image")
	fs.StringVarP(&p.Output, "output", "o", d.Output, "output image")
	fs.IntVarP(&p.Iterations, "iterations", "I", d.Iterations, "number of convolution iterations")
	fs.IntVarP(&p.Multiplier, "multiplier", "m", d.Multiplier, "depthwise channel multiplier")
	fs.Int64Var(&p.Seed, "seed", d.Seed, "depthwise kernel seed")
	fs.BoolVar(&p.Compress, "compress", d.Compress, "zstd compress halo and gather frames")
	fs.StringVar(&p.Log.Level, "log-level", d.Log.Level, "log level")
	fs.StringVar(&p.Log.Format, "log-format", d.Log.Format, "log format: text or json")
}

// addRankFlags registers the multi-process parameters on fs.
func addRankFlags(fs *pflag.FlagSet, p *config.Params) {
	fs.IntVar(&p.Rank, "rank", 0, "this process's rank")
	fs.Func("peers", "comma separated listen addresses of every rank, in rank order", func(s string) error {
		p.Peers = config.ParsePeers(s)
		return nil
	})
}

// resolveParams starts from the defaults or the config file and applies every
// flag that was set explicitly.
func resolveParams(fs *pflag.FlagSet, path string, flags config.Params) (config.Params, error) {
	p := config.Default()
	if path != "" {
		var err error
		if p, err = config.Load(path); err != nil {
			return config.Params{}, err
		}
	}

	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "model":
			p.Model = flags.Model
		case "workers":
			p.Workers = flags.Workers
		case "input":
			p.Input = flags.Input
		case "output":
			p.Output = flags.Output
		case "iterations":
			p.Iterations = flags.Iterations
		case "multiplier":
			p.Multiplier = flags.Multiplier
		case "seed":
			p.Seed = flags.Seed
		case "compress":
			p.Compress = flags.Compress
		case "log-level":
			p.Log.Level = flags.Log.Level
		case "log-format":
			p.Log.Format = flags.Log.Format
		case "rank":
			p.Rank = flags.Rank
		case "peers":
			p.Peers = flags.Peers
		}
	})
	if p.Distributed() {
		p.Model = config.ModelDistributed
		p.Workers = len(p.Peers)
	}
	return p, p.Validate()
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool, params config.LogParams) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
		return logger
	}

	level, err := logrus.ParseLevel(params.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if params.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	return logger
}
