// Package config holds the parameters of a convolution run and loads them
// from TOML files.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"separable-convolution/internal/algorithms"
	"separable-convolution/internal/core"
)

// Model selects how partitions cooperate.
type Model string

const (
	ModelDistributed  Model = "distributed"
	ModelDataParallel Model = "dataparallel"
	ModelThreadPool   Model = "threadpool"
)

// Models returns every supported concurrency model.
func Models() []Model {
	return []Model{ModelDistributed, ModelDataParallel, ModelThreadPool}
}

// Valid reports whether m names a supported model.
func (m Model) Valid() bool {
	return lo.Contains(Models(), m)
}

// LogParams configures the process logger.
type LogParams struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text or json
}

// Params describes one batch run.
type Params struct {
	Model      Model  `toml:"model"`
	Workers    int    `toml:"workers"`
	Input      string `toml:"input"`
	Output     string `toml:"output"`
	Iterations int    `toml:"iterations"`
	Multiplier int    `toml:"multiplier"`
	Seed       int64  `toml:"seed"`

	// Multi-process distributed runs. Peers lists every rank's listen
	// address in rank order; Rank is this process's index into it.
	Compress bool     `toml:"compress"`
	Rank     int      `toml:"rank"`
	Peers    []string `toml:"peers"`

	Log LogParams `toml:"log"`
}

// Default returns the parameters used when nothing is configured.
func Default() Params {
	return Params{
		Model:      ModelDistributed,
		Workers:    4,
		Iterations: 1,
		Multiplier: 1,
		Seed:       algorithms.DefaultSeed,
		Log: LogParams{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a TOML file over the defaults. Unknown keys are rejected so a
// typo never silently falls back to a default.
func Load(path string) (Params, error) {
	p := Default()
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return Params{}, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := lo.Map(undecoded, func(k toml.Key, _ int) string { return k.String() })
		return Params{}, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return p, nil
}

// Channels returns the working channel count, BaseChannels times Multiplier.
func (p Params) Channels() int {
	return core.BaseChannels * p.Multiplier
}

// Distributed reports whether the run spans several processes.
func (p Params) Distributed() bool {
	return len(p.Peers) > 0
}

// Validate checks every parameter and reports all problems at once.
func (p Params) Validate() error {
	var errs []error

	if !p.Model.Valid() {
		errs = append(errs, fmt.Errorf("unknown model %q, want one of %v", p.Model, Models()))
	}
	if p.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", p.Workers))
	}
	if p.Iterations < 0 {
		errs = append(errs, fmt.Errorf("iterations must not be negative, got %d", p.Iterations))
	}
	if p.Multiplier <= 0 {
		errs = append(errs, fmt.Errorf("multiplier must be positive, got %d", p.Multiplier))
	} else if err := algorithms.ValidateChannels(p.Channels()); err != nil {
		errs = append(errs, fmt.Errorf("multiplier %d: %w", p.Multiplier, err))
	}
	if _, err := logrus.ParseLevel(p.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if p.Log.Format != "text" && p.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", p.Log.Format))
	}

	if p.Distributed() {
		if p.Model != ModelDistributed {
			errs = append(errs, fmt.Errorf("peers are only used by the %s model", ModelDistributed))
		}
		if p.Rank < 0 || p.Rank >= len(p.Peers) {
			errs = append(errs, fmt.Errorf("rank %d outside peer list of %d", p.Rank, len(p.Peers)))
		}
		if dups := lo.FindDuplicates(p.Peers); len(dups) > 0 {
			errs = append(errs, fmt.Errorf("duplicate peers %v", dups))
		}
		if lo.Contains(p.Peers, "") {
			errs = append(errs, errors.New("empty peer address"))
		}
	}

	return errors.Join(errs...)
}

// ParsePeers splits a comma separated address list, dropping blanks.
func ParsePeers(s string) []string {
	peers := lo.Map(strings.Split(s, ","), func(p string, _ int) string { return strings.TrimSpace(p) })
	return lo.Compact(peers)
}
