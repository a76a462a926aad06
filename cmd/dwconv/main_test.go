package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"separable-convolution/internal/config"
	"separable-convolution/internal/core"
	"separable-convolution/internal/imageio"
	"separable-convolution/internal/pipeline"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeInput(t *testing.T, dir string) string {
	t.Helper()
	img := core.NewImage(6, 5)
	for y := 0; y < 5; y++ {
		for x := 0; x < 6; x++ {
			p := img.At(x, y)
			p[0], p[1], p[2] = byte(x*40), byte(y*50), byte(x*y*8)
		}
	}
	path := filepath.Join(dir, "in.ppm")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, imageio.PNM{}.Encode(f, img))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, AppName+" "+AppVersion)
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir)

	outputs := map[string]string{}
	for _, model := range config.Models() {
		out := filepath.Join(dir, string(model)+".ppm")
		_, err := execute(t, "run", "-i", in, "-o", out, "--model", string(model), "-n", "3", "-I", "2", "-m", "2", "--log-level", "error")
		require.NoError(t, err, model)
		outputs[string(model)] = out
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	loader := imageio.NewLoader(logger)
	want, err := loader.Load(outputs[string(config.ModelDistributed)])
	require.NoError(t, err)
	assert.Equal(t, 6, want.Width())
	for model, path := range outputs {
		got, err := loader.Load(path)
		require.NoError(t, err)
		assert.True(t, want.Equal(got), model)
	}
}

func TestRunRequiresPaths(t *testing.T) {
	_, err := execute(t, "run", "-o", "out.ppm")
	assert.ErrorContains(t, err, "--input")
}

func TestRunRejectsBadParams(t *testing.T) {
	_, err := execute(t, "run", "-i", "a.ppm", "-o", "b.ppm", "-n", "0")
	assert.ErrorContains(t, err, "workers")
}

func TestRankRequiresPeers(t *testing.T) {
	_, err := execute(t, "rank", "--rank", "1")
	assert.ErrorContains(t, err, "--peers")
}

func TestResolveParamsFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.toml")
	require.NoError(t, os.WriteFile(path, []byte("workers = 6\niterations = 4\nmodel = \"threadpool\"\n"), 0o644))

	var flags config.Params
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addParamFlags(fs, &flags)
	require.NoError(t, fs.Parse([]string{"--iterations", "2"}))

	p, err := resolveParams(fs, path, flags)
	require.NoError(t, err)
	assert.Equal(t, 6, p.Workers, "file value kept")
	assert.Equal(t, 2, p.Iterations, "explicit flag wins")
	assert.Equal(t, config.ModelThreadPool, p.Model, "unset flag does not clobber the file")
}

func TestResolveParamsWithoutFile(t *testing.T) {
	var flags config.Params
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addParamFlags(fs, &flags)
	require.NoError(t, fs.Parse([]string{"-m", "3", "--compress"}))

	p, err := resolveParams(fs, "", flags)
	require.NoError(t, err)
	assert.Equal(t, 9, p.Channels())
	assert.True(t, p.Compress)
	assert.Equal(t, config.Default().Workers, p.Workers)
}

func TestResolveParamsPeersForceDistributed(t *testing.T) {
	var flags config.Params
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addParamFlags(fs, &flags)
	addRankFlags(fs, &flags)
	require.NoError(t, fs.Parse([]string{"--peers", "h1:1, h2:2,h3:3", "--rank", "2", "--model", "threadpool"}))

	p, err := resolveParams(fs, "", flags)
	require.NoError(t, err)
	assert.Equal(t, config.ModelDistributed, p.Model)
	assert.Equal(t, []string{"h1:1", "h2:2", "h3:3"}, p.Peers)
	assert.Equal(t, 3, p.Workers)
	assert.Equal(t, 2, p.Rank)
}

func TestInitLogger(t *testing.T) {
	debug := initLogger(true, config.LogParams{Level: "error", Format: "json"})
	assert.Equal(t, logrus.DebugLevel, debug.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, debug.Formatter)

	quiet := initLogger(false, config.LogParams{Level: "warn", Format: "json"})
	assert.Equal(t, logrus.WarnLevel, quiet.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, quiet.Formatter)

	text := initLogger(false, config.LogParams{Level: "info", Format: "text"})
	assert.IsType(t, &logrus.TextFormatter{}, text.Formatter)
}

func TestLogReportDescribesMetrics(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.JSONFormatter{})

	in := core.NewImage(4, 4)
	out := in.Clone()
	out.At(1, 1)[0] = 200

	logReport(logger, &pipeline.Report{Model: config.ModelThreadPool, GlobalMax: []byte{9}}, in, out)
	logs := buf.String()
	assert.Contains(t, logs, `"msg":"Quality metrics"`)
	assert.Contains(t, logs, `"metric":"mse"`)
	assert.Contains(t, logs, `"higher_better":false`)
	assert.Contains(t, logs, `"metric":"psnr"`)

	// an unchanged image has infinite PSNR, which is left out
	buf.Reset()
	logReport(logger, &pipeline.Report{}, in, in.Clone())
	assert.NotContains(t, buf.String(), `"metric":"psnr"`)
	assert.Contains(t, buf.String(), `"metric":"mse"`)
}
