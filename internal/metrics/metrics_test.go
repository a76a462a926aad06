package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"separable-convolution/internal/core"
)

func filled(width, height int, v byte) *core.Image {
	img := core.NewImage(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := img.At(x, y)
			p[0], p[1], p[2] = v, v, v
		}
	}
	return img
}

func TestIdenticalImages(t *testing.T) {
	img := filled(4, 4, 100)
	e := NewEvaluator()

	psnr, err := e.Calculate("psnr", img, img.Clone())
	require.NoError(t, err)
	assert.True(t, math.IsInf(psnr, 1))

	mse, err := e.Calculate("mse", img, img.Clone())
	require.NoError(t, err)
	assert.Zero(t, mse)

	ssim, err := e.Calculate("ssim", img, img.Clone())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, ssim, 1e-9)
}

func TestMSEAndPSNR(t *testing.T) {
	a, b := filled(2, 2, 10), filled(2, 2, 20)

	mse, err := NewMSE().Calculate(a, b)
	require.NoError(t, err)
	assert.Equal(t, 100.0, mse)

	psnr, err := NewPSNR().Calculate(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 20*math.Log10(25.5), psnr, 1e-9)
}

func TestIntensityMetrics(t *testing.T) {
	img := filled(2, 1, 50)
	img.At(1, 0)[2] = 200

	top, err := NewMaxIntensity().Calculate(nil, img)
	require.NoError(t, err)
	assert.Equal(t, 200.0, top)

	mean, err := NewMeanIntensity().Calculate(nil, img)
	require.NoError(t, err)
	assert.InDelta(t, (5*50.0+200)/6, mean, 1e-9)
}

func TestDimensionMismatch(t *testing.T) {
	_, err := NewPSNR().Calculate(filled(2, 2, 0), filled(3, 2, 0))
	assert.ErrorContains(t, err, "mismatch")
	_, err = NewSSIM().Calculate(nil, filled(1, 1, 0))
	assert.Error(t, err)
}

func TestEvaluator(t *testing.T) {
	e := NewEvaluator()
	assert.Equal(t, []string{"max_intensity", "mean_intensity", "mse", "psnr", "ssim"}, e.Names())

	_, err := e.Calculate("f_measure", nil, nil)
	assert.ErrorContains(t, err, "metric not found")

	all := e.CalculateAll(filled(3, 3, 0), filled(3, 3, 255))
	assert.Len(t, all, 5)
	assert.Equal(t, 255.0*255.0, all["mse"])

	info := e.GetMetricInfo()
	assert.True(t, info["psnr"].HigherBetter)
	assert.False(t, info["mse"].HigherBetter)
	assert.Equal(t, [2]float64{0, 255}, info["max_intensity"].Range)
}
