package algorithms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"separable-convolution/internal/core"
)

func TestClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float32
		want byte
	}{
		{-3.5, 0},
		{0, 0},
		{12.9, 12},
		{254.99, 254},
		{255, 255},
		{1e9, 255},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clamp(tt.in), "Clamp(%v)", tt.in)
	}
}

func TestVerticalZeroBeyondImageEdge(t *testing.T) {
	t.Parallel()

	img := core.NewImage(1, 3)
	for y := 0; y < 3; y++ {
		img.At(0, y)[0] = 90
	}
	snap := img.Clone()
	Vertical(img.Rows(), snap.Rows(), core.Span{Lo: 0, Hi: 3})

	// edge rows lose the missing neighbour: (0 + 2*90 + 90) / 3 = 90, interior (90+180+90)/3 = 120
	assert.Equal(t, byte(90), img.At(0, 0)[0])
	assert.Equal(t, byte(120), img.At(0, 1)[0])
	assert.Equal(t, byte(90), img.At(0, 2)[0])
}

func TestVerticalLeavesInactiveRows(t *testing.T) {
	t.Parallel()

	img := core.NewImage(2, 4)
	for y := 0; y < 4; y++ {
		img.At(0, y)[1] = 30
	}
	snap := img.Clone()
	Vertical(img.Rows(), snap.Rows(), core.Span{Lo: 1, Hi: 3})

	assert.Equal(t, byte(30), img.At(0, 0)[1])
	assert.Equal(t, byte(40), img.At(0, 1)[1])
	assert.Equal(t, byte(30), img.At(0, 3)[1])
}

func TestHorizontalTracksOwnedMaximum(t *testing.T) {
	t.Parallel()

	img := core.NewImage(3, 2)
	img.At(0, 0)[0] = 240 // row 0 is treated as halo below
	img.At(0, 1)[2] = 120

	top := Horizontal(img.Rows(), core.Span{Lo: 0, Hi: 2}, core.Span{Lo: 1, Hi: 2})

	assert.Equal(t, byte(80), img.At(1, 0)[0])
	assert.Equal(t, byte(40), img.At(1, 1)[2])
	assert.Equal(t, byte(40), top)
	assert.Equal(t, byte(0), img.At(0, 0)[0], "left neighbour is outside the image")
}

func TestSinglePixelScenario(t *testing.T) {
	t.Parallel()

	img := core.NewImage(2, 2)
	img.At(0, 0)[0] = 255
	all := core.Span{Lo: 0, Hi: 2}

	snap := img.Clone()
	Vertical(img.Rows(), snap.Rows(), all)
	require.Equal(t, byte(170), img.At(0, 0)[0])
	require.Equal(t, byte(85), img.At(0, 1)[0])

	top := Horizontal(img.Rows(), all, all)
	assert.Equal(t, byte(56), top)
	assert.GreaterOrEqual(t, top, img.At(0, 0)[0])

	Normalize(img.Rows(), all, top)
	assert.Equal(t, byte(255), img.MaxIntensity())
	assert.Equal(t, byte(255), img.At(1, 0)[0])
	assert.Equal(t, byte(127), img.At(1, 1)[0])
}

func TestNormalizeIdempotentAtFullRange(t *testing.T) {
	t.Parallel()

	img := core.NewImage(4, 4)
	for i, px := range img.Rows().Pix {
		for c := 0; c < core.BaseChannels; c++ {
			px[c] = byte(i*17 + c)
		}
		img.Rows().Pix[i] = px
	}
	before := img.Clone()
	Normalize(img.Rows(), core.Span{Lo: 0, Hi: 4}, 255)
	assert.True(t, before.Equal(img))
}

func TestNormalizeFloorsZeroMaximum(t *testing.T) {
	t.Parallel()

	img := core.NewImage(2, 2)
	Normalize(img.Rows(), core.Span{Lo: 0, Hi: 2}, 0)
	assert.Equal(t, byte(0), img.MaxIntensity())
	assert.Equal(t, byte(1), FloorMax(0))
	assert.Equal(t, byte(9), FloorMax(9))
}

func TestNormalizeScalesMaximumToFullRange(t *testing.T) {
	t.Parallel()

	for top := 1; top <= 255; top++ {
		img := core.NewImage(1, 1)
		img.At(0, 0)[1] = byte(top)
		Normalize(img.Rows(), core.Span{Lo: 0, Hi: 1}, byte(top))
		require.Equal(t, byte(255), img.At(0, 0)[1], "top=%d", top)
	}
}

func TestEncodeDecodeSingleGroupIsIdentity(t *testing.T) {
	t.Parallel()

	img := core.NewImage(5, 3)
	for i := range img.Rows().Pix {
		img.Rows().Pix[i] = core.Pixel{byte(i * 11), byte(255 - i), byte(i * 3)}
	}
	before := img.Clone()
	all := core.Span{Lo: 0, Hi: 3}

	Encode(img.Rows(), all, DepthwiseKernel(DefaultSeed), core.BaseChannels)
	Decode(img.Rows(), all, core.BaseChannels)
	assert.True(t, before.Equal(img))
}

func TestEncodeProjectsBaseChannels(t *testing.T) {
	t.Parallel()

	img := core.NewImage(1, 1)
	img.At(0, 0)[0] = 100
	img.At(0, 0)[1] = 50
	kernel := []float32{0.5, 0.25, 0.25}

	Encode(img.Rows(), core.Span{Lo: 0, Hi: 1}, kernel, 9)
	px := img.At(0, 0)
	assert.Equal(t, byte(100), px[3])
	assert.Equal(t, byte(50), px[4])
	assert.Equal(t, byte(0), px[5])
	assert.Equal(t, byte(100), px[6])

	Decode(img.Rows(), core.Span{Lo: 0, Hi: 1}, 9)
	assert.Equal(t, byte(100), px[0])
	assert.Equal(t, byte(50), px[1])
}

func TestDecodeAveragesGroups(t *testing.T) {
	t.Parallel()

	img := core.NewImage(1, 1)
	*img.At(0, 0) = core.Pixel{10, 20, 30, 20, 20, 31}
	Decode(img.Rows(), core.Span{Lo: 0, Hi: 1}, 6)
	assert.Equal(t, byte(15), img.At(0, 0)[0])
	assert.Equal(t, byte(20), img.At(0, 0)[1])
	assert.Equal(t, byte(30), img.At(0, 0)[2])
}

func TestDepthwiseKernelDeterministic(t *testing.T) {
	t.Parallel()

	a := DepthwiseKernel(7)
	b := DepthwiseKernel(7)
	require.Len(t, a, core.BaseChannels)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, DepthwiseKernel(8))
	for _, w := range a {
		assert.GreaterOrEqual(t, w, float32(0))
		assert.Less(t, w, float32(2.0/core.BaseChannels))
	}
}

func TestValidateChannels(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateChannels(3))
	assert.NoError(t, ValidateChannels(30))
	assert.Error(t, ValidateChannels(0))
	assert.Error(t, ValidateChannels(7))
	assert.Error(t, ValidateChannels(33))
}

func TestStageNames(t *testing.T) {
	t.Parallel()

	names := make([]string, 0, len(Stages()))
	for _, s := range Stages() {
		names = append(names, s.String())
		assert.NotEmpty(t, s.GetDescription())
	}
	assert.Equal(t, []string{"vertical", "horizontal", "reduce", "normalize", "encode", "decode"}, names)
}
