package imageio

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"separable-convolution/internal/core"
)

func newLoader() *Loader {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewLoader(logger)
}

func gradient(width, height int) *core.Image {
	img := core.NewImage(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := img.At(x, y)
			p[0], p[1], p[2] = byte(x*40), byte(y*40), byte((x+y)*20)
		}
	}
	return img
}

func TestPNMRoundTrip(t *testing.T) {
	img := gradient(5, 4)
	var buf bytes.Buffer
	require.NoError(t, PNM{}.Encode(&buf, img))
	assert.True(t, strings.HasPrefix(buf.String(), "P6\n5 4\n255\n"))

	got, err := PNM{}.Decode(&buf)
	require.NoError(t, err)
	assert.True(t, img.Equal(got))
}

func TestPNMDecodeHeaderComments(t *testing.T) {
	data := "P6\n# made by hand\n2 # width\n1\n255\n" + string([]byte{1, 2, 3, 4, 5, 6})
	img, err := PNM{}.Decode(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 2, img.Width())
	assert.Equal(t, byte(4), img.At(1, 0)[0])
	assert.Equal(t, byte(6), img.At(1, 0)[2])
}

func TestPNMDecodeGrayAndScale(t *testing.T) {
	data := "P5 2 1 15\n" + string([]byte{15, 5})
	img, err := PNM{}.Decode(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, [3]byte{255, 255, 255}, [3]byte(img.At(0, 0)[:3]))
	assert.Equal(t, [3]byte{85, 85, 85}, [3]byte(img.At(1, 0)[:3]))
}

func TestPNMEncodeGray(t *testing.T) {
	img := core.NewImage(1, 1)
	p := img.At(0, 0)
	p[0], p[1], p[2] = 30, 60, 90

	var buf bytes.Buffer
	require.NoError(t, PNM{Gray: true}.Encode(&buf, img))
	assert.Equal(t, "P5\n1 1\n255\n"+string([]byte{60}), buf.String())
}

func TestPNMDecodeErrors(t *testing.T) {
	tests := map[string]string{
		"bad magic":       "P3\n1 1\n255\n0 0 0",
		"sixteen bit":     "P6\n1 1\n65535\n",
		"zero width":      "P6\n0 1\n255\n",
		"truncated body":  "P6\n2 2\n255\n" + "abc",
		"truncated head":  "P6\n2",
		"not a number":    "P6\nx 2\n255\n",
		"comment at tail": "P6\n# no newline",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := PNM{}.Decode(strings.NewReader(data))
			assert.Error(t, err)
		})
	}
}

func TestRasterRoundTripLossless(t *testing.T) {
	img := gradient(6, 3)
	for _, codec := range []Raster{PNG, BMP, TIFF} {
		var buf bytes.Buffer
		require.NoError(t, codec.Encode(&buf, img), codec.Name)
		got, err := codec.Decode(&buf)
		require.NoError(t, err, codec.Name)
		assert.True(t, img.Equal(got), codec.Name)
	}
}

func TestJPEGRoundTripIsClose(t *testing.T) {
	img := core.NewImage(16, 16)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			p := img.At(x, y)
			p[0], p[1], p[2] = 120, 120, 120
		}
	}
	var buf bytes.Buffer
	require.NoError(t, JPEG.Encode(&buf, img))
	got, err := JPEG.Decode(&buf)
	require.NoError(t, err)
	assert.InDelta(t, 120, int(got.At(8, 8)[0]), 3)
}

func TestWebPIsReadOnly(t *testing.T) {
	err := WebP.Encode(io.Discard, core.NewImage(1, 1))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoaderSaveAndLoad(t *testing.T) {
	l := newLoader()
	dir := t.TempDir()
	img := gradient(4, 4)

	for _, name := range []string{"out.ppm", "out.PNG", "out.bmp", "out.tiff"} {
		path := filepath.Join(dir, name)
		require.NoError(t, l.Save(img, path), name)
		got, err := l.Load(path)
		require.NoError(t, err, name)
		assert.True(t, img.Equal(got), name)
	}
}

func TestLoaderRejectsUnknownExtension(t *testing.T) {
	l := newLoader()
	_, err := l.Load("picture.gif")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.ErrorIs(t, l.Save(core.NewImage(1, 1), filepath.Join(t.TempDir(), "x")), ErrUnsupportedFormat)
}

func TestLoaderMissingFile(t *testing.T) {
	_, err := newLoader().Load(filepath.Join(t.TempDir(), "missing.ppm"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoaderRegister(t *testing.T) {
	l := newLoader()
	assert.Contains(t, l.SupportedFormats(), ".webp")
	assert.NotContains(t, l.SupportedFormats(), ".ppx")

	l.Register(PNM{}, ".PPX")
	assert.Contains(t, l.SupportedFormats(), ".ppx")

	path := filepath.Join(t.TempDir(), "a.ppx")
	require.NoError(t, l.Save(gradient(2, 2), path))
	_, err := l.Load(path)
	assert.NoError(t, err)
}

func TestRegisterOpenCVKeepsLoaderUsable(t *testing.T) {
	l := newLoader()
	RegisterOpenCV(l)
	assert.Contains(t, l.SupportedFormats(), ".png")
}
