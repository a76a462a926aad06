// Raster codecs backed by the image packages
package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"separable-convolution/internal/core"
)

// Raster adapts an image.Image decoder and encoder to Codec. A nil encode
// makes the format read-only.
type Raster struct {
	Name   string
	decode func(io.Reader) (image.Image, error)
	encode func(io.Writer, image.Image) error
}

var (
	PNG  = Raster{Name: "png", decode: png.Decode, encode: png.Encode}
	JPEG = Raster{Name: "jpeg", decode: jpeg.Decode, encode: func(w io.Writer, m image.Image) error {
		return jpeg.Encode(w, m, &jpeg.Options{Quality: 95})
	}}
	BMP  = Raster{Name: "bmp", decode: bmp.Decode, encode: bmp.Encode}
	TIFF = Raster{Name: "tiff", decode: tiff.Decode, encode: func(w io.Writer, m image.Image) error {
		return tiff.Encode(w, m, &tiff.Options{Compression: tiff.Deflate})
	}}
	WebP = Raster{Name: "webp", decode: webp.Decode}
)

func (r Raster) Decode(rd io.Reader) (*core.Image, error) {
	m, err := r.decode(rd)
	if err != nil {
		return nil, err
	}
	return FromImage(m)
}

func (r Raster) Encode(w io.Writer, img *core.Image) error {
	if r.encode == nil {
		return fmt.Errorf("%w: %s is read-only", ErrUnsupportedFormat, r.Name)
	}
	return r.encode(w, ToImage(img))
}

// FromImage copies the colour channels of m into a new core.Image. Alpha is
// dropped without compositing.
func FromImage(m image.Image) (*core.Image, error) {
	b := m.Bounds()
	if err := checkDimensions(b.Dx(), b.Dy()); err != nil {
		return nil, err
	}
	img := core.NewImage(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := img.Row(y)
		for x := range row {
			c := color.NRGBAModel.Convert(m.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			row[x][0], row[x][1], row[x][2] = c.R, c.G, c.B
		}
	}
	return img, nil
}

// ToImage copies the base channels of img into an opaque NRGBA image.
func ToImage(img *core.Image) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, img.Width(), img.Height()))
	for y := 0; y < img.Height(); y++ {
		line := out.Pix[y*out.Stride:]
		for x, px := range img.Row(y) {
			line[x*4+0] = px[0]
			line[x*4+1] = px[1]
			line[x*4+2] = px[2]
			line[x*4+3] = 0xff
		}
	}
	return out
}
