// Core raster buffer shared by every concurrency model
package core

import (
	"fmt"
)

const (
	// Capacity is the number of channel slots every pixel carries.
	Capacity = 32
	// BaseChannels is the number of colour channels read from and written to disk.
	BaseChannels = 3
	// MaxDimension bounds width and height to keep allocations sane.
	MaxDimension = 1 << 15
)

// Pixel holds the base channels followed by depthwise working channels.
type Pixel [Capacity]byte

// Rows is a window of full-width rows backed by one contiguous slice.
type Rows struct {
	Width int
	Pix   []Pixel
}

// Len returns the number of rows in the window.
func (r Rows) Len() int {
	if r.Width == 0 {
		return 0
	}
	return len(r.Pix) / r.Width
}

// Row returns row i of the window.
func (r Rows) Row(i int) []Pixel {
	if i < 0 || i >= r.Len() {
		panic(fmt.Sprintf("core: row %d out of range [0, %d)", i, r.Len()))
	}
	return r.Pix[i*r.Width : (i+1)*r.Width]
}

// Image is a row-major height x width grid of pixels, mutable in place
type Image struct {
	width  int
	height int
	pix    []Pixel
}

// NewImage allocates a black image
func NewImage(width, height int) *Image {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		panic(fmt.Sprintf("core: invalid image dimensions %dx%d", width, height))
	}
	return &Image{
		width:  width,
		height: height,
		pix:    make([]Pixel, width*height),
	}
}

func (img *Image) Width() int  { return img.width }
func (img *Image) Height() int { return img.height }

// At returns the pixel at column x, row y.
func (img *Image) At(x, y int) *Pixel {
	if x < 0 || x >= img.width || y < 0 || y >= img.height {
		panic(fmt.Sprintf("core: pixel (%d,%d) outside %dx%d image", x, y, img.width, img.height))
	}
	return &img.pix[y*img.width+x]
}

// Row returns row y as a slice aliasing the image.
func (img *Image) Row(y int) []Pixel {
	return img.Rows().Row(y)
}

// Rows exposes the whole image as a row window.
func (img *Image) Rows() Rows {
	return Rows{Width: img.width, Pix: img.pix}
}

// Span returns the global rows [lo, hi) as a window aliasing the image.
func (img *Image) Span(lo, hi int) Rows {
	if lo < 0 || hi > img.height || lo > hi {
		panic(fmt.Sprintf("core: row span [%d, %d) outside image of height %d", lo, hi, img.height))
	}
	return Rows{Width: img.width, Pix: img.pix[lo*img.width : hi*img.width]}
}

// Clone returns a deep copy including working channels.
func (img *Image) Clone() *Image {
	out := &Image{width: img.width, height: img.height, pix: make([]Pixel, len(img.pix))}
	copy(out.pix, img.pix)
	return out
}

// Equal reports whether both images have the same size and base channels.
func (img *Image) Equal(other *Image) bool {
	if other == nil || img.width != other.width || img.height != other.height {
		return false
	}
	for i := range img.pix {
		for c := 0; c < BaseChannels; c++ {
			if img.pix[i][c] != other.pix[i][c] {
				return false
			}
		}
	}
	return true
}

// MaxIntensity scans every base channel once and returns the largest value.
func (img *Image) MaxIntensity() byte {
	var top byte
	for i := range img.pix {
		for c := 0; c < BaseChannels; c++ {
			top = max(top, img.pix[i][c])
		}
	}
	return top
}

// ValidateImage checks an image for basic requirements
func ValidateImage(img *Image) error {
	if img == nil {
		return fmt.Errorf("image is nil")
	}
	if img.width <= 0 || img.height <= 0 {
		return fmt.Errorf("invalid dimensions: %dx%d", img.width, img.height)
	}
	if len(img.pix) != img.width*img.height {
		return fmt.Errorf("pixel buffer holds %d pixels, want %d", len(img.pix), img.width*img.height)
	}
	return nil
}
