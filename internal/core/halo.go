package core

import (
	"fmt"
)

// Block is a worker's partition extended by halo rows. It holds the global
// rows [Lo, Hi) in one contiguous allocation; rows beyond the true image
// boundary are absent rather than zero-filled.
type Block struct {
	Width  int
	Height int // height of the full image
	Part   Partition
	Lo, Hi int
	Halo   int // halo depth requested at setup, equal to the iteration count
	pix    []Pixel
}

// HaloSpan returns the global rows a worker needs for the given number of iterations.
func HaloSpan(height int, part Partition, iterations int) Span {
	if iterations < 0 {
		panic(fmt.Sprintf("core: negative iteration count %d", iterations))
	}
	if part.Empty() {
		return Span{Lo: part.Start, Hi: part.Start}
	}
	return Span{
		Lo: max(0, part.Start-iterations),
		Hi: min(height, part.End+iterations),
	}
}

// NewBlock allocates an empty block sized for the halo of part.
func NewBlock(width, height int, part Partition, iterations int) *Block {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("core: invalid image dimensions %dx%d", width, height))
	}
	span := HaloSpan(height, part, iterations)
	return &Block{
		Width:  width,
		Height: height,
		Part:   part,
		Lo:     span.Lo,
		Hi:     span.Hi,
		Halo:   iterations,
		pix:    make([]Pixel, span.Len()*width),
	}
}

// Extract copies the partition and its halo rows out of img.
func Extract(img *Image, part Partition, iterations int) *Block {
	b := NewBlock(img.width, img.height, part, iterations)
	copy(b.pix, img.Span(b.Lo, b.Hi).Pix)
	return b
}

// Len returns the number of rows held, halo included.
func (b *Block) Len() int {
	return b.Hi - b.Lo
}

// Rows exposes the block buffer; row 0 is global row Lo.
func (b *Block) Rows() Rows {
	return Rows{Width: b.Width, Pix: b.pix}
}

// AtTop reports whether the block starts at the true top of the image.
func (b *Block) AtTop() bool {
	return b.Lo == 0
}

// AtBottom reports whether the block ends at the true bottom of the image.
func (b *Block) AtBottom() bool {
	return b.Hi == b.Height
}

// Owned returns the strict partition in block-local row indices.
func (b *Block) Owned() Span {
	return Span{Lo: b.Part.Start - b.Lo, Hi: b.Part.End - b.Lo}
}

// Active returns the block-local rows recomputed at iteration k. Each iteration
// consumes one halo row on every side that borders a neighbour, so the outermost
// halo row read at iteration k is still valid. Sides on the true image edge are
// never narrowed.
func (b *Block) Active(k int) Span {
	if k < 0 || k >= b.Halo {
		panic(fmt.Sprintf("core: iteration %d outside halo depth %d", k, b.Halo))
	}
	s := Span{Lo: 0, Hi: b.Len()}
	if !b.AtTop() {
		s.Lo = k + 1
	}
	if !b.AtBottom() {
		s.Hi = b.Len() - k - 1
	}
	return s.Intersect(Span{Lo: 0, Hi: b.Len()})
}

// Store writes the strict partition rows back into img.
func (b *Block) Store(img *Image) {
	if img.width != b.Width || img.height != b.Height {
		panic(fmt.Sprintf("core: block for %dx%d stored into %dx%d image", b.Width, b.Height, img.width, img.height))
	}
	copy(img.Span(b.Part.Start, b.Part.End).Pix, b.OwnedRows().Pix)
}

// OwnedRows returns the strict partition rows as a window aliasing the block.
func (b *Block) OwnedRows() Rows {
	own := b.Owned()
	return Rows{Width: b.Width, Pix: b.pix[own.Lo*b.Width : own.Hi*b.Width]}
}
