// Separable 3-tap filters applied to row windows
package algorithms

import (
	"fmt"

	"separable-convolution/internal/core"
)

var (
	// VerticalKernel smooths along rows i-1, i, i+1. The weights deliberately sum to 4/3.
	VerticalKernel = [3]float32{1.0 / 3, 2.0 / 3, 1.0 / 3}
	// HorizontalKernel detects edges along columns j-1, j, j+1. Horizontal applies
	// it as a convolution (mirrored), not a correlation: out[j] = (in[j-1] - in[j+1]) / 3.
	HorizontalKernel = [3]float32{-1.0 / 3, 0, 1.0 / 3}
)

// Clamp converts an accumulated intensity to a byte, truncating toward zero.
func Clamp(v float32) byte {
	if !(v > 0) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(v)
}

// Snapshot copies rows [span) of src into dst so a stencil can read the
// previous stage's values while the current stage writes in place.
func Snapshot(dst, src core.Rows, span core.Span) {
	checkWindow(dst, src)
	lo, hi := span.Lo*src.Width, span.Hi*src.Width
	copy(dst.Pix[lo:hi], src.Pix[lo:hi])
}

// Vertical writes rows [active) of dst from the snapshot src. Taps outside
// the window contribute zero: a window either ends at the true image edge or
// the active span keeps one row away from its border.
func Vertical(dst, src core.Rows, active core.Span) {
	checkWindow(dst, src)
	rows := src.Len()
	var acc [core.BaseChannels]float32

	for i := active.Lo; i < active.Hi; i++ {
		out := dst.Row(i)
		for j := 0; j < src.Width; j++ {
			acc = [core.BaseChannels]float32{}
			for m := -1; m <= 1; m++ {
				r := i + m
				if r < 0 || r >= rows {
					continue // zero contribution past the true boundary
				}
				px := &src.Pix[r*src.Width+j]
				for c := 0; c < core.BaseChannels; c++ {
					acc[c] += float32(px[c]) * VerticalKernel[m+1]
				}
			}
			for c := 0; c < core.BaseChannels; c++ {
				out[j][c] = Clamp(acc[c])
			}
		}
	}
}

// Horizontal convolves rows [active) in place with the mirrored kernel, so
// out[j] = (in[j-1] - in[j+1]) / 3, and returns the largest resulting base
// channel value among the rows that are also in owned. Halo rows are filtered
// but do not contribute to the maximum.
func Horizontal(rows core.Rows, active, owned core.Span) byte {
	line := make([]core.Pixel, rows.Width)
	var acc [core.BaseChannels]float32
	var top byte

	for i := active.Lo; i < active.Hi; i++ {
		row := rows.Row(i)
		copy(line, row)
		track := i >= owned.Lo && i < owned.Hi

		for j := range line {
			acc = [core.BaseChannels]float32{}
			for n := -1; n <= 1; n++ {
				col := j + n
				if col < 0 || col >= len(line) {
					continue
				}
				for c := 0; c < core.BaseChannels; c++ {
					acc[c] += float32(line[col][c]) * HorizontalKernel[1-n]
				}
			}
			for c := 0; c < core.BaseChannels; c++ {
				v := Clamp(acc[c])
				row[j][c] = v
				if track {
					top = max(top, v)
				}
			}
		}
	}
	return top
}

func checkWindow(dst, src core.Rows) {
	if dst.Width != src.Width || len(dst.Pix) != len(src.Pix) {
		panic(fmt.Sprintf("algorithms: window %dx%d does not match snapshot %dx%d",
			dst.Width, dst.Len(), src.Width, src.Len()))
	}
}
