package algorithms

import (
	"separable-convolution/internal/core"
)

// FloorMax guards normalization against an all-black image.
func FloorMax(top byte) byte {
	if top == 0 {
		return 1
	}
	return top
}

// Normalize rescales base channels in [active) by 255/globalMax. The product is
// taken in integers so the maximum lands on exactly 255 and the result never
// depends on float rounding.
func Normalize(rows core.Rows, active core.Span, globalMax byte) {
	top := int(FloorMax(globalMax))
	for i := active.Lo; i < active.Hi; i++ {
		row := rows.Row(i)
		for j := range row {
			for c := 0; c < core.BaseChannels; c++ {
				row[j][c] = byte(min(255, int(row[j][c])*255/top))
			}
		}
	}
}
