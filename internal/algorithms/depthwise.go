package algorithms

import (
	"math/rand/v2"

	"separable-convolution/internal/core"
)

// DefaultSeed is the depthwise kernel seed used when none is configured.
const DefaultSeed int64 = 42

// DepthwiseKernel returns BaseChannels weights drawn deterministically from seed.
// Weights lie in [0, 2/BaseChannels) so a projected channel keeps roughly the
// magnitude of its source.
func DepthwiseKernel(seed int64) []float32 {
	rng := rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
	k := make([]float32, core.BaseChannels)
	for i := range k {
		k[i] = rng.Float32() * 2 / core.BaseChannels
	}
	return k
}

// Encode expands every pixel in [active) from BaseChannels to channels by
// projecting base channel id%BaseChannels through kernel into channel id.
func Encode(rows core.Rows, active core.Span, kernel []float32, channels int) {
	for i := active.Lo; i < active.Hi; i++ {
		row := rows.Row(i)
		for j := range row {
			px := &row[j]
			for id := core.BaseChannels; id < channels; id++ {
				src := float32(px[id%core.BaseChannels])
				var acc float32
				for _, w := range kernel {
					acc += src * w
				}
				px[id] = Clamp(acc)
			}
		}
	}
}

// Decode collapses channels back into the base channels by averaging each base
// channel across the channels/BaseChannels groups. With a single group it is
// the identity.
func Decode(rows core.Rows, active core.Span, channels int) {
	groups := float32(channels / core.BaseChannels)
	for i := active.Lo; i < active.Hi; i++ {
		row := rows.Row(i)
		for j := range row {
			px := &row[j]
			var sum [core.BaseChannels]int
			for g := 0; g < channels; g += core.BaseChannels {
				for c := 0; c < core.BaseChannels; c++ {
					sum[c] += int(px[g+c])
				}
			}
			for c := 0; c < core.BaseChannels; c++ {
				px[c] = Clamp(float32(sum[c]) / groups)
			}
		}
	}
}
