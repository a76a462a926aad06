// Stage definitions for the depthwise-separable convolution pipeline
package algorithms

import (
	"fmt"

	"separable-convolution/internal/core"
)

// Stage identifies one step of a pipeline iteration.
type Stage int

const (
	StageVertical Stage = iota
	StageHorizontal
	StageReduce
	StageNormalize
	StageEncode
	StageDecode
)

var stageInfo = map[Stage]struct {
	name        string
	description string
}{
	StageVertical:   {"vertical", "3-tap vertical smoothing [1/3, 2/3, 1/3]"},
	StageHorizontal: {"horizontal", "3-tap horizontal edge filter [-1/3, 0, 1/3] with running maximum"},
	StageReduce:     {"reduce", "combine every worker's maximum into the global maximum"},
	StageNormalize:  {"normalize", "rescale base channels to the full byte range"},
	StageEncode:     {"encode", "depthwise expansion of base channels into working channels"},
	StageDecode:     {"decode", "average working channel groups back into base channels"},
}

// Stages returns every stage in execution order.
func Stages() []Stage {
	return []Stage{StageVertical, StageHorizontal, StageReduce, StageNormalize, StageEncode, StageDecode}
}

func (s Stage) String() string {
	if info, ok := stageInfo[s]; ok {
		return info.name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// GetDescription returns a human readable description of the stage.
func (s Stage) GetDescription() string {
	return stageInfo[s].description
}

// ValidateChannels checks that a working channel count fits the pixel and is
// a whole number of base channel groups.
func ValidateChannels(channels int) error {
	if channels < core.BaseChannels {
		return fmt.Errorf("channel count %d below base channel count %d", channels, core.BaseChannels)
	}
	if channels%core.BaseChannels != 0 {
		return fmt.Errorf("channel count %d is not a multiple of %d", channels, core.BaseChannels)
	}
	if channels > core.Capacity {
		return fmt.Errorf("channel count %d exceeds pixel capacity %d", channels, core.Capacity)
	}
	return nil
}
