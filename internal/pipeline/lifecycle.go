// Worker lifecycle tracking
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"separable-convolution/internal/algorithms"
)

// ErrInvalidTransition is returned when a worker skips or repeats a state.
var ErrInvalidTransition = errors.New("pipeline: invalid lifecycle transition")

// State is a point in a worker's lifecycle.
type State int

const (
	Idle State = iota
	HaloReceived
	VerticalDone
	HorizontalDone
	ReducedDone
	NormalizedDone
	EncodedDone
	DecodedDone
	Gathered
	Terminated
	Failed
)

var stateNames = [...]string{
	Idle:           "idle",
	HaloReceived:   "halo_received",
	VerticalDone:   "vertical_done",
	HorizontalDone: "horizontal_done",
	ReducedDone:    "reduced_done",
	NormalizedDone: "normalized_done",
	EncodedDone:    "encoded_done",
	DecodedDone:    "decoded_done",
	Gathered:       "gathered",
	Terminated:     "terminated",
	Failed:         "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StageState returns the state a worker enters when a stage completes.
func StageState(stage algorithms.Stage) State {
	switch stage {
	case algorithms.StageVertical:
		return VerticalDone
	case algorithms.StageHorizontal:
		return HorizontalDone
	case algorithms.StageReduce:
		return ReducedDone
	case algorithms.StageNormalize:
		return NormalizedDone
	case algorithms.StageEncode:
		return EncodedDone
	case algorithms.StageDecode:
		return DecodedDone
	default:
		panic(fmt.Sprintf("pipeline: no state for %s", stage))
	}
}

// Transition records one lifecycle step.
type Transition struct {
	Timestamp time.Time
	From, To  State
	Iteration int
}

// Lifecycle tracks one worker through its states. It is not safe for
// concurrent use; every worker owns its own.
type Lifecycle struct {
	iterations int
	state      State
	completed  int // iterations fully decoded
	history    []Transition
}

// NewLifecycle starts a worker in Idle for a run of the given iteration count.
func NewLifecycle(iterations int) *Lifecycle {
	return &Lifecycle{iterations: iterations, state: Idle}
}

// State returns the current state.
func (l *Lifecycle) State() State { return l.state }

// Completed returns the number of finished iterations.
func (l *Lifecycle) Completed() int { return l.completed }

// History returns every accepted transition in order.
func (l *Lifecycle) History() []Transition { return l.history }

// Advance moves to the next state. Anything other than the single legal
// successor is rejected and leaves the state unchanged.
func (l *Lifecycle) Advance(to State) error {
	if next, ok := l.next(); !ok || next != to {
		return fmt.Errorf("%w: %s -> %s (iteration %d of %d)", ErrInvalidTransition, l.state, to, l.completed, l.iterations)
	}
	l.history = append(l.history, Transition{Timestamp: time.Now(), From: l.state, To: to, Iteration: l.completed})
	if to == DecodedDone {
		l.completed++
	}
	l.state = to
	return nil
}

// Fail moves to Failed from any state. Failed and Terminated are final.
func (l *Lifecycle) Fail() {
	if l.state == Terminated || l.state == Failed {
		return
	}
	l.history = append(l.history, Transition{Timestamp: time.Now(), From: l.state, To: Failed, Iteration: l.completed})
	l.state = Failed
}

func (l *Lifecycle) next() (State, bool) {
	switch l.state {
	case Idle:
		return HaloReceived, true
	case HaloReceived, DecodedDone:
		if l.completed < l.iterations {
			return VerticalDone, true
		}
		return Gathered, true
	case VerticalDone, HorizontalDone, ReducedDone, NormalizedDone, EncodedDone:
		return l.state + 1, true
	case Gathered:
		return Terminated, true
	default:
		return 0, false
	}
}
