package processing

import "fmt"

// State is a position in the linear preprocessing state machine.
type State int

const (
	StateLoaded State = iota
	StateGrayscaled
	StateDeskewed
	StateEqualized
	StateBinarized
	StateGradiented
	StateDenoised
	StateReady
)

var stateNames = [...]string{
	StateLoaded:     "loaded",
	StateGrayscaled: "grayscaled",
	StateDeskewed:   "deskewed",
	StateEqualized:  "equalized",
	StateBinarized:  "binarized",
	StateGradiented: "gradiented",
	StateDenoised:   "denoised",
	StateReady:      "ready",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Next returns the state that follows s. StateReady is terminal.
func (s State) Next() State {
	if s >= StateReady {
		return StateReady
	}
	return s + 1
}

// CanTransition reports whether moving from s to next is a legal single step.
func (s State) CanTransition(next State) bool {
	return s < StateReady && next == s+1
}
