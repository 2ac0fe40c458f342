package sim

import (
	"time"
)

// Frame describes one logged round.
type Frame struct {
	Index   int
	Round   uint64
	Time    float64
	Kinetic float64
	HBonds  float64
}

// Observer is notified after every logged frame.
type Observer interface {
	OnFrame(f Frame)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(f Frame)

func (fn ObserverFunc) OnFrame(f Frame) { fn(f) }

type Result struct {
	RunID    string
	NAtom    int
	Schedule Schedule
	Frames   int
	Elapsed  time.Duration

	// ForceRMS is set when a reference derivative was checked.
	ForceRMS      float64
	ForceVerified bool

	AvgKinetic   float64
	HasKinetic   bool
	FinalHBonds  float64
	Potential    float64
	Metrics      map[string]float64
	ReplacedPrev bool
}
