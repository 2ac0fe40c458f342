package metrics

import (
	"gonum.org/v1/gonum/stat"
)

// SecondHalfKinetic averages the kinetic energy of the frames recorded in
// the second half of a run, i.e. frames with index above
// nRound*0.5/frameInterval.
type SecondHalfKinetic struct {
	name      string
	threshold float64
	values    []float64
}

func NewSecondHalfKinetic(nRound, frameInterval uint64) *SecondHalfKinetic {
	if frameInterval == 0 {
		frameInterval = 1
	}
	return &SecondHalfKinetic{
		name:      "avg_kinetic",
		threshold: float64(nRound) * 0.5 / float64(frameInterval),
	}
}

func (k *SecondHalfKinetic) Name() string { return k.name }

func (k *SecondHalfKinetic) Observe(index int, kinetic float64) {
	if float64(index) > k.threshold {
		k.values = append(k.values, kinetic)
	}
}

// Value returns the mean, or false when no frame qualified.
func (k *SecondHalfKinetic) Value() (float64, bool) {
	if len(k.values) == 0 {
		return 0, false
	}
	return stat.Mean(k.values, nil), true
}

func (k *SecondHalfKinetic) Count() int { return len(k.values) }

func (k *SecondHalfKinetic) Reset() { k.values = k.values[:0] }
