// Package thermostat couples momenta to a heat bath with an
// Ornstein-Uhlenbeck process.
package thermostat

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// ThermalizeDeltaT is an elapsed time long enough that one Apply draws
// momenta straight from the equilibrium distribution.
const ThermalizeDeltaT = 1e8

// OrnsteinUhlenbeck relaxes each momentum component towards a Gaussian of
// variance Temperature with time constant Timescale. Unit masses are
// assumed.
type OrnsteinUhlenbeck struct {
	Timescale   float64
	Temperature float64

	deltaT float64
	decay  float64
	noise  float64
	normal distuv.Normal
}

// New returns a thermostat whose Apply advances by deltaT per call. The
// random stream is fully determined by seed.
func New(seed int64, timescale, temperature, deltaT float64) *OrnsteinUhlenbeck {
	t := &OrnsteinUhlenbeck{
		Timescale:   timescale,
		Temperature: temperature,
		normal: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   rand.NewSource(uint64(seed)),
		},
	}
	t.SetDeltaT(deltaT)
	return t
}

func (t *OrnsteinUhlenbeck) DeltaT() float64 { return t.deltaT }

// SetDeltaT fixes the physical time that elapses between successive calls
// to Apply.
func (t *OrnsteinUhlenbeck) SetDeltaT(deltaT float64) {
	t.deltaT = deltaT
	t.decay = math.Exp(-deltaT / t.Timescale)
	t.noise = math.Sqrt(t.Temperature * (1 - t.decay*t.decay))
}

// Apply updates the first 3*nAtom components of mom in place.
func (t *OrnsteinUhlenbeck) Apply(mom []float32, nAtom int) {
	n := 3 * nAtom
	if n > len(mom) {
		n = len(mom)
	}
	for i := 0; i < n; i++ {
		mom[i] = float32(t.decay*float64(mom[i]) + t.noise*t.normal.Rand())
	}
}
