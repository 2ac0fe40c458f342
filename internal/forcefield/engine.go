// Package forcefield evaluates the coarse-grained potential of a protein
// model and advances it in time.
//
// An [Engine] owns the position and derivative arrays of every atom. The
// potential is the sum of independent [Term] values, each accumulating its
// energy and its gradient into the shared derivative array:
//
//   - [Bond]: harmonic bond lengths
//   - [Angle]: harmonic bond-angle cosines
//   - [Repulsion]: soft-sphere excluded volume between non-neighbours
//
// The [HBond] observable counts donor/acceptor contacts and does not
// contribute to the energy.
package forcefield

import (
	"fmt"

	"github.com/san-kum/cgmd/internal/dynamo"
	"github.com/san-kum/cgmd/internal/integrators"
)

// SubSteps is the number of integration sub-steps in one call to
// IntegrationStep.
const SubSteps = 3

type Engine interface {
	NAtom() int
	NSystem() int
	Positions() []float32
	Deriv() []float32
	Compute()
	IntegrationStep(mom []float32, dt float32, scheme integrators.Scheme)
	Potential() float64
	HBondCount() float64
}

// Term is one additive contribution to the potential.
type Term interface {
	Name() string
	// Accumulate adds the term's gradient into deriv and returns its energy.
	Accumulate(pos, deriv *dynamo.Coords) float64
}

type DerivEngine struct {
	pos       *dynamo.Coords
	deriv     *dynamo.Coords
	terms     []Term
	hbond     *HBond
	potential float64
	steppers  map[integrators.Scheme]integrators.Integrator
}

func New(nAtom, nSystem int, terms ...Term) *DerivEngine {
	return &DerivEngine{
		pos:      dynamo.NewCoords(nAtom, nSystem),
		deriv:    dynamo.NewCoords(nAtom, nSystem),
		terms:    terms,
		steppers: make(map[integrators.Scheme]integrators.Integrator),
	}
}

func (e *DerivEngine) AddTerm(t Term)         { e.terms = append(e.terms, t) }
func (e *DerivEngine) SetHBond(h *HBond)      { e.hbond = h }
func (e *DerivEngine) Terms() []Term          { return e.terms }
func (e *DerivEngine) NAtom() int             { return e.pos.NAtom }
func (e *DerivEngine) NSystem() int           { return e.pos.NSystem }
func (e *DerivEngine) Positions() []float32   { return e.pos.Data }
func (e *DerivEngine) Deriv() []float32       { return e.deriv.Data }
func (e *DerivEngine) Coords() *dynamo.Coords { return e.pos }
func (e *DerivEngine) Potential() float64     { return e.potential }

// Compute evaluates every term at the current positions.
func (e *DerivEngine) Compute() {
	for i := range e.deriv.Data {
		e.deriv.Data[i] = 0
	}
	potential := 0.0
	for _, t := range e.terms {
		potential += t.Accumulate(e.pos, e.deriv)
	}
	e.potential = potential
}

// IntegrationStep advances positions and mom by SubSteps sub-steps of dt.
// The derivative must be current on entry, as after Compute.
func (e *DerivEngine) IntegrationStep(mom []float32, dt float32, scheme integrators.Scheme) {
	integ, ok := e.steppers[scheme]
	if !ok {
		var err error
		integ, err = integrators.New(scheme)
		if err != nil {
			panic(fmt.Sprintf("forcefield: %v", err))
		}
		e.steppers[scheme] = integ
	}
	for i := 0; i < SubSteps; i++ {
		integ.Step(e, mom, dt)
	}
}

// HBondCount returns the mean number of hydrogen-bond contacts per system,
// or zero when the model defines no donors and acceptors.
func (e *DerivEngine) HBondCount() float64 {
	if e.hbond == nil {
		return 0
	}
	return e.hbond.Count(e.pos)
}

// Recenter subtracts the centroid of each system from its positions.
func Recenter(c *dynamo.Coords) {
	if c.NAtom == 0 {
		return
	}
	for s := 0; s < c.NSystem; s++ {
		for d := 0; d < 3; d++ {
			sum := 0.0
			for a := 0; a < c.NAtom; a++ {
				sum += float64(c.At(a, d, s))
			}
			center := float32(sum / float64(c.NAtom))
			for a := 0; a < c.NAtom; a++ {
				c.Data[c.Index(a, d, s)] -= center
			}
		}
	}
}
