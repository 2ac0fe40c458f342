// Package integrators implements the symplectic sub-steps used to advance
// positions and momenta. All schemes assume unit masses, so momentum and
// velocity coincide.
package integrators

import (
	"fmt"
	"strings"
)

// System is the state an integrator advances. Deriv holds the gradient of
// the potential energy at Positions after every call to Compute.
type System interface {
	Positions() []float32
	Deriv() []float32
	Compute()
}

type Integrator interface {
	// Step advances sys and mom by dt. Deriv must be current on entry and
	// is current for the new positions on return.
	Step(sys System, mom []float32, dt float32)
}

type Scheme int

const (
	Verlet Scheme = iota
	PositionVerlet
)

func (s Scheme) String() string {
	switch s {
	case Verlet:
		return "verlet"
	case PositionVerlet:
		return "position-verlet"
	default:
		return fmt.Sprintf("scheme(%d)", int(s))
	}
}

func ParseScheme(name string) (Scheme, error) {
	switch strings.ToLower(name) {
	case "", "verlet":
		return Verlet, nil
	case "position-verlet", "position_verlet":
		return PositionVerlet, nil
	default:
		return 0, fmt.Errorf("unknown integrator: %s", name)
	}
}

func New(s Scheme) (Integrator, error) {
	switch s {
	case Verlet:
		return NewVerlet(), nil
	case PositionVerlet:
		return NewPositionVerlet(), nil
	default:
		return nil, fmt.Errorf("unknown integrator: %v", s)
	}
}

// VerletIntegrator is velocity Verlet: half kick, drift, recompute, half kick.
type VerletIntegrator struct{}

func NewVerlet() *VerletIntegrator {
	return &VerletIntegrator{}
}

func (v *VerletIntegrator) Step(sys System, mom []float32, dt float32) {
	pos := sys.Positions()
	halfDt := 0.5 * dt

	deriv := sys.Deriv()
	for i := range mom {
		mom[i] -= halfDt * deriv[i]
	}
	for i := range pos {
		pos[i] += dt * mom[i]
	}

	sys.Compute()

	deriv = sys.Deriv()
	for i := range mom {
		mom[i] -= halfDt * deriv[i]
	}
}

// PositionVerletIntegrator drifts half a step, kicks a full step and drifts again.
// The derivative is recomputed at the end so callers always see forces
// for the current positions.
type PositionVerletIntegrator struct{}

func NewPositionVerlet() *PositionVerletIntegrator {
	return &PositionVerletIntegrator{}
}

func (l *PositionVerletIntegrator) Step(sys System, mom []float32, dt float32) {
	pos := sys.Positions()
	halfDt := 0.5 * dt

	for i := range pos {
		pos[i] += halfDt * mom[i]
	}

	sys.Compute()

	deriv := sys.Deriv()
	for i := range mom {
		mom[i] -= dt * deriv[i]
	}
	for i := range pos {
		pos[i] += halfDt * mom[i]
	}

	sys.Compute()
}
