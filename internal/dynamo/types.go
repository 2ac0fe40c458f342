package dynamo

import "math"

// Coords is a flattened array of 3-D vectors for nAtom atoms of nSystem systems.
type Coords struct {
	NAtom   int
	NSystem int
	Data    []float32
}

func NewCoords(nAtom, nSystem int) *Coords {
	return &Coords{
		NAtom:   nAtom,
		NSystem: nSystem,
		Data:    make([]float32, nAtom*3*nSystem),
	}
}

func (c *Coords) Index(atom, dim, system int) int {
	return atom*3*c.NSystem + dim*c.NSystem + system
}

func (c *Coords) At(atom, dim, system int) float32 {
	return c.Data[c.Index(atom, dim, system)]
}

func (c *Coords) Set(atom, dim, system int, v float32) {
	c.Data[c.Index(atom, dim, system)] = v
}

func (c *Coords) Clone() *Coords {
	d := make([]float32, len(c.Data))
	copy(d, c.Data)
	return &Coords{NAtom: c.NAtom, NSystem: c.NSystem, Data: d}
}

// IsValid reports whether every component is finite.
func IsValid(xs []float32) bool {
	for _, v := range xs {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
