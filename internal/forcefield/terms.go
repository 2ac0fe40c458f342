package forcefield

import (
	"math"

	"github.com/san-kum/cgmd/internal/dynamo"
)

type Bond struct {
	Atoms       [][2]int
	EquilDist   []float32
	SpringConst []float32
}

func (b *Bond) Name() string { return "bond" }

// Accumulate adds ½k(r-r0)² for every bond.
func (b *Bond) Accumulate(pos, deriv *dynamo.Coords) float64 {
	energy := 0.0
	for s := 0; s < pos.NSystem; s++ {
		for n, pair := range b.Atoms {
			var dx [3]float64
			r2 := 0.0
			for d := 0; d < 3; d++ {
				dx[d] = float64(pos.At(pair[0], d, s) - pos.At(pair[1], d, s))
				r2 += dx[d] * dx[d]
			}
			r := math.Sqrt(r2)
			k := float64(b.SpringConst[n])
			delta := r - float64(b.EquilDist[n])
			energy += 0.5 * k * delta * delta
			if r == 0 {
				continue
			}
			g := k * delta / r
			for d := 0; d < 3; d++ {
				deriv.Data[deriv.Index(pair[0], d, s)] += float32(g * dx[d])
				deriv.Data[deriv.Index(pair[1], d, s)] -= float32(g * dx[d])
			}
		}
	}
	return energy
}

// Angle restrains the cosine of the angle at the middle atom of each triple.
type Angle struct {
	Atoms       [][3]int
	EquilCos    []float32
	SpringConst []float32
}

func (a *Angle) Name() string { return "angle" }

func (a *Angle) Accumulate(pos, deriv *dynamo.Coords) float64 {
	energy := 0.0
	for s := 0; s < pos.NSystem; s++ {
		for n, tri := range a.Atoms {
			var u, v [3]float64
			uu, vv, uv := 0.0, 0.0, 0.0
			for d := 0; d < 3; d++ {
				center := float64(pos.At(tri[1], d, s))
				u[d] = float64(pos.At(tri[0], d, s)) - center
				v[d] = float64(pos.At(tri[2], d, s)) - center
				uu += u[d] * u[d]
				vv += v[d] * v[d]
				uv += u[d] * v[d]
			}
			if uu == 0 || vv == 0 {
				continue
			}
			lu, lv := math.Sqrt(uu), math.Sqrt(vv)
			cos := uv / (lu * lv)
			k := float64(a.SpringConst[n])
			delta := cos - float64(a.EquilCos[n])
			energy += 0.5 * k * delta * delta

			g := k * delta
			for d := 0; d < 3; d++ {
				du := g * (v[d]/(lu*lv) - cos*u[d]/uu)
				dv := g * (u[d]/(lu*lv) - cos*v[d]/vv)
				deriv.Data[deriv.Index(tri[0], d, s)] += float32(du)
				deriv.Data[deriv.Index(tri[2], d, s)] += float32(dv)
				deriv.Data[deriv.Index(tri[1], d, s)] -= float32(du + dv)
			}
		}
	}
	return energy
}

// Repulsion is a soft-sphere penalty s(R-r)² for r < R between every pair
// of atoms that are not chain neighbours.
type Repulsion struct {
	Radius float32
	Scale  float32
}

func (r *Repulsion) Name() string { return "repulsion" }

func (r *Repulsion) Accumulate(pos, deriv *dynamo.Coords) float64 {
	radius := float64(r.Radius)
	scale := float64(r.Scale)
	r2max := radius * radius

	energy := 0.0
	for s := 0; s < pos.NSystem; s++ {
		for i := 0; i < pos.NAtom; i++ {
			for j := i + 2; j < pos.NAtom; j++ {
				var dx [3]float64
				d2 := 0.0
				for d := 0; d < 3; d++ {
					dx[d] = float64(pos.At(i, d, s) - pos.At(j, d, s))
					d2 += dx[d] * dx[d]
				}
				if d2 >= r2max || d2 == 0 {
					continue
				}
				dist := math.Sqrt(d2)
				overlap := radius - dist
				energy += scale * overlap * overlap

				g := -2 * scale * overlap / dist
				for d := 0; d < 3; d++ {
					deriv.Data[deriv.Index(i, d, s)] += float32(g * dx[d])
					deriv.Data[deriv.Index(j, d, s)] -= float32(g * dx[d])
				}
			}
		}
	}
	return energy
}

// HBond counts donor/acceptor pairs closer than Cutoff.
type HBond struct {
	Donors    []int
	Acceptors []int
	Cutoff    float32
}

// Count returns the number of contacts averaged over systems.
func (h *HBond) Count(pos *dynamo.Coords) float64 {
	if pos.NSystem == 0 {
		return 0
	}
	c2 := float64(h.Cutoff) * float64(h.Cutoff)
	total := 0
	for s := 0; s < pos.NSystem; s++ {
		for _, dn := range h.Donors {
			for _, ac := range h.Acceptors {
				if dn == ac {
					continue
				}
				d2 := 0.0
				for d := 0; d < 3; d++ {
					x := float64(pos.At(dn, d, s) - pos.At(ac, d, s))
					d2 += x * x
				}
				if d2 < c2 {
					total++
				}
			}
		}
	}
	return float64(total) / float64(pos.NSystem)
}
