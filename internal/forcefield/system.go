package forcefield

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/cgmd/internal/config"
	"github.com/san-kum/cgmd/internal/storage"
)

const (
	InputGroup = "/input"
	PosPath    = "/input/pos"
	ForceGroup = "/input/force"
)

// WriteSystem writes a helical chain described by sys into st: the initial
// positions at /input/pos and bond, angle, repulsion and hbond groups below
// /input/force. Every system gets the same helix with independent jitter.
// Bond lengths and angles are taken from the unperturbed helix.
func WriteSystem(ctx context.Context, st *storage.Store, sys *config.System) error {
	if sys.NAtom < 3 {
		return fmt.Errorf("a chain needs at least 3 atoms, got %d", sys.NAtom)
	}
	if sys.NSystem < 1 {
		return fmt.Errorf("n_system must be at least 1, got %d", sys.NSystem)
	}

	n, ns := sys.NAtom, sys.NSystem
	helix := make([][3]float64, n)
	turn := sys.TurnDegrees * math.Pi / 180
	for i := range helix {
		helix[i] = [3]float64{
			sys.Radius * math.Cos(float64(i)*turn),
			sys.Radius * math.Sin(float64(i)*turn),
			float64(i) * sys.Rise,
		}
	}

	jitter := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(uint64(sys.Seed))}
	pos := make([]float32, n*3*ns)
	for a := 0; a < n; a++ {
		for d := 0; d < 3; d++ {
			for s := 0; s < ns; s++ {
				pos[(a*3+d)*ns+s] = float32(helix[a][d] + sys.Jitter*jitter.Rand())
			}
		}
	}
	if err := st.WriteFloat32(ctx, PosPath, []int{n, 3, ns}, pos); err != nil {
		return err
	}

	bondIDs := make([]int32, 0, 2*(n-1))
	bondDist := make([]float32, 0, n-1)
	bondK := make([]float32, 0, n-1)
	for i := 0; i+1 < n; i++ {
		bondIDs = append(bondIDs, int32(i), int32(i+1))
		bondDist = append(bondDist, float32(dist(helix[i], helix[i+1])))
		bondK = append(bondK, float32(sys.BondSpring))
	}
	if err := writeGroup(ctx, st, ForceGroup+"/bond", map[string]any{
		"id":           idTable{bondIDs, 2},
		"equil_dist":   bondDist,
		"spring_const": bondK,
	}); err != nil {
		return err
	}

	angleIDs := make([]int32, 0, 3*(n-2))
	angleCos := make([]float32, 0, n-2)
	angleK := make([]float32, 0, n-2)
	for i := 0; i+2 < n; i++ {
		angleIDs = append(angleIDs, int32(i), int32(i+1), int32(i+2))
		angleCos = append(angleCos, float32(cosAngle(helix[i], helix[i+1], helix[i+2])))
		angleK = append(angleK, float32(sys.AngleSpring))
	}
	if err := writeGroup(ctx, st, ForceGroup+"/angle", map[string]any{
		"id":           idTable{angleIDs, 3},
		"equil_cos":    angleCos,
		"spring_const": angleK,
	}); err != nil {
		return err
	}

	if err := writeGroup(ctx, st, ForceGroup+"/repulsion", map[string]any{
		"radius": []float32{float32(sys.RepulsionRadius)},
		"scale":  []float32{float32(sys.RepulsionScale)},
	}); err != nil {
		return err
	}

	donors := make([]int32, 0, n/2+1)
	acceptors := make([]int32, 0, n/2+1)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			donors = append(donors, int32(i))
		} else {
			acceptors = append(acceptors, int32(i))
		}
	}
	return writeGroup(ctx, st, ForceGroup+"/hbond", map[string]any{
		"donor":    idTable{donors, 1},
		"acceptor": idTable{acceptors, 1},
		"cutoff":   []float32{float32(sys.HBondCutoff)},
	})
}

type idTable struct {
	ids   []int32
	width int
}

func writeGroup(ctx context.Context, st *storage.Store, group string, datasets map[string]any) error {
	if err := st.EnsureGroup(ctx, group); err != nil {
		return err
	}
	for name, v := range datasets {
		p := group + "/" + name
		var err error
		switch v := v.(type) {
		case idTable:
			dims := []int{len(v.ids) / v.width, v.width}
			if v.width == 1 {
				dims = []int{len(v.ids)}
			}
			err = st.WriteInt32(ctx, p, dims, v.ids)
		case []float32:
			err = st.WriteFloat32(ctx, p, []int{len(v)}, v)
		default:
			err = fmt.Errorf("unsupported dataset type %T", v)
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
	}
	return nil
}

func dist(a, b [3]float64) float64 {
	s := 0.0
	for d := 0; d < 3; d++ {
		x := a[d] - b[d]
		s += x * x
	}
	return math.Sqrt(s)
}

func cosAngle(a, b, c [3]float64) float64 {
	uv, uu, vv := 0.0, 0.0, 0.0
	for d := 0; d < 3; d++ {
		u := a[d] - b[d]
		v := c[d] - b[d]
		uv += u * v
		uu += u * u
		vv += v * v
	}
	return uv / math.Sqrt(uu*vv)
}
