package forcefield

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/san-kum/cgmd/internal/dynamo"
	"github.com/san-kum/cgmd/internal/storage"
)

// Loader reads one term from its group in the configuration.
type Loader func(ctx context.Context, st *storage.Store, group string, nAtom int) (Term, error)

type Registry struct {
	terms map[string]Loader
}

func NewRegistry() *Registry {
	r := &Registry{terms: make(map[string]Loader)}

	r.terms["bond"] = loadBond
	r.terms["angle"] = loadAngle
	r.terms["repulsion"] = loadRepulsion

	return r
}

func (r *Registry) Register(name string, l Loader) { r.terms[name] = l }

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.terms))
	for name := range r.terms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load builds an engine for nAtom atoms of nSystem systems from the term
// groups below forceGroup. The "hbond" group configures the hydrogen-bond
// observable; any other unregistered group is a configuration error.
func (r *Registry) Load(ctx context.Context, st *storage.Store, forceGroup string, nAtom, nSystem int) (*DerivEngine, error) {
	ok, err := st.Exists(ctx, forceGroup)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dynamo.Errorf(dynamo.ErrConfigShape, "missing force field group %s", forceGroup)
	}

	nodes, err := st.List(ctx)
	if err != nil {
		return nil, err
	}

	engine := New(nAtom, nSystem)
	for _, n := range nodes {
		if n.Kind != storage.KindGroup || path.Dir(n.Path) != forceGroup {
			continue
		}
		name := path.Base(n.Path)
		if name == "hbond" {
			h, err := loadHBond(ctx, st, n.Path, nAtom)
			if err != nil {
				return nil, err
			}
			engine.SetHBond(h)
			continue
		}

		load, ok := r.terms[name]
		if !ok {
			return nil, dynamo.Errorf(dynamo.ErrConfigShape, "unknown force term %s (available: %v)", name, r.Names())
		}
		term, err := load(ctx, st, n.Path, nAtom)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", n.Path, err)
		}
		engine.AddTerm(term)
	}
	return engine, nil
}

func loadBond(ctx context.Context, st *storage.Store, group string, nAtom int) (Term, error) {
	ids, err := readIndex(ctx, st, group+"/id", 2, nAtom)
	if err != nil {
		return nil, err
	}
	n := len(ids) / 2
	equil, err := readParam(ctx, st, group+"/equil_dist", n)
	if err != nil {
		return nil, err
	}
	spring, err := readParam(ctx, st, group+"/spring_const", n)
	if err != nil {
		return nil, err
	}

	b := &Bond{Atoms: make([][2]int, n), EquilDist: equil, SpringConst: spring}
	for i := range b.Atoms {
		b.Atoms[i] = [2]int{ids[2*i], ids[2*i+1]}
	}
	return b, nil
}

func loadAngle(ctx context.Context, st *storage.Store, group string, nAtom int) (Term, error) {
	ids, err := readIndex(ctx, st, group+"/id", 3, nAtom)
	if err != nil {
		return nil, err
	}
	n := len(ids) / 3
	equil, err := readParam(ctx, st, group+"/equil_cos", n)
	if err != nil {
		return nil, err
	}
	spring, err := readParam(ctx, st, group+"/spring_const", n)
	if err != nil {
		return nil, err
	}

	a := &Angle{Atoms: make([][3]int, n), EquilCos: equil, SpringConst: spring}
	for i := range a.Atoms {
		a.Atoms[i] = [3]int{ids[3*i], ids[3*i+1], ids[3*i+2]}
	}
	return a, nil
}

func loadRepulsion(ctx context.Context, st *storage.Store, group string, _ int) (Term, error) {
	radius, err := readParam(ctx, st, group+"/radius", 1)
	if err != nil {
		return nil, err
	}
	scale, err := readParam(ctx, st, group+"/scale", 1)
	if err != nil {
		return nil, err
	}
	return &Repulsion{Radius: radius[0], Scale: scale[0]}, nil
}

func loadHBond(ctx context.Context, st *storage.Store, group string, nAtom int) (*HBond, error) {
	donors, err := readIndex(ctx, st, group+"/donor", 1, nAtom)
	if err != nil {
		return nil, err
	}
	acceptors, err := readIndex(ctx, st, group+"/acceptor", 1, nAtom)
	if err != nil {
		return nil, err
	}
	cutoff, err := readParam(ctx, st, group+"/cutoff", 1)
	if err != nil {
		return nil, err
	}
	return &HBond{Donors: donors, Acceptors: acceptors, Cutoff: cutoff[0]}, nil
}

// readIndex reads an [n, width] (or [n] for width 1) atom index table and
// checks every entry lies in [0, nAtom).
func readIndex(ctx context.Context, st *storage.Store, p string, width, nAtom int) ([]int, error) {
	raw, dims, err := st.ReadInt32(ctx, p)
	if err != nil {
		return nil, dynamo.Wrap(dynamo.ErrConfigShape, err, "invalid index table "+p)
	}
	if width > 1 && (len(dims) != 2 || dims[1] != width) {
		return nil, dynamo.Errorf(dynamo.ErrConfigShape, "%s has shape %v, expected [n %d]", p, dims, width)
	}
	if width == 1 && len(dims) != 1 {
		return nil, dynamo.Errorf(dynamo.ErrConfigShape, "%s has shape %v, expected [n]", p, dims)
	}

	ids := make([]int, len(raw))
	for i, v := range raw {
		if v < 0 || int(v) >= nAtom {
			return nil, dynamo.Errorf(dynamo.ErrConfigShape, "%s: atom index %d out of range [0, %d)", p, v, nAtom)
		}
		ids[i] = int(v)
	}
	return ids, nil
}

func readParam(ctx context.Context, st *storage.Store, p string, n int) ([]float32, error) {
	if err := st.CheckSize(ctx, p, n); err != nil {
		return nil, err
	}
	vals, _, err := st.ReadFloat32(ctx, p)
	return vals, err
}
