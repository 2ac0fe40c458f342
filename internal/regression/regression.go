// Package regression records a reference force evaluation in the
// configuration file and checks later evaluations against it.
package regression

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/cgmd/internal/dynamo"
	"github.com/san-kum/cgmd/internal/storage"
)

const (
	Group        = "/testing"
	ExpectedPath = "/testing/expected_deriv"

	DefaultTolerance = 1e-3
)

func logger() *slog.Logger {
	return slog.Default().With(slog.String("component", "regression"))
}

// Evaluator exposes the derivative array of a force evaluation.
type Evaluator interface {
	NAtom() int
	NSystem() int
	Deriv() []float32
}

type Result struct {
	Generated bool
	Verified  bool
	RMS       float64
}

// Check records eval's derivative as the reference when generate is set,
// then verifies it against the reference if one exists. The RMS deviation
// per atom is printed to w; a value above tol (or NaN) is a regression
// tolerance error.
func Check(ctx context.Context, st *storage.Store, eval Evaluator, generate bool, tol float64, w io.Writer) (Result, error) {
	var res Result
	nAtom, nSystem := eval.NAtom(), eval.NSystem()

	if generate {
		if err := record(ctx, st, eval); err != nil {
			return res, err
		}
		res.Generated = true
		logger().Debug("recorded reference derivative", slog.String("path", ExpectedPath))
	}

	ok, err := st.Exists(ctx, ExpectedPath)
	if err != nil {
		return res, err
	}
	if !ok {
		return res, nil
	}

	if err := st.CheckSize(ctx, ExpectedPath, nAtom, 3, nSystem); err != nil {
		return res, err
	}
	expected := make([]float64, nAtom*3*nSystem)
	err = st.Traverse3(ctx, ExpectedPath, func(na, d, ns int, x float32) {
		expected[na*3*nSystem+d*nSystem+ns] = float64(x)
	})
	if err != nil {
		return res, err
	}

	actual := make([]float64, len(expected))
	for i, v := range eval.Deriv()[:len(actual)] {
		actual[i] = float64(v)
	}

	res.RMS = floats.Distance(expected, actual, 2) / math.Sqrt(float64(nAtom*nSystem))
	res.Verified = true
	fmt.Fprintf(w, "RMS force difference: %.6f\n", res.RMS)

	if math.IsNaN(res.RMS) || res.RMS > tol {
		return res, dynamo.Errorf(dynamo.ErrRegressionTolerance,
			"inacceptable force deviation (%.6f > %g)", res.RMS, tol)
	}
	return res, nil
}

func record(ctx context.Context, st *storage.Store, eval Evaluator) error {
	if err := st.EnsureGroup(ctx, Group); err != nil {
		return err
	}
	ok, err := st.Exists(ctx, ExpectedPath)
	if err != nil {
		return err
	}
	if ok {
		return dynamo.Errorf(dynamo.ErrRegressionDuplicate, "%s already exists", ExpectedPath)
	}

	nAtom := eval.NAtom()
	ds, err := st.CreateArray(ctx, ExpectedPath, storage.Float32,
		[]int{nAtom, 3, 0}, []int{nAtom, 3, 1}, 2)
	if err != nil {
		return err
	}
	defer ds.Close()

	return ds.Append(ctx, eval.Deriv())
}
