package regression

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/san-kum/cgmd/internal/dynamo"
	"github.com/san-kum/cgmd/internal/storage"
)

type fixedEval struct {
	nAtom int
	deriv []float32
}

func (f *fixedEval) NAtom() int       { return f.nAtom }
func (f *fixedEval) NSystem() int     { return 1 }
func (f *fixedEval) Deriv() []float32 { return f.deriv }

func newEval(nAtom int) *fixedEval {
	f := &fixedEval{nAtom: nAtom, deriv: make([]float32, 3*nAtom)}
	for i := range f.deriv {
		f.deriv[i] = float32(i)*0.25 - 1
	}
	return f
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	st, err := storage.Create(context.Background(), filepath.Join(t.TempDir(), "config.db"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestGenerateThenVerify(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	eval := newEval(5)

	var out bytes.Buffer
	res, err := Check(ctx, st, eval, true, DefaultTolerance, &out)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !res.Generated || !res.Verified {
		t.Errorf("expected generate and verify, got %+v", res)
	}
	if res.RMS != 0 {
		t.Errorf("expected zero deviation, got %f", res.RMS)
	}
	if !strings.Contains(out.String(), "RMS force difference: 0.000000") {
		t.Errorf("unexpected report %q", out.String())
	}

	// a later run verifies without generating
	res, err = Check(ctx, st, eval, false, DefaultTolerance, &out)
	if err != nil || res.Generated || !res.Verified {
		t.Errorf("verify run: res=%+v err=%v", res, err)
	}
}

func TestGenerateTwice(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	eval := newEval(4)

	var out bytes.Buffer
	if _, err := Check(ctx, st, eval, true, DefaultTolerance, &out); err != nil {
		t.Fatalf("first generate failed: %v", err)
	}
	_, err := Check(ctx, st, eval, true, DefaultTolerance, &out)
	if !errors.Is(err, dynamo.ErrRegressionDuplicate) {
		t.Errorf("expected ErrRegressionDuplicate, got %v", err)
	}
}

func TestNoReference(t *testing.T) {
	st := newTestStore(t)

	var out bytes.Buffer
	res, err := Check(context.Background(), st, newEval(3), false, DefaultTolerance, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Verified || out.Len() != 0 {
		t.Errorf("nothing should be verified without a reference: %+v %q", res, out.String())
	}
}

func TestDeviation(t *testing.T) {
	tests := []struct {
		name    string
		perturb float32
		tol     float64
		wantErr bool
	}{
		{"within tolerance", 1e-4, DefaultTolerance, false},
		{"exceeds tolerance", 0.1, DefaultTolerance, true},
		{"loose tolerance", 0.1, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := newTestStore(t)
			eval := newEval(4)

			var out bytes.Buffer
			if _, err := Check(ctx, st, eval, true, tt.tol, &out); err != nil {
				t.Fatal(err)
			}

			eval.deriv[0] += tt.perturb
			res, err := Check(ctx, st, eval, false, tt.tol, &out)
			want := float64(tt.perturb) / math.Sqrt(4)
			if math.Abs(res.RMS-want) > 1e-6 {
				t.Errorf("rms %f, want %f", res.RMS, want)
			}
			if tt.wantErr != errors.Is(err, dynamo.ErrRegressionTolerance) {
				t.Errorf("wantErr=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNaNDeviationFails(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	eval := newEval(2)

	var out bytes.Buffer
	if _, err := Check(ctx, st, eval, true, DefaultTolerance, &out); err != nil {
		t.Fatal(err)
	}
	eval.deriv[1] = float32(math.NaN())
	_, err := Check(ctx, st, eval, false, DefaultTolerance, &out)
	if !errors.Is(err, dynamo.ErrRegressionTolerance) {
		t.Errorf("expected ErrRegressionTolerance, got %v", err)
	}
}

func TestReferenceShapeMismatch(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	var out bytes.Buffer
	if _, err := Check(ctx, st, newEval(4), true, DefaultTolerance, &out); err != nil {
		t.Fatal(err)
	}
	_, err := Check(ctx, st, newEval(5), false, DefaultTolerance, &out)
	if !errors.Is(err, dynamo.ErrConfigShape) {
		t.Errorf("expected ErrConfigShape, got %v", err)
	}
}

func TestGenerateLogsWithComponent(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	var out bytes.Buffer
	if _, err := Check(context.Background(), newTestStore(t), newEval(3), true, DefaultTolerance, &out); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !strings.Contains(logs.String(), "component=regression") {
		t.Errorf("expected a regression component attribute, got %q", logs.String())
	}
}
