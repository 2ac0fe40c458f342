package trajectory

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/san-kum/cgmd/internal/storage"
)

func newTestLogger(t *testing.T, nAtom, nChunk int) (*storage.Store, *Logger) {
	t.Helper()
	ctx := context.Background()
	st, err := storage.Create(ctx, filepath.Join(t.TempDir(), "traj.db"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	l, err := New(ctx, st, "/output", nAtom, nChunk)
	if err != nil {
		t.Fatalf("new logger failed: %v", err)
	}
	return st, l
}

func rows(t *testing.T, st *storage.Store, p string) int {
	t.Helper()
	dims, err := st.Shape(context.Background(), p)
	if err != nil {
		t.Fatalf("shape %s: %v", p, err)
	}
	return dims[0]
}

func TestKinetic(t *testing.T) {
	tests := []struct {
		name  string
		nAtom int
		mom   []float32
		want  float64
	}{
		{"two atoms", 2, []float32{1, 0, 0, 0, 1, 0}, 0.5},
		{"at rest", 1, []float32{0, 0, 0}, 0},
		{"one atom", 1, []float32{1, 2, 2}, 4.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kinetic(tt.mom, tt.nAtom); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestExplicitFlush(t *testing.T) {
	ctx := context.Background()
	st, l := newTestLogger(t, 2, 10)

	pos := make([]float32, 6)
	mom := []float32{1, 0, 0, 0, 1, 0}
	for i := 0; i < 4; i++ {
		if err := l.Log(ctx, float64(i), pos, mom); err != nil {
			t.Fatalf("log failed: %v", err)
		}
	}
	if l.Flushes() != 0 {
		t.Fatalf("expected no automatic flush, got %d", l.Flushes())
	}
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	if l.Buffered() != 0 || len(l.pos) != 0 || len(l.kinetic) != 0 {
		t.Error("buffers not empty after flush")
	}
	for _, p := range []string{"/output/time", "/output/pos", "/output/kinetic"} {
		if n := rows(t, st, p); n != 4 {
			t.Errorf("%s has %d rows, want 4", p, n)
		}
	}

	kinetic, _, err := st.ReadFloat64(ctx, "/output/kinetic")
	if err != nil {
		t.Fatal(err)
	}
	for i, k := range kinetic {
		if k != 0.5 {
			t.Errorf("kinetic[%d] = %f, want 0.5", i, k)
		}
	}
}

func TestAutomaticFlush(t *testing.T) {
	ctx := context.Background()
	st, l := newTestLogger(t, 3, 5)

	pos := make([]float32, 9)
	mom := make([]float32, 9)
	for i := 0; i < 5; i++ {
		if err := l.Log(ctx, float64(i), pos, mom); err != nil {
			t.Fatalf("log failed: %v", err)
		}
	}

	if l.Flushes() != 1 {
		t.Errorf("expected exactly one flush, got %d", l.Flushes())
	}
	if l.Buffered() != 0 {
		t.Errorf("expected empty buffer, got %d frames", l.Buffered())
	}
	if n := rows(t, st, "/output/pos"); n != 5 {
		t.Errorf("expected 5 rows, got %d", n)
	}

	// flushing an empty logger writes nothing
	if err := l.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if l.Flushes() != 1 {
		t.Errorf("empty flush counted, got %d", l.Flushes())
	}
}

func TestCloseFlushesRemainder(t *testing.T) {
	ctx := context.Background()
	st, l := newTestLogger(t, 1, 4)

	for i := 0; i < 6; i++ {
		if err := l.Log(ctx, 0.03*float64(i), []float32{float32(i), 0, 0}, []float32{0, 0, 0}); err != nil {
			t.Fatal(err)
		}
	}
	l.Close(ctx)

	times, _, err := st.ReadFloat64(ctx, "/output/time")
	if err != nil {
		t.Fatal(err)
	}
	if len(times) != 6 {
		t.Fatalf("expected 6 frames, got %d", len(times))
	}
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			t.Errorf("times not increasing at %d: %v", i, times)
		}
	}

	pos, dims, err := st.ReadFloat32(ctx, "/output/pos")
	if err != nil {
		t.Fatal(err)
	}
	if dims[0] != 6 || dims[1] != 1 || dims[2] != 3 {
		t.Errorf("unexpected pos dims %v", dims)
	}
	if pos[15] != 5 {
		t.Errorf("last frame x = %f, want 5", pos[15])
	}
}

func TestFlushKeepsFailedBuffer(t *testing.T) {
	ctx := context.Background()
	st, l := newTestLogger(t, 1, 10)

	if err := l.Log(ctx, 0, []float32{1, 2, 3}, []float32{0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	_ = l.posSet.Close()

	if err := l.Flush(ctx); err == nil {
		t.Fatal("expected flush error")
	}
	if len(l.pos) != 3 {
		t.Errorf("failed buffer was discarded")
	}
	if len(l.time) != 0 || len(l.kinetic) != 0 {
		t.Errorf("healthy buffers were not flushed")
	}
	if n := rows(t, st, "/output/time"); n != 1 {
		t.Errorf("expected 1 time row, got %d", n)
	}

	// teardown never fails
	l.Close(ctx)
}

func TestLogRejectsShortFrame(t *testing.T) {
	_, l := newTestLogger(t, 2, 4)
	if err := l.Log(context.Background(), 0, make([]float32, 3), make([]float32, 6)); err == nil {
		t.Error("expected error for short position frame")
	}
	if l.Buffered() != 0 {
		t.Error("rejected frame was buffered")
	}
}

func TestNewValidates(t *testing.T) {
	ctx := context.Background()
	st, err := storage.Create(ctx, filepath.Join(t.TempDir(), "traj.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	if _, err := New(ctx, st, "/output", 0, 10); err == nil {
		t.Error("expected error for zero atoms")
	}
	if _, err := New(ctx, st, "/output", 4, 0); err == nil {
		t.Error("expected error for zero chunk")
	}
}
