// Package trajectory buffers simulation frames in memory and appends them to
// chunked datasets in blocks.
package trajectory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/san-kum/cgmd/internal/storage"
)

// Logger collects (time, positions, kinetic energy) frames and writes them
// to <group>/time, <group>/pos and <group>/kinetic. A block is appended
// automatically once nChunk frames are buffered.
//
// Logger is not safe for concurrent use.
type Logger struct {
	nAtom  int
	nChunk int

	posSet     *storage.Dataset
	kineticSet *storage.Dataset
	timeSet    *storage.Dataset

	pos     []float32
	kinetic []float64
	time    []float64

	flushes int
	log     *slog.Logger
}

// New creates the three growable datasets below group. The group must not
// already hold them.
func New(ctx context.Context, st *storage.Store, group string, nAtom, nChunk int) (*Logger, error) {
	if nAtom < 1 {
		return nil, fmt.Errorf("trajectory: n_atom must be positive, got %d", nAtom)
	}
	if nChunk < 1 {
		return nil, fmt.Errorf("trajectory: chunk size must be positive, got %d", nChunk)
	}

	l := &Logger{
		nAtom:   nAtom,
		nChunk:  nChunk,
		pos:     make([]float32, 0, nChunk*nAtom*3),
		kinetic: make([]float64, 0, nChunk),
		time:    make([]float64, 0, nChunk),
		log:     slog.Default().With(slog.String("component", "trajectory")),
	}

	var err error
	l.posSet, err = st.CreateArray(ctx, group+"/pos", storage.Float32,
		[]int{0, nAtom, 3}, []int{nChunk, nAtom, 3}, 0)
	if err != nil {
		return nil, err
	}
	l.kineticSet, err = st.CreateArray(ctx, group+"/kinetic", storage.Float64,
		[]int{0}, []int{nChunk}, 0)
	if err != nil {
		l.closeSets()
		return nil, err
	}
	l.timeSet, err = st.CreateArray(ctx, group+"/time", storage.Float64,
		[]int{0}, []int{nChunk}, 0)
	if err != nil {
		l.closeSets()
		return nil, err
	}
	return l, nil
}

// Kinetic returns the reduced kinetic energy (0.5/nAtom)·Σ mᵢ² of the first
// 3*nAtom components of mom.
func Kinetic(mom []float32, nAtom int) float64 {
	sum := 0.0
	for _, m := range mom[:3*nAtom] {
		sum += float64(m) * float64(m)
	}
	return 0.5 / float64(nAtom) * sum
}

// Log buffers one frame. pos and mom hold at least 3*nAtom values.
func (l *Logger) Log(ctx context.Context, t float64, pos, mom []float32) error {
	n := 3 * l.nAtom
	if len(pos) < n || len(mom) < n {
		return fmt.Errorf("trajectory: frame needs %d values, got pos=%d mom=%d", n, len(pos), len(mom))
	}

	l.time = append(l.time, t)
	l.kinetic = append(l.kinetic, Kinetic(mom, l.nAtom))
	l.pos = append(l.pos, pos[:n]...)

	if len(l.time) == l.nChunk {
		return l.Flush(ctx)
	}
	return nil
}

// Flush appends every non-empty buffer to its dataset as a single block.
// Buffers are handled independently: a failed append keeps that buffer and
// does not prevent the others from being written.
func (l *Logger) Flush(ctx context.Context) error {
	var errs []error
	wrote := false

	if len(l.time) > 0 {
		if err := l.timeSet.Append(ctx, l.time); err != nil {
			errs = append(errs, fmt.Errorf("flush time: %w", err))
		} else {
			l.time = l.time[:0]
			wrote = true
		}
	}
	if len(l.pos) > 0 {
		if err := l.posSet.Append(ctx, l.pos); err != nil {
			errs = append(errs, fmt.Errorf("flush pos: %w", err))
		} else {
			l.pos = l.pos[:0]
			wrote = true
		}
	}
	if len(l.kinetic) > 0 {
		if err := l.kineticSet.Append(ctx, l.kinetic); err != nil {
			errs = append(errs, fmt.Errorf("flush kinetic: %w", err))
		} else {
			l.kinetic = l.kinetic[:0]
			wrote = true
		}
	}

	if wrote {
		l.flushes++
	}
	return errors.Join(errs...)
}

// Close flushes the remaining frames and releases the dataset handles. A
// flush failure is logged and otherwise ignored.
func (l *Logger) Close(ctx context.Context) {
	if err := l.Flush(ctx); err != nil {
		l.log.Warn("final flush failed, last frames dropped", slog.String("error", err.Error()))
	}
	l.closeSets()
}

func (l *Logger) closeSets() {
	for _, ds := range []*storage.Dataset{l.posSet, l.kineticSet, l.timeSet} {
		if ds != nil {
			_ = ds.Close()
		}
	}
}

// Buffered returns the number of frames held in memory.
func (l *Logger) Buffered() int { return len(l.time) }

// Flushes returns how many flushes have written at least one block.
func (l *Logger) Flushes() int { return l.flushes }
