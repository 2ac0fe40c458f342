package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/san-kum/cgmd/internal/dynamo"
)

type DType string

const (
	Float32 DType = "f32"
	Float64 DType = "f64"
	Int32   DType = "i32"
)

// Dataset is an open handle on a growable array. Handles are cheap; Close
// only invalidates the handle so later appends fail loudly.
type Dataset struct {
	s       *Store
	path    string
	dtype   DType
	dims    []int
	chunk   []int
	axis    int
	rowSize int
	rows    int
	nextSeq int
	closed  bool
}

type meta struct {
	dtype DType
	dims  []int
	chunk []int
	axis  int
}

// CreateArray creates an empty dataset at p, growable along axis. dims gives
// the full shape; its entry at axis is ignored and treated as zero. chunk
// is the block shape recorded for the dataset.
func (s *Store) CreateArray(ctx context.Context, p string, dtype DType, dims, chunk []int, axis int) (*Dataset, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	p, err = cleanPath(p)
	if err != nil {
		return nil, err
	}
	if axis < 0 || axis >= len(dims) {
		return nil, fmt.Errorf("create %s: axis %d out of range for %d dims", p, axis, len(dims))
	}
	if len(chunk) != len(dims) {
		return nil, fmt.Errorf("create %s: chunk rank %d does not match rank %d", p, len(chunk), len(dims))
	}
	switch dtype {
	case Float32, Float64, Int32:
	default:
		return nil, fmt.Errorf("create %s: unsupported dtype %q", p, dtype)
	}

	ok, err := s.Exists(ctx, p)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, fmt.Errorf("create %s: already exists", p)
	}

	if parents := ancestors(p, false); len(parents) > 0 {
		if err := ensureGroup(ctx, db, parents[len(parents)-1]); err != nil {
			return nil, err
		}
	}

	d := append([]int(nil), dims...)
	d[axis] = 0
	dimsJSON, _ := json.Marshal(d)
	chunkJSON, _ := json.Marshal(chunk)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO nodes (path, kind) VALUES (?, ?)`, p, KindDataset); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO datasets (path, dtype, dims, chunk, axis)
		VALUES (?, ?, ?, ?, ?)
	`, p, string(dtype), string(dimsJSON), string(chunkJSON), axis); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &Dataset{
		s:       s,
		path:    p,
		dtype:   dtype,
		dims:    d,
		chunk:   append([]int(nil), chunk...),
		axis:    axis,
		rowSize: rowSize(d, axis),
	}, nil
}

// OpenArray returns a handle for appending to an existing dataset. Its row
// count covers every block already stored.
func (s *Store) OpenArray(ctx context.Context, p string) (*Dataset, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	p, err = cleanPath(p)
	if err != nil {
		return nil, err
	}
	m, err := loadMeta(ctx, db, p)
	if err != nil {
		return nil, err
	}

	var rows, maxSeq sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT SUM(rows), MAX(seq) FROM chunks WHERE path = ?`, p).Scan(&rows, &maxSeq); err != nil {
		return nil, err
	}
	next := 0
	if maxSeq.Valid {
		next = int(maxSeq.Int64) + 1
	}

	return &Dataset{
		s:       s,
		path:    p,
		dtype:   m.dtype,
		dims:    m.dims,
		chunk:   m.chunk,
		axis:    m.axis,
		rowSize: rowSize(m.dims, m.axis),
		rows:    int(rows.Int64),
		nextSeq: next,
	}, nil
}

func (d *Dataset) Path() string  { return d.path }
func (d *Dataset) Rows() int     { return d.rows }
func (d *Dataset) Chunk() []int  { return append([]int(nil), d.chunk...) }
func (d *Dataset) DType() DType  { return d.dtype }
func (d *Dataset) Close() error  { d.closed = true; return nil }
func (d *Dataset) GrowAxis() int { return d.axis }

// Append writes data as one block along the growable axis. data must be a
// []float32, []float64 or []int32 matching the dataset type and hold a whole
// number of rows.
func (d *Dataset) Append(ctx context.Context, data any) error {
	if d.closed {
		return fmt.Errorf("append %s: dataset handle closed", d.path)
	}
	db, err := d.s.getDB()
	if err != nil {
		return err
	}

	raw, n, err := encodeValues(d.dtype, data)
	if err != nil {
		return fmt.Errorf("append %s: %w", d.path, err)
	}
	if n == 0 {
		return nil
	}
	if d.rowSize == 0 || n%d.rowSize != 0 {
		return fmt.Errorf("append %s: %d values is not a whole number of rows of %d", d.path, n, d.rowSize)
	}
	rows := n / d.rowSize

	payload := d.s.enc.EncodeAll(raw, nil)
	if _, err := db.ExecContext(ctx, `
		INSERT INTO chunks (path, seq, rows, payload) VALUES (?, ?, ?, ?)
	`, d.path, d.nextSeq, rows, payload); err != nil {
		return fmt.Errorf("append %s: %w", d.path, err)
	}

	d.nextSeq++
	d.rows += rows
	return nil
}

func rowSize(dims []int, axis int) int {
	n := 1
	for i, v := range dims {
		if i != axis {
			n *= v
		}
	}
	return n
}

func loadMeta(ctx context.Context, db *sql.DB, p string) (meta, error) {
	var dtype, dimsJSON, chunkJSON string
	var axis int
	err := db.QueryRowContext(ctx, `SELECT dtype, dims, chunk, axis FROM datasets WHERE path = ?`, p).
		Scan(&dtype, &dimsJSON, &chunkJSON, &axis)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return meta{}, fmt.Errorf("dataset %s does not exist", p)
		}
		return meta{}, err
	}

	m := meta{dtype: DType(dtype), axis: axis}
	if err := json.Unmarshal([]byte(dimsJSON), &m.dims); err != nil {
		return meta{}, fmt.Errorf("decode dims of %s: %w", p, err)
	}
	if err := json.Unmarshal([]byte(chunkJSON), &m.chunk); err != nil {
		return meta{}, fmt.Errorf("decode chunk of %s: %w", p, err)
	}
	return m, nil
}

type block struct {
	rows int
	raw  []byte
}

func (s *Store) readBlocks(ctx context.Context, p string) (meta, []block, error) {
	db, err := s.getDB()
	if err != nil {
		return meta{}, nil, err
	}
	p, err = cleanPath(p)
	if err != nil {
		return meta{}, nil, err
	}
	m, err := loadMeta(ctx, db, p)
	if err != nil {
		return meta{}, nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT rows, payload FROM chunks WHERE path = ? ORDER BY seq`, p)
	if err != nil {
		return meta{}, nil, err
	}
	defer rows.Close()

	blocks := make([]block, 0)
	total := 0
	for rows.Next() {
		var b block
		var payload []byte
		if err := rows.Scan(&b.rows, &payload); err != nil {
			return meta{}, nil, err
		}
		b.raw, err = s.dec.DecodeAll(payload, nil)
		if err != nil {
			return meta{}, nil, fmt.Errorf("decode chunk of %s: %w", p, err)
		}
		total += b.rows
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return meta{}, nil, err
	}

	m.dims[m.axis] = total
	return m, blocks, nil
}

// Shape returns the current dimensions of the dataset at p.
func (s *Store) Shape(ctx context.Context, p string) ([]int, error) {
	ds, err := s.OpenArray(ctx, p)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	dims := append([]int(nil), ds.dims...)
	dims[ds.GrowAxis()] = ds.Rows()
	return dims, nil
}

// CheckSize fails with a configuration shape error unless the dataset at p
// has exactly the given dimensions.
func (s *Store) CheckSize(ctx context.Context, p string, dims ...int) error {
	shape, err := s.Shape(ctx, p)
	if err != nil {
		return dynamo.Wrap(dynamo.ErrConfigShape, err, "missing dataset "+p)
	}
	if len(shape) != len(dims) {
		return dynamo.Errorf(dynamo.ErrConfigShape, "%s has rank %d, expected %d", p, len(shape), len(dims))
	}
	for i := range dims {
		if shape[i] != dims[i] {
			return dynamo.Errorf(dynamo.ErrConfigShape, "%s has shape %v, expected %v", p, shape, dims)
		}
	}
	return nil
}

// ReadFloat32 reads the whole dataset at p converted to float32.
func (s *Store) ReadFloat32(ctx context.Context, p string) ([]float32, []int, error) {
	m, blocks, err := s.readBlocks(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	out, err := assemble(m, blocks, func(raw []byte) ([]float32, error) { return decodeAs[float32](m.dtype, raw) })
	return out, m.dims, err
}

// ReadFloat64 reads the whole dataset at p converted to float64.
func (s *Store) ReadFloat64(ctx context.Context, p string) ([]float64, []int, error) {
	m, blocks, err := s.readBlocks(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	out, err := assemble(m, blocks, func(raw []byte) ([]float64, error) { return decodeAs[float64](m.dtype, raw) })
	return out, m.dims, err
}

// ReadInt32 reads the whole integer dataset at p.
func (s *Store) ReadInt32(ctx context.Context, p string) ([]int32, []int, error) {
	m, blocks, err := s.readBlocks(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	if m.dtype != Int32 {
		return nil, nil, fmt.Errorf("read %s: dtype %s is not %s", p, m.dtype, Int32)
	}
	out, err := assemble(m, blocks, func(raw []byte) ([]int32, error) { return decodeInt32(raw), nil })
	return out, m.dims, err
}

// Traverse3 calls fn for every element of the rank-3 dataset at p in
// row-major order.
func (s *Store) Traverse3(ctx context.Context, p string, fn func(i, j, k int, x float32)) error {
	data, dims, err := s.ReadFloat32(ctx, p)
	if err != nil {
		return err
	}
	if len(dims) != 3 {
		return dynamo.Errorf(dynamo.ErrConfigShape, "%s has rank %d, expected 3", p, len(dims))
	}
	for i := 0; i < dims[0]; i++ {
		for j := 0; j < dims[1]; j++ {
			for k := 0; k < dims[2]; k++ {
				fn(i, j, k, data[(i*dims[1]+j)*dims[2]+k])
			}
		}
	}
	return nil
}

// WriteFloat32 creates a dataset at p holding data with shape dims.
func (s *Store) WriteFloat32(ctx context.Context, p string, dims []int, data []float32) error {
	return s.write(ctx, p, Float32, dims, data)
}

func (s *Store) WriteFloat64(ctx context.Context, p string, dims []int, data []float64) error {
	return s.write(ctx, p, Float64, dims, data)
}

func (s *Store) WriteInt32(ctx context.Context, p string, dims []int, data []int32) error {
	return s.write(ctx, p, Int32, dims, data)
}

func (s *Store) write(ctx context.Context, p string, dtype DType, dims []int, data any) error {
	ds, err := s.CreateArray(ctx, p, dtype, dims, dims, 0)
	if err != nil {
		return err
	}
	defer ds.Close()
	return ds.Append(ctx, data)
}

// assemble places each block at its offset along the growable axis.
func assemble[T any](m meta, blocks []block, decode func([]byte) ([]T, error)) ([]T, error) {
	outer, inner := 1, 1
	for i, v := range m.dims {
		switch {
		case i < m.axis:
			outer *= v
		case i > m.axis:
			inner *= v
		}
	}
	total := m.dims[m.axis]
	out := make([]T, outer*total*inner)

	offset := 0
	for _, b := range blocks {
		vals, err := decode(b.raw)
		if err != nil {
			return nil, err
		}
		if len(vals) != outer*b.rows*inner {
			return nil, fmt.Errorf("chunk holds %d values, expected %d", len(vals), outer*b.rows*inner)
		}
		span := b.rows * inner
		for o := 0; o < outer; o++ {
			copy(out[o*total*inner+offset*inner:], vals[o*span:(o+1)*span])
		}
		offset += b.rows
	}
	return out, nil
}
