package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type RunMetadata struct {
	ID          string             `json:"id"`
	Output      string             `json:"output"`
	Invocation  string             `json:"invocation"`
	Started     time.Time          `json:"started"`
	Finished    time.Time          `json:"finished"`
	NRound      uint64             `json:"n_round"`
	Seed        int64              `json:"seed"`
	Dt          float64            `json:"dt"`
	Duration    float64            `json:"duration"`
	Integrator  string             `json:"integrator"`
	Temperature float64            `json:"temperature"`
	Metrics     map[string]float64 `json:"metrics"`
}

// RecordRun stores meta, replacing any earlier record with the same ID.
func (s *Store) RecordRun(ctx context.Context, meta RunMetadata) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, output, invocation, started, finished, n_round, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished = excluded.finished,
			payload = excluded.payload
	`, meta.ID, meta.Output, meta.Invocation,
		unixNano(meta.Started), unixNano(meta.Finished),
		int64(meta.NRound), payload)
	return err
}

// Runs returns all recorded runs, oldest first.
func (s *Store) Runs(ctx context.Context) ([]RunMetadata, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM runs ORDER BY started, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]RunMetadata, 0)
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var meta RunMetadata
		if err := json.Unmarshal(payload, &meta); err != nil {
			return nil, fmt.Errorf("decode run %s: %w", id, err)
		}
		runs = append(runs, meta)
	}
	return runs, rows.Err()
}

// unixNano maps the zero time to 0 so unfinished runs sort first.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

type DatasetStats struct {
	Path   string
	DType  DType
	Shape  []int
	Chunks int
	Bytes  int64
}

// Stats reports the shape and stored size of every dataset.
func (s *Store) Stats(ctx context.Context) ([]DatasetStats, error) {
	nodes, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	stats := make([]DatasetStats, 0)
	for _, n := range nodes {
		if n.Kind != KindDataset {
			continue
		}
		m, err := loadMeta(ctx, db, n.Path)
		if err != nil {
			return nil, err
		}
		shape, err := s.Shape(ctx, n.Path)
		if err != nil {
			return nil, err
		}
		st := DatasetStats{Path: n.Path, DType: m.dtype, Shape: shape}
		if err := db.QueryRowContext(ctx, `
			SELECT COUNT(*), COALESCE(SUM(length(payload)), 0) FROM chunks WHERE path = ?
		`, n.Path).Scan(&st.Chunks, &st.Bytes); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, nil
}

// FileSize returns the size of the store file on disk.
func (s *Store) FileSize() (int64, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
