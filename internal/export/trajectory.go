// Package export converts a logged trajectory into formats other tools can
// read.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/san-kum/cgmd/internal/storage"
)

// Trajectory is the complete content of an output group.
type Trajectory struct {
	NAtom   int          `json:"n_atom"`
	Times   []float64    `json:"times"`
	Kinetic []float64    `json:"kinetic"`
	Pos     [][]float32  `json:"pos"`
	Runs    []RunSummary `json:"runs,omitempty"`
}

type RunSummary struct {
	ID      string             `json:"id"`
	Started string             `json:"started"`
	NRound  uint64             `json:"n_round"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Load reads the time, kinetic and pos datasets below group.
func Load(ctx context.Context, st *storage.Store, group string) (*Trajectory, error) {
	times, _, err := st.ReadFloat64(ctx, group+"/time")
	if err != nil {
		return nil, err
	}
	kinetic, _, err := st.ReadFloat64(ctx, group+"/kinetic")
	if err != nil {
		return nil, err
	}
	pos, dims, err := st.ReadFloat32(ctx, group+"/pos")
	if err != nil {
		return nil, err
	}
	if len(dims) != 3 || dims[2] != 3 {
		return nil, fmt.Errorf("%s/pos has shape %v, expected [frames n_atom 3]", group, dims)
	}
	if len(times) != dims[0] || len(kinetic) != dims[0] {
		return nil, fmt.Errorf("%s is inconsistent: %d times, %d kinetic, %d frames",
			group, len(times), len(kinetic), dims[0])
	}

	t := &Trajectory{
		NAtom:   dims[1],
		Times:   times,
		Kinetic: kinetic,
		Pos:     make([][]float32, dims[0]),
	}
	frame := dims[1] * 3
	for i := range t.Pos {
		t.Pos[i] = pos[i*frame : (i+1)*frame]
	}

	runs, err := st.Runs(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range runs {
		t.Runs = append(t.Runs, RunSummary{
			ID:      r.ID,
			Started: r.Started.Format("2006-01-02 15:04:05"),
			NRound:  r.NRound,
			Metrics: r.Metrics,
		})
	}
	return t, nil
}

func (t *Trajectory) Frames() int { return len(t.Times) }

func WriteJSON(w io.Writer, t *Trajectory) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(t)
}

// WriteCSV writes one row per frame: time, kinetic energy and the
// coordinates of every atom.
func WriteCSV(w io.Writer, t *Trajectory) error {
	cw := csv.NewWriter(w)

	header := []string{"time", "kinetic"}
	for a := 0; a < t.NAtom; a++ {
		header = append(header, fmt.Sprintf("x%d", a), fmt.Sprintf("y%d", a), fmt.Sprintf("z%d", a))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i := range t.Times {
		row := make([]string, 0, len(header))
		row = append(row,
			strconv.FormatFloat(t.Times[i], 'f', 6, 64),
			strconv.FormatFloat(t.Kinetic[i], 'f', 6, 64))
		for _, v := range t.Pos[i] {
			row = append(row, strconv.FormatFloat(float64(v), 'f', 6, 32))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
