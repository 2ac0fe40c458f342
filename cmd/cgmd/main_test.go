package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/san-kum/cgmd/internal/config"
	"github.com/san-kum/cgmd/internal/dynamo"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInitRunAndInspect(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "system.db")

	if _, err := execute(t, "init", "--out", db, "--atoms", "8"); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	out, err := execute(t, "--config", db, "--duration", "0.6", "--frame-interval", "0.06")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	for _, want := range []string{"invocation:", "n_atom 8", "finished in", "avg kinetic energy", "elapsed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "info", "--config", db)
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	if !strings.Contains(out, "/output/kinetic") || !strings.Contains(out, "finished") {
		t.Errorf("unexpected info output:\n%s", out)
	}

	out, err = execute(t, "export-json", "--config", db)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	var traj struct {
		Times []float64 `json:"times"`
	}
	if err := json.Unmarshal([]byte(out), &traj); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(traj.Times) != 10 {
		t.Errorf("expected 10 frames, got %d", len(traj.Times))
	}

	csvPath := filepath.Join(dir, "traj.csv")
	if _, err := execute(t, "export-csv", "--config", db, "--out", csvPath); err != nil {
		t.Fatalf("csv export failed: %v", err)
	}
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 11 {
		t.Errorf("expected 11 csv lines, got %d", lines)
	}

	out, err = execute(t, "plot", "--config", db, "--width", "30", "--height", "5")
	if err != nil || !strings.Contains(out, "frames: 10") {
		t.Errorf("plot failed: %v\n%s", err, out)
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "system.db")
	if _, err := execute(t, "init", "--out", db); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		kind error
	}{
		{"missing file", []string{"--config", filepath.Join(dir, "nope.db"), "--duration", "1", "--frame-interval", "0.1"}, dynamo.ErrConfigOpen},
		{"missing duration", []string{"--config", db, "--frame-interval", "0.1"}, nil},
		{"unknown flag", []string{"--config", db, "--bogus"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.kind != nil && !errors.Is(err, tt.kind) {
				t.Errorf("expected %v, got %v", tt.kind, err)
			}
		})
	}

	args := []string{"--config", db, "--duration", "0.3", "--frame-interval", "0.1", "--summary=false"}
	if _, err := execute(t, args...); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, args...)
	if !errors.Is(err, dynamo.ErrOutputCollision) {
		t.Errorf("expected ErrOutputCollision, got %v", err)
	}
	if _, err := execute(t, append(args, "--overwrite-output")...); err != nil {
		t.Errorf("overwrite failed: %v", err)
	}
}

func TestParamsFile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "system.db")
	if _, err := execute(t, "init", "--out", db); err != nil {
		t.Fatal(err)
	}

	p := config.DefaultParams()
	p.Config = db
	p.Duration = 0.3
	p.FrameInterval = 0.03
	p.Seed = 7
	paramsPath := filepath.Join(dir, "run.yaml")
	if err := config.Save(paramsPath, p); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--params", paramsPath, "--duration", "0.6"})
	if err := cmd.ParseFlags([]string{"--params", paramsPath, "--duration", "0.6"}); err != nil {
		t.Fatal(err)
	}
	got, err := loadParams(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if got.Duration != 0.6 {
		t.Errorf("flag should override file: duration %g", got.Duration)
	}
	if got.Seed != 7 || got.FrameInterval != 0.03 || got.Config != db {
		t.Errorf("file values lost: %+v", got)
	}
}
