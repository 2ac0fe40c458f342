package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTimeStep            = 0.01
	DefaultSeed                = 42
	DefaultTemperature         = 1.0
	DefaultThermostatTimescale = 5.0
	DefaultThermostatInterval  = -1.0
	DefaultChunkSize           = 100
	DefaultForceTolerance      = 1e-3
	DefaultIntegrator          = "verlet"
	DefaultOutputGroup         = "/output"
)

// Params are the run parameters. Flags given on the command line override
// values loaded from a parameter file.
type Params struct {
	Config                string  `yaml:"config"`
	TimeStep              float64 `yaml:"time_step"`
	Duration              float64 `yaml:"duration"`
	Seed                  int64   `yaml:"seed"`
	OverwriteOutput       bool    `yaml:"overwrite_output"`
	Temperature           float64 `yaml:"temperature"`
	FrameInterval         float64 `yaml:"frame_interval"`
	ThermostatInterval    float64 `yaml:"thermostat_interval"`
	ThermostatTimescale   float64 `yaml:"thermostat_timescale"`
	GenerateExpectedForce bool    `yaml:"generate_expected_force"`
	ChunkSize             int     `yaml:"chunk_size"`
	ForceTolerance        float64 `yaml:"force_tolerance"`
	Integrator            string  `yaml:"integrator"`
}

func DefaultParams() *Params {
	return &Params{
		TimeStep:            DefaultTimeStep,
		Seed:                DefaultSeed,
		Temperature:         DefaultTemperature,
		ThermostatInterval:  DefaultThermostatInterval,
		ThermostatTimescale: DefaultThermostatTimescale,
		ChunkSize:           DefaultChunkSize,
		ForceTolerance:      DefaultForceTolerance,
		Integrator:          DefaultIntegrator,
	}
}

func Load(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := DefaultParams()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, err
	}
	return p, nil
}

func Save(path string, p *Params) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the parameters that must hold before a run starts. The
// thermostat interval is not checked: a non-positive value means one
// application per round.
func (p *Params) Validate() error {
	if p.Config == "" {
		return fmt.Errorf("config path is required")
	}
	if p.TimeStep <= 0 {
		return fmt.Errorf("time step must be positive, got %g", p.TimeStep)
	}
	if p.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %g", p.Duration)
	}
	if p.FrameInterval <= 0 {
		return fmt.Errorf("frame interval must be positive, got %g", p.FrameInterval)
	}
	if p.ThermostatTimescale <= 0 {
		return fmt.Errorf("thermostat timescale must be positive, got %g", p.ThermostatTimescale)
	}
	if p.Temperature < 0 {
		return fmt.Errorf("temperature must not be negative, got %g", p.Temperature)
	}
	if p.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be at least 1, got %d", p.ChunkSize)
	}
	if p.ForceTolerance <= 0 {
		return fmt.Errorf("force tolerance must be positive, got %g", p.ForceTolerance)
	}
	return nil
}
