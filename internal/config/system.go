package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// System describes a toy helical chain used to build a configuration file.
type System struct {
	NAtom           int     `yaml:"n_atom"`
	NSystem         int     `yaml:"n_system"`
	Seed            int64   `yaml:"seed"`
	Radius          float64 `yaml:"radius"`
	Rise            float64 `yaml:"rise"`
	TurnDegrees     float64 `yaml:"turn_degrees"`
	Jitter          float64 `yaml:"jitter"`
	BondSpring      float64 `yaml:"bond_spring"`
	AngleSpring     float64 `yaml:"angle_spring"`
	RepulsionRadius float64 `yaml:"repulsion_radius"`
	RepulsionScale  float64 `yaml:"repulsion_scale"`
	HBondCutoff     float64 `yaml:"hbond_cutoff"`
}

func DefaultSystem() *System {
	return &System{
		NAtom:           10,
		NSystem:         1,
		Seed:            DefaultSeed,
		Radius:          2.3,
		Rise:            1.5,
		TurnDegrees:     100,
		Jitter:          0.05,
		BondSpring:      50,
		AngleSpring:     10,
		RepulsionRadius: 3.0,
		RepulsionScale:  1.0,
		HBondCutoff:     6.5,
	}
}

func LoadSystem(path string) (*System, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := DefaultSystem()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}
