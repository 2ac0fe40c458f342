package sim

import (
	"fmt"
	"math"

	"github.com/san-kum/cgmd/internal/forcefield"
)

// Schedule converts physical time intervals into round counts. One round
// is forcefield.SubSteps integration sub-steps of Dt.
type Schedule struct {
	Dt                 float64
	NRound             uint64
	FrameInterval      uint64
	ThermostatInterval uint64
}

// NewSchedule derives the round counts for a run of duration. Intervals
// round to the nearest whole number of rounds but never below one, so a
// non-positive interval means every round.
func NewSchedule(dt, duration, frameInterval, thermostatInterval float64) (Schedule, error) {
	if !(dt > 0) {
		return Schedule{}, fmt.Errorf("time step must be positive, got %g", dt)
	}
	if duration < 0 || math.IsNaN(duration) {
		return Schedule{}, fmt.Errorf("duration must not be negative, got %g", duration)
	}

	roundTime := forcefield.SubSteps * dt
	return Schedule{
		Dt:                 dt,
		NRound:             uint64(math.Round(duration / roundTime)),
		FrameInterval:      intervalRounds(frameInterval, roundTime),
		ThermostatInterval: intervalRounds(thermostatInterval, roundTime),
	}, nil
}

func intervalRounds(interval, roundTime float64) uint64 {
	n := math.Round(interval / roundTime)
	if !(n >= 1) {
		return 1
	}
	return uint64(n)
}

// RoundTime is the physical time covered by one round.
func (s Schedule) RoundTime() float64 { return forcefield.SubSteps * s.Dt }

// Time is the simulation time at the start of round nr.
func (s Schedule) Time(nr uint64) float64 { return float64(nr) * s.RoundTime() }

func (s Schedule) IsFrame(nr uint64) bool {
	return s.FrameInterval == 0 || nr%s.FrameInterval == 0
}

func (s Schedule) IsThermostat(nr uint64) bool {
	return s.ThermostatInterval == 0 || nr%s.ThermostatInterval == 0
}

// Frames is the number of frames a complete run logs.
func (s Schedule) Frames() int {
	if s.NRound == 0 {
		return 0
	}
	if s.FrameInterval == 0 {
		return int(s.NRound)
	}
	return int((s.NRound-1)/s.FrameInterval + 1)
}

// ThermostatDeltaT is the physical time between thermostat applications.
func (s Schedule) ThermostatDeltaT() float64 {
	return float64(s.ThermostatInterval) * s.RoundTime()
}
