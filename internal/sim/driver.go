// Package sim runs a molecular-dynamics simulation from a configuration
// file: it loads the system, checks the force evaluation against a stored
// reference, and then advances the system round by round while logging
// frames to the output group.
package sim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/cgmd/internal/config"
	"github.com/san-kum/cgmd/internal/dynamo"
	"github.com/san-kum/cgmd/internal/forcefield"
	"github.com/san-kum/cgmd/internal/integrators"
	"github.com/san-kum/cgmd/internal/metrics"
	"github.com/san-kum/cgmd/internal/regression"
	"github.com/san-kum/cgmd/internal/storage"
	"github.com/san-kum/cgmd/internal/thermostat"
	"github.com/san-kum/cgmd/internal/trajectory"
)

type Driver struct {
	out       io.Writer
	registry  *forcefield.Registry
	timers    *metrics.Timers
	observers []Observer
	log       *slog.Logger
}

// New returns a driver that writes its progress report to out.
func New(out io.Writer) *Driver {
	return &Driver{
		out:      out,
		registry: forcefield.NewRegistry(),
		timers:   metrics.NewTimers(),
		log:      slog.Default().With(slog.String("component", "sim")),
	}
}

func (d *Driver) AddObserver(o Observer)         { d.observers = append(d.observers, o) }
func (d *Driver) Registry() *forcefield.Registry { return d.registry }
func (d *Driver) Timers() *metrics.Timers        { return d.timers }

// Run executes one simulation described by p. Every failure is returned as
// an error; the caller decides how to report it.
func (d *Driver) Run(ctx context.Context, p *config.Params, invocation string) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	scheme, err := integrators.ParseScheme(p.Integrator)
	if err != nil {
		return nil, err
	}
	sched, err := NewSchedule(p.TimeStep, p.Duration, p.FrameInterval, p.ThermostatInterval)
	if err != nil {
		return nil, err
	}

	st, err := storage.Open(ctx, p.Config)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	d.log.Debug("opened configuration", slog.String("path", p.Config))

	engine, err := d.loadEngine(ctx, st)
	if err != nil {
		return nil, err
	}
	nAtom, nSystem := engine.NAtom(), engine.NSystem()
	fmt.Fprintf(d.out, "\nn_atom %d\nn_system %d\n", nAtom, nSystem)

	res := &Result{
		RunID:    uuid.NewString(),
		NAtom:    nAtom,
		Schedule: sched,
		Metrics:  make(map[string]float64),
	}

	engine.Compute()
	check, err := regression.Check(ctx, st, engine, p.GenerateExpectedForce, p.ForceTolerance, d.out)
	if err != nil {
		return nil, err
	}
	res.ForceRMS, res.ForceVerified = check.RMS, check.Verified

	mom := make([]float32, nAtom*nSystem*3)
	th := thermostat.New(p.Seed, p.ThermostatTimescale, p.Temperature, thermostat.ThermalizeDeltaT)
	th.Apply(mom, nAtom)
	th.SetDeltaT(sched.ThermostatDeltaT())

	res.ReplacedPrev, err = d.prepareOutput(ctx, st, p.OverwriteOutput)
	if err != nil {
		return nil, err
	}

	meta := storage.RunMetadata{
		ID:          res.RunID,
		Output:      config.DefaultOutputGroup,
		Invocation:  invocation,
		Started:     time.Now(),
		NRound:      sched.NRound,
		Seed:        p.Seed,
		Dt:          p.TimeStep,
		Duration:    p.Duration,
		Integrator:  scheme.String(),
		Temperature: p.Temperature,
	}
	if err := st.RecordRun(ctx, meta); err != nil {
		return nil, err
	}

	logger, err := trajectory.New(ctx, st, config.DefaultOutputGroup, nAtom, p.ChunkSize)
	if err != nil {
		return nil, err
	}
	defer logger.Close(ctx)

	width := 0
	if sched.NRound > 1 {
		width = int(math.Ceil(math.Log10(float64(sched.NRound))))
	}
	dt := float32(p.TimeStep)

	start := time.Now()
	for nr := uint64(0); nr < sched.NRound; nr++ {
		if sched.IsFrame(nr) {
			forcefield.Recenter(engine.Coords())

			stop := d.timers.Start("state_logger")
			err := logger.Log(ctx, sched.Time(nr), engine.Positions(), mom)
			stop()
			if err != nil {
				return nil, err
			}

			hbonds := engine.HBondCount()
			fmt.Fprintf(d.out, "%*d / %*d rounds %5.1f hbonds\n", width, nr, width, sched.NRound, hbonds)
			d.notify(Frame{
				Index:   res.Frames,
				Round:   nr,
				Time:    sched.Time(nr),
				Kinetic: trajectory.Kinetic(mom, nAtom),
				HBonds:  hbonds,
			})
			res.Frames++
		}

		if sched.IsThermostat(nr) {
			stop := d.timers.Start("thermostat")
			th.Apply(mom, nAtom)
			stop()
		}

		stop := d.timers.Start("integration")
		engine.IntegrationStep(mom, dt, scheme)
		stop()
	}
	if err := logger.Flush(ctx); err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)

	perStep := 0.0
	if sched.NRound > 0 {
		perStep = res.Elapsed.Seconds() * 1e6 / float64(nSystem) / float64(sched.NRound) / forcefield.SubSteps
	}
	fmt.Fprintf(d.out, "\n\nfinished in %.1f seconds (%.2f us/systems/step)\n", res.Elapsed.Seconds(), perStep)

	if err := d.summarize(ctx, st, sched, res); err != nil {
		return nil, err
	}
	res.FinalHBonds = engine.HBondCount()
	res.Potential = engine.Potential()

	fmt.Fprintln(d.out)
	d.timers.Report(d.out, forcefield.SubSteps*sched.NRound+1)
	fmt.Fprintln(d.out)

	res.Metrics["potential"] = res.Potential
	res.Metrics["frames"] = float64(res.Frames)
	res.Metrics["elapsed_seconds"] = res.Elapsed.Seconds()
	if res.ForceVerified {
		res.Metrics["force_rms"] = res.ForceRMS
	}
	meta.Finished = time.Now()
	meta.Metrics = res.Metrics
	if err := st.RecordRun(ctx, meta); err != nil {
		return nil, err
	}
	return res, nil
}

// loadEngine builds the force engine and copies the initial positions into
// it. Only single-system configurations are accepted.
func (d *Driver) loadEngine(ctx context.Context, st *storage.Store) (*forcefield.DerivEngine, error) {
	shape, err := st.Shape(ctx, forcefield.PosPath)
	if err != nil {
		return nil, dynamo.Wrap(dynamo.ErrConfigShape, err, "unable to read initial position")
	}
	if len(shape) != 3 || shape[1] != 3 {
		return nil, dynamo.Errorf(dynamo.ErrConfigShape, "invalid dimensions for initial position")
	}
	nAtom, nSystem := shape[0], shape[2]
	if nSystem != 1 {
		return nil, dynamo.Errorf(dynamo.ErrConfigShape, "multiple systems not currently supported")
	}

	engine, err := d.registry.Load(ctx, st, forcefield.ForceGroup, nAtom, nSystem)
	if err != nil {
		return nil, err
	}

	pos := engine.Positions()
	err = st.Traverse3(ctx, forcefield.PosPath, func(i, j, k int, x float32) {
		pos[i*3*nSystem+j*nSystem+k] = x
	})
	if err != nil {
		return nil, err
	}
	if !dynamo.IsValid(pos) {
		return nil, dynamo.Errorf(dynamo.ErrConfigShape, "initial position contains non-finite values")
	}
	return engine, nil
}

// prepareOutput makes sure an empty output group exists. It reports whether
// a previous output group was removed.
func (d *Driver) prepareOutput(ctx context.Context, st *storage.Store, overwrite bool) (bool, error) {
	group := config.DefaultOutputGroup
	exists, err := st.Exists(ctx, group)
	if err != nil {
		return false, err
	}
	if exists {
		if !overwrite {
			return false, dynamo.Errorf(dynamo.ErrOutputCollision,
				"%s already exists and --overwrite-output was not specified", group)
		}
		// the file does not shrink until it is vacuumed
		if err := st.Delete(ctx, group); err != nil {
			return false, err
		}
		d.log.Info("removed previous output", slog.String("group", group))
	}
	return exists, st.CreateGroup(ctx, group)
}

// summarize reads the logged kinetic energies back and reports the mean
// over the second half of the run.
func (d *Driver) summarize(ctx context.Context, st *storage.Store, sched Schedule, res *Result) error {
	kinetic, _, err := st.ReadFloat64(ctx, config.DefaultOutputGroup+"/kinetic")
	if err != nil {
		return err
	}

	avg := metrics.NewSecondHalfKinetic(sched.NRound, sched.FrameInterval)
	for i, k := range kinetic {
		avg.Observe(i, k)
	}
	res.AvgKinetic, res.HasKinetic = avg.Value()
	if !res.HasKinetic {
		fmt.Fprintln(d.out, "avg kinetic energy unavailable (no frames in the second half)")
		return nil
	}
	res.Metrics[avg.Name()] = res.AvgKinetic
	fmt.Fprintf(d.out, "avg kinetic energy %.3f\n", res.AvgKinetic)
	return nil
}

func (d *Driver) notify(f Frame) {
	for _, o := range d.observers {
		o.OnFrame(f)
	}
}
