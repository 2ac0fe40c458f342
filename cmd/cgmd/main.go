package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/san-kum/cgmd/internal/config"
	"github.com/san-kum/cgmd/internal/dynamo"
	"github.com/san-kum/cgmd/internal/sim"
	"github.com/san-kum/cgmd/internal/storage"
	"github.com/san-kum/cgmd/internal/viz"
)

var (
	paramsFile            string
	configPath            string
	timeStep              float64
	duration              float64
	seed                  int64
	overwriteOutput       bool
	temperature           float64
	frameInterval         float64
	thermostatInterval    float64
	thermostatTimescale   float64
	generateExpectedForce bool
	chunkSize             int
	forceTolerance        float64
	integrator            string
	verbose               bool
	summary               bool
)

// main runs the root command and maps any error to a single diagnostic on
// stderr and exit status 1.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Debug("run failed", slog.String("kind", dynamo.KindOf(err)))
		fmt.Fprintf(os.Stderr, "\n\nERROR: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cgmd",
		Short: "coarse-grained protein molecular dynamics",
		Long: `cgmd advances a coarse-grained protein model stored in a configuration
file and appends the trajectory to the /output group of the same file.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cmd.ErrOrStderr())
		},
		RunE: runSimulation,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log diagnostics to stderr")

	f := rootCmd.Flags()
	f.StringVar(&paramsFile, "params", "", "yaml file with run parameters; flags override it")
	f.StringVar(&configPath, "config", "", "path to the configuration file (required)")
	f.Float64Var(&timeStep, "time-step", config.DefaultTimeStep, "time step for integration")
	f.Float64Var(&duration, "duration", 0, "duration of simulation (required)")
	f.Int64Var(&seed, "seed", config.DefaultSeed, "random seed")
	f.BoolVar(&overwriteOutput, "overwrite-output", false,
		"replace an existing /output group; the file keeps its size until it is vacuumed (sqlite3 file.db VACUUM)")
	f.Float64Var(&temperature, "temperature", config.DefaultTemperature, "thermostat temperature")
	f.Float64Var(&frameInterval, "frame-interval", 0, "simulation time between frames (required)")
	f.Float64Var(&thermostatInterval, "thermostat-interval", config.DefaultThermostatInterval,
		"simulation time between thermostat applications; non-positive means every round")
	f.Float64Var(&thermostatTimescale, "thermostat-timescale", config.DefaultThermostatTimescale,
		"timescale of the thermostat")
	f.BoolVar(&generateExpectedForce, "generate-expected-force", false,
		"record the initial forces in /testing/expected_deriv for later runs to check")
	f.IntVar(&chunkSize, "chunk-size", config.DefaultChunkSize, "frames buffered per block write")
	f.Float64Var(&forceTolerance, "force-tolerance", config.DefaultForceTolerance,
		"maximum RMS force deviation from the recorded reference")
	f.StringVar(&integrator, "integrator", config.DefaultIntegrator, "integration scheme (verlet, position-verlet)")
	f.BoolVar(&summary, "summary", true, "print a run summary after the timing report")

	rootCmd.AddCommand(newInitCmd(), newInfoCmd(), newPlotCmd(),
		newExportJSONCmd(), newExportCSVCmd(), newExportSVGCmd())
	return rootCmd
}

func setupLogging(w io.Writer) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// loadParams starts from the parameter file, if any, and applies every
// flag given on the command line.
func loadParams(cmd *cobra.Command) (*config.Params, error) {
	p := config.DefaultParams()
	if paramsFile != "" {
		var err error
		p, err = config.Load(paramsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load params: %w", err)
		}
	}

	changed := cmd.Flags().Changed
	if paramsFile == "" || changed("config") {
		p.Config = configPath
	}
	if paramsFile == "" || changed("time-step") {
		p.TimeStep = timeStep
	}
	if paramsFile == "" || changed("duration") {
		p.Duration = duration
	}
	if paramsFile == "" || changed("seed") {
		p.Seed = seed
	}
	if paramsFile == "" || changed("overwrite-output") {
		p.OverwriteOutput = overwriteOutput
	}
	if paramsFile == "" || changed("temperature") {
		p.Temperature = temperature
	}
	if paramsFile == "" || changed("frame-interval") {
		p.FrameInterval = frameInterval
	}
	if paramsFile == "" || changed("thermostat-interval") {
		p.ThermostatInterval = thermostatInterval
	}
	if paramsFile == "" || changed("thermostat-timescale") {
		p.ThermostatTimescale = thermostatTimescale
	}
	if paramsFile == "" || changed("generate-expected-force") {
		p.GenerateExpectedForce = generateExpectedForce
	}
	if paramsFile == "" || changed("chunk-size") {
		p.ChunkSize = chunkSize
	}
	if paramsFile == "" || changed("force-tolerance") {
		p.ForceTolerance = forceTolerance
	}
	if paramsFile == "" || changed("integrator") {
		p.Integrator = integrator
	}
	return p, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	invocation := strings.Join(os.Args, " ")
	fmt.Fprintf(out, "invocation: %s\n", invocation)

	p, err := loadParams(cmd)
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	res, err := sim.New(out).Run(ctx, p, invocation)
	if err != nil {
		return err
	}
	if !summary {
		return nil
	}

	s := viz.Summary{
		RunID:         res.RunID,
		NAtom:         res.NAtom,
		NRound:        res.Schedule.NRound,
		Frames:        res.Frames,
		Elapsed:       res.Elapsed,
		ForceRMS:      res.ForceRMS,
		ForceVerified: res.ForceVerified,
		AvgKinetic:    res.AvgKinetic,
		HasKinetic:    res.HasKinetic,
		FinalHBonds:   res.FinalHBonds,
	}
	if st, err := storage.Open(ctx, p.Config); err == nil {
		s.Kinetic, _, _ = st.ReadFloat64(ctx, config.DefaultOutputGroup+"/kinetic")
		st.Close()
	}
	fmt.Fprintln(out, viz.RenderSummary(s, isTerminal(out)))
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
