package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/san-kum/cgmd/internal/config"
	"github.com/san-kum/cgmd/internal/export"
	"github.com/san-kum/cgmd/internal/forcefield"
	"github.com/san-kum/cgmd/internal/storage"
	"github.com/san-kum/cgmd/internal/viz"
)

var (
	initOut     string
	systemFile  string
	initAtoms   int
	initSystems int
	initSeed    int64

	readConfig string
	outputPath string
	plotWidth  int
	plotHeight int
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "write a helical test chain to a new configuration file",
		Args:  cobra.NoArgs,
		RunE:  initConfig,
	}
	cmd.Flags().StringVar(&initOut, "out", "system.db", "configuration file to create")
	cmd.Flags().StringVar(&systemFile, "system", "", "yaml file describing the chain")
	cmd.Flags().IntVar(&initAtoms, "atoms", 10, "number of atoms")
	cmd.Flags().IntVar(&initSystems, "systems", 1, "number of systems")
	cmd.Flags().Int64Var(&initSeed, "seed", config.DefaultSeed, "seed for the position jitter")
	return cmd
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "list datasets and recorded runs of a configuration file",
		Args:  cobra.NoArgs,
		RunE:  showInfo,
	}
	cmd.Flags().StringVar(&readConfig, "config", "", "configuration file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newPlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "plot the logged kinetic energy",
		Args:  cobra.NoArgs,
		RunE:  plotKinetic,
	}
	cmd.Flags().StringVar(&readConfig, "config", "", "configuration file")
	cmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")
	cmd.Flags().IntVar(&plotHeight, "height", 12, "plot height")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newExportJSONCmd() *cobra.Command {
	return newExportCmd("export-json", "export the trajectory to JSON", export.WriteJSON)
}

func newExportCSVCmd() *cobra.Command {
	return newExportCmd("export-csv", "export the trajectory to CSV", export.WriteCSV)
}

func newExportSVGCmd() *cobra.Command {
	return newExportCmd("export-svg", "draw the kinetic energy as SVG", func(w io.Writer, t *export.Trajectory) error {
		svg := export.KineticSVG(t, plotWidth*10, plotHeight*25)
		if svg == "" {
			return fmt.Errorf("need at least two frames to draw")
		}
		_, err := io.WriteString(w, svg+"\n")
		return err
	})
}

func newExportCmd(use, short string, write func(io.Writer, *export.Trajectory) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return exportTrajectory(cmd, write)
		},
	}
	cmd.Flags().StringVar(&readConfig, "config", "", "configuration file")
	cmd.Flags().StringVar(&outputPath, "out", "", "output file (default stdout)")
	cmd.Flags().IntVar(&plotWidth, "width", 80, "svg width in tens of pixels")
	cmd.Flags().IntVar(&plotHeight, "height", 12, "svg height in 25 pixel units")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func initConfig(cmd *cobra.Command, args []string) error {
	sys := config.DefaultSystem()
	if systemFile != "" {
		var err error
		sys, err = config.LoadSystem(systemFile)
		if err != nil {
			return fmt.Errorf("failed to load system: %w", err)
		}
	}
	if systemFile == "" || cmd.Flags().Changed("atoms") {
		sys.NAtom = initAtoms
	}
	if systemFile == "" || cmd.Flags().Changed("systems") {
		sys.NSystem = initSystems
	}
	if systemFile == "" || cmd.Flags().Changed("seed") {
		sys.Seed = initSeed
	}

	ctx := context.Background()
	st, err := storage.Create(ctx, initOut)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := forcefield.WriteSystem(ctx, st, sys); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d atoms x %d systems to %s\n", sys.NAtom, sys.NSystem, initOut)
	return nil
}

func showInfo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st, err := storage.Open(ctx, readConfig)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}
	size, err := st.FileSize()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s on disk)\n\n", readConfig, humanize.Bytes(uint64(size)))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATASET\tTYPE\tSHAPE\tCHUNKS\tSTORED")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			s.Path, s.DType, formatShape(s.Shape), s.Chunks, humanize.Bytes(uint64(s.Bytes)))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	runs, err := st.Runs(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "\nno runs recorded")
		return nil
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tROUNDS\tDT\tINTEG\tSTATUS")
	for _, r := range runs {
		status := "incomplete"
		if !r.Finished.IsZero() && r.Finished.After(r.Started) {
			status = "finished " + humanize.Time(r.Finished)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%.4f\t%s\t%s\n",
			r.ID, r.Started.Format("2006-01-02 15:04:05"), r.NRound, r.Dt, r.Integrator, status)
	}
	return w.Flush()
}

func formatShape(dims []int) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = humanize.Comma(int64(d))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func plotKinetic(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st, err := storage.Open(ctx, readConfig)
	if err != nil {
		return err
	}
	defer st.Close()

	kinetic, _, err := st.ReadFloat64(ctx, config.DefaultOutputGroup+"/kinetic")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "frames: %d\n\n", len(kinetic))
	fmt.Fprintln(out, viz.Plot(kinetic, "kinetic energy per frame", plotWidth, plotHeight))
	return nil
}

func exportTrajectory(cmd *cobra.Command, write func(io.Writer, *export.Trajectory) error) error {
	ctx := context.Background()
	st, err := storage.Open(ctx, readConfig)
	if err != nil {
		return err
	}
	defer st.Close()

	traj, err := export.Load(ctx, st, config.DefaultOutputGroup)
	if err != nil {
		return err
	}

	if outputPath == "" {
		return write(cmd.OutOrStdout(), traj)
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if err := write(file, traj); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
