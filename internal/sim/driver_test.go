package sim

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/cgmd/internal/config"
	"github.com/san-kum/cgmd/internal/dynamo"
	"github.com/san-kum/cgmd/internal/forcefield"
	"github.com/san-kum/cgmd/internal/storage"
)

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		dir    string
		out    *bytes.Buffer
		params *config.Params
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		out = &bytes.Buffer{}

		params = config.DefaultParams()
		params.Config = writeConfig(dir, nil)
		params.Duration = 3.0
		params.FrameInterval = 0.3
	})

	Describe("a complete run", func() {
		var (
			res    *Result
			frames []Frame
		)

		BeforeEach(func() {
			frames = nil
			d := New(out)
			d.AddObserver(ObserverFunc(func(f Frame) { frames = append(frames, f) }))

			var err error
			res, err = d.Run(ctx, params, "cgmd --config system.db")
			Expect(err).NotTo(HaveOccurred())
		})

		It("derives the round schedule from physical time", func() {
			Expect(res.Schedule.NRound).To(Equal(uint64(100)))
			Expect(res.Schedule.FrameInterval).To(Equal(uint64(10)))
			Expect(res.Schedule.ThermostatInterval).To(Equal(uint64(1)))
		})

		It("logs exactly one frame per frame interval", func() {
			Expect(res.Frames).To(Equal(10))
			Expect(frames).To(HaveLen(10))
			for i, f := range frames {
				Expect(f.Index).To(Equal(i))
				Expect(f.Round).To(Equal(uint64(10 * i)))
			}
		})

		It("persists every frame with increasing times", func() {
			st := openConfig(params.Config)

			times, _, err := st.ReadFloat64(ctx, "/output/time")
			Expect(err).NotTo(HaveOccurred())
			Expect(times).To(HaveLen(10))
			Expect(times[0]).To(BeNumerically("~", 0.0, 1e-9))
			for i := 1; i < len(times); i++ {
				Expect(times[i]).To(BeNumerically(">", times[i-1]))
			}

			Expect(st.CheckSize(ctx, "/output/pos", 10, 10, 3)).To(Succeed())
			Expect(st.CheckSize(ctx, "/output/kinetic", 10)).To(Succeed())
		})

		It("stores recentered positions", func() {
			st := openConfig(params.Config)
			pos, _, err := st.ReadFloat32(ctx, "/output/pos")
			Expect(err).NotTo(HaveOccurred())

			for frame := 0; frame < 10; frame++ {
				for d := 0; d < 3; d++ {
					sum := 0.0
					for a := 0; a < 10; a++ {
						sum += float64(pos[frame*30+a*3+d])
					}
					Expect(sum / 10).To(BeNumerically("~", 0, 1e-4))
				}
			}
		})

		It("reports progress and the kinetic summary", func() {
			text := out.String()
			Expect(text).To(ContainSubstring("n_atom 10\nn_system 1"))
			Expect(text).To(ContainSubstring("\n 0 / 100 rounds"))
			Expect(text).To(ContainSubstring("\n90 / 100 rounds"))
			Expect(text).To(ContainSubstring("finished in"))
			Expect(text).To(ContainSubstring("avg kinetic energy"))
			Expect(text).To(ContainSubstring("integration"))
			Expect(strings.Count(text, " rounds ")).To(Equal(10))

			Expect(res.HasKinetic).To(BeTrue())
			Expect(res.AvgKinetic).To(BeNumerically(">", 0))
		})

		It("records the run", func() {
			st := openConfig(params.Config)
			runs, err := st.Runs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(HaveLen(1))
			Expect(runs[0].ID).To(Equal(res.RunID))
			Expect(runs[0].NRound).To(Equal(uint64(100)))
			Expect(runs[0].Invocation).To(Equal("cgmd --config system.db"))
			Expect(runs[0].Finished.IsZero()).To(BeFalse())
			Expect(runs[0].Metrics).To(HaveKey("avg_kinetic"))
		})
	})

	Describe("custom force terms", func() {
		BeforeEach(func() {
			st, err := storage.Open(ctx, params.Config)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.WriteFloat32(ctx, forcefield.ForceGroup+"/tether/radius", []int{1}, []float32{0.5})).To(Succeed())
			Expect(st.Close()).To(Succeed())
		})

		It("rejects a term nothing has registered", func() {
			_, err := New(out).Run(ctx, params, "")
			Expect(err).To(MatchError(dynamo.ErrConfigShape))
		})

		It("loads a term added to the registry", func() {
			var loaded string
			d := New(out)
			d.Registry().Register("tether", func(ctx context.Context, st *storage.Store, group string, _ int) (forcefield.Term, error) {
				loaded = group
				radius, _, err := st.ReadFloat32(ctx, group+"/radius")
				if err != nil {
					return nil, err
				}
				return &forcefield.Repulsion{Radius: radius[0], Scale: 1}, nil
			})
			Expect(d.Registry().Names()).To(ContainElement("tether"))

			res, err := d.Run(ctx, params, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(forcefield.ForceGroup + "/tether"))
			Expect(res.Frames).To(Equal(10))

			_, calls := d.Timers().Total("integration")
			Expect(calls).To(Equal(res.Schedule.NRound))
			_, calls = d.Timers().Total("state_logger")
			Expect(calls).To(Equal(uint64(res.Frames)))
		})
	})

	Describe("startup checks", func() {
		It("fails on a missing configuration file", func() {
			params.Config = filepath.Join(dir, "missing.db")
			_, err := New(out).Run(ctx, params, "")
			Expect(err).To(MatchError(dynamo.ErrConfigOpen))
			Expect(err.Error()).To(ContainSubstring("Unable to open configuration file at"))
		})

		It("rejects more than one system before any round", func() {
			other := GinkgoT().TempDir()
			params.Config = writeConfig(other, func(s *config.System) { s.NSystem = 2 })

			_, err := New(out).Run(ctx, params, "")
			Expect(err).To(MatchError(dynamo.ErrConfigShape))
			Expect(err.Error()).To(Equal("multiple systems not currently supported"))
			Expect(out.String()).NotTo(ContainSubstring("rounds"))

			st := openConfig(params.Config)
			exists, err := st.Exists(ctx, "/output")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())
		})

		It("rejects positions that are not three dimensional", func() {
			st, err := storage.Open(ctx, params.Config)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Delete(ctx, forcefield.PosPath)).To(Succeed())
			Expect(st.WriteFloat32(ctx, forcefield.PosPath, []int{10, 2, 1}, make([]float32, 20))).To(Succeed())
			Expect(st.Close()).To(Succeed())

			_, err = New(out).Run(ctx, params, "")
			Expect(err).To(MatchError(dynamo.ErrConfigShape))
			Expect(err.Error()).To(Equal("invalid dimensions for initial position"))
		})

		It("rejects invalid parameters", func() {
			params.TimeStep = 0
			_, err := New(out).Run(ctx, params, "")
			Expect(err).To(HaveOccurred())
		})

		It("rejects an unknown integrator", func() {
			params.Integrator = "leapfrog"
			_, err := New(out).Run(ctx, params, "")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("the output group", func() {
		BeforeEach(func() {
			_, err := New(&bytes.Buffer{}).Run(ctx, params, "")
			Expect(err).NotTo(HaveOccurred())
		})

		It("is not replaced without overwrite", func() {
			_, err := New(out).Run(ctx, params, "")
			Expect(err).To(MatchError(dynamo.ErrOutputCollision))
			Expect(err.Error()).To(Equal("/output already exists and --overwrite-output was not specified"))
		})

		It("is replaced with overwrite", func() {
			params.OverwriteOutput = true
			params.Duration = 1.5

			res, err := New(out).Run(ctx, params, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ReplacedPrev).To(BeTrue())

			st := openConfig(params.Config)
			Expect(st.CheckSize(ctx, "/output/time", 5)).To(Succeed())
			runs, err := st.Runs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(HaveLen(2))
		})
	})

	Describe("the force regression check", func() {
		It("verifies a freshly generated reference", func() {
			params.GenerateExpectedForce = true
			res, err := New(out).Run(ctx, params, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ForceVerified).To(BeTrue())
			Expect(res.ForceRMS).To(BeZero())
			Expect(out.String()).To(ContainSubstring("RMS force difference: 0.000000"))

			params.GenerateExpectedForce = false
			params.OverwriteOutput = true
			res, err = New(out).Run(ctx, params, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ForceVerified).To(BeTrue())
			Expect(res.ForceRMS).To(BeZero())
		})

		It("refuses to generate a second reference", func() {
			params.GenerateExpectedForce = true
			_, err := New(out).Run(ctx, params, "")
			Expect(err).NotTo(HaveOccurred())

			params.OverwriteOutput = true
			_, err = New(out).Run(ctx, params, "")
			Expect(err).To(MatchError(dynamo.ErrRegressionDuplicate))
		})

		It("fails when the forces drift from the reference", func() {
			st, err := storage.Open(ctx, params.Config)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.WriteFloat32(ctx, "/testing/expected_deriv", []int{10, 3, 1}, make([]float32, 30))).To(Succeed())
			Expect(st.Close()).To(Succeed())

			_, err = New(out).Run(ctx, params, "")
			Expect(err).To(MatchError(dynamo.ErrRegressionTolerance))
		})
	})

	Describe("reproducibility", func() {
		It("produces identical trajectories for the same seed", func() {
			other := writeConfig(GinkgoT().TempDir(), nil)

			_, err := New(&bytes.Buffer{}).Run(ctx, params, "")
			Expect(err).NotTo(HaveOccurred())
			params.Config = other
			_, err = New(&bytes.Buffer{}).Run(ctx, params, "")
			Expect(err).NotTo(HaveOccurred())

			a, _, err := openConfig(filepath.Join(dir, "system.db")).ReadFloat32(ctx, "/output/pos")
			Expect(err).NotTo(HaveOccurred())
			b, _, err := openConfig(other).ReadFloat32(ctx, "/output/pos")
			Expect(err).NotTo(HaveOccurred())
			Expect(a).To(Equal(b))
		})

		It("runs with the position Verlet scheme", func() {
			params.Integrator = "position-verlet"
			res, err := New(out).Run(ctx, params, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Frames).To(Equal(10))
		})
	})
})
