package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-logr/logr"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/motorsync/internal/config"
	"github.com/san-kum/motorsync/internal/dynamo"
	"github.com/san-kum/motorsync/internal/export"
	"github.com/san-kum/motorsync/internal/hardware/serialbus"
	"github.com/san-kum/motorsync/internal/integrators"
	"github.com/san-kum/motorsync/internal/lift"
	"github.com/san-kum/motorsync/internal/logging"
	"github.com/san-kum/motorsync/internal/metrics"
	"github.com/san-kum/motorsync/internal/optim"
	"github.com/san-kum/motorsync/internal/recorder"
	"github.com/san-kum/motorsync/internal/sim"
	"github.com/san-kum/motorsync/internal/storage"
	"github.com/san-kum/motorsync/internal/tui"
)

var (
	dataDir    string
	configFile string
	preset     string
	verbosity  int
	logFile    string

	// run
	duration   float64
	dt         float64
	seed       int64
	integrator string
	goal       int
	params     []string
	numRuns    int
	noSave     bool

	// export
	format string
	output string

	// tune
	kpRange string
	kiRange string
	kdRange string
	seeds   int
	workers int
	metric  string

	// drive / live
	device   string
	interval time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "motorsync",
		Short:        "master-slave motor synchronization for two-sided lifts",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".motorsync", "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "use preset configuration")
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbose", "v", 0, "log verbosity")
	rootCmd.PersistentFlags().StringVar(&logFile, "log", "", "log file (default stderr, discarded in the TUI)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "simulate the lift and save the run",
		RunE:  runSimulation,
	}
	runCmd.Flags().Float64Var(&duration, "time", 0, "duration in seconds (default from config)")
	runCmd.Flags().Float64Var(&dt, "dt", 0, "plant timestep (default from config)")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "sensor noise seed (default from config)")
	runCmd.Flags().StringVar(&integrator, "integrator", "", "integrator: "+strings.Join(integrators.Names(), ", "))
	runCmd.Flags().IntVar(&goal, "goal", -1, "single height goal instead of the configured setpoints")
	runCmd.Flags().StringArrayVar(&params, "param", nil, "plant parameter override name=value")
	runCmd.Flags().IntVar(&numRuns, "runs", 1, "run an ensemble over consecutive seeds")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run the simulated lift in real time with the monitor",
		RunE:  runLive,
	}
	liveCmd.Flags().StringArrayVar(&params, "param", nil, "plant parameter override name=value")

	driveCmd := &cobra.Command{
		Use:   "drive",
		Short: "drive a real lift over the serial line",
		RunE:  runDrive,
	}
	driveCmd.Flags().StringVar(&device, "device", "", "serial device (default from config)")
	driveCmd.Flags().DurationVar(&interval, "poll", 10*time.Millisecond, "sensor poll interval")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results (latest run by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as json, png or svg",
		Args:  cobra.MaximumNArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&format, "format", "json", "json, png, png-outputs or svg")
	exportCmd.Flags().StringVarP(&output, "out", "o", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE:  listPresets,
	}

	configCmd := &cobra.Command{
		Use:   "config [path]",
		Short: "write the effective configuration as yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE:  writeConfig,
	}

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search equalizer gains in simulation",
		RunE:  tuneEqualizer,
	}
	tuneCmd.Flags().StringVar(&kpRange, "kp", "0.1:1:5", "kp range lo:hi:n")
	tuneCmd.Flags().StringVar(&kiRange, "ki", "0:0.05:3", "ki range lo:hi:n")
	tuneCmd.Flags().StringVar(&kdRange, "kd", "", "kd range lo:hi:n")
	tuneCmd.Flags().IntVar(&seeds, "seeds", 2, "runs per grid point")
	tuneCmd.Flags().IntVar(&workers, "workers", 0, "parallel evaluations (default GOMAXPROCS)")
	tuneCmd.Flags().StringVar(&metric, "metric", "sync_rms", "metric to minimize")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "benchmark the simulated lift across timesteps",
		RunE:  benchRig,
	}

	rootCmd.AddCommand(runCmd, liveCmd, driveCmd, listCmd, plotCmd, exportCmd, presetsCmd, configCmd, tuneCmd, benchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves --preset, then --config on top of it.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	return cfg, nil
}

// newLogger writes to --log, or to fallback when no file is given.
func newLogger(fallback io.Writer) (logr.Logger, func(), error) {
	if logFile == "" {
		return logging.New(fallback, verbosity), func() {}, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return logr.Discard(), nil, err
	}
	return logging.New(f, verbosity), func() { f.Close() }, nil
}

func parseParams(kv []string) (map[string]float64, error) {
	out := make(map[string]float64, len(kv))
	for _, p := range kv {
		name, val, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("param %q: want name=value", p)
		}
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", p, err)
		}
		out[strings.TrimSpace(name)] = v
	}
	return out, nil
}

func applyParams(plant dynamo.Configurable, kv map[string]float64) error {
	for name, v := range kv {
		if err := plant.SetParam(name, v); err != nil {
			return err
		}
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("time") {
		cfg.Sim.Duration = duration
	}
	if cmd.Flags().Changed("dt") {
		cfg.Sim.Dt = dt
	}
	if cmd.Flags().Changed("seed") {
		cfg.Sim.Seed = seed
	}
	if integrator != "" {
		cfg.Sim.Integrator = integrator
	}
	if goal >= 0 {
		cfg.Sim.Setpoints = []config.Setpoint{{At: 0, Goal: goal}}
	}
	overrides, err := parseParams(params)
	if err != nil {
		return err
	}
	for name, v := range overrides {
		if err := cfg.Sim.Plant.Set(name, v); err != nil {
			return err
		}
	}

	log, closeLog, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signalContext()
	defer cancel()

	if numRuns > 1 {
		return runEnsemble(ctx, cfg, log)
	}

	rig, err := sim.New(cfg, sim.WithLogger(log))
	if err != nil {
		return err
	}

	fmt.Printf("running %s lift simulation...\n", cfg.Name)
	start := time.Now()
	result, err := rig.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("completed in %v\n", elapsed)
	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save("sim", cfg, result)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", runID)
	}
	final := result.Final()
	fmt.Printf("steps: %d  cycles: %d  skipped: %d\n", result.Steps, result.Cycles, result.Skipped)
	fmt.Printf("final: master %d  slave %d  gap %+d  goal %d\n", final.MasterPos, final.SlavePos, final.Gap(), final.MasterGoal)
	printMetrics(result.Metrics)
	return nil
}

func runEnsemble(ctx context.Context, cfg *config.Config, log logr.Logger) error {
	fmt.Printf("running %d %s simulations...\n", numRuns, cfg.Name)
	results, err := sim.NewEnsemble(cfg, numRuns, cfg.Sim.Seed, sim.WithLogger(log)).Run(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEED\tMASTER\tSLAVE\tGAP\tSYNC_RMS\tSETTLE")
	for i, r := range results {
		f := r.Final()
		fmt.Fprintf(w, "%d\t%d\t%d\t%+d\t%.3f\t%.3f\n",
			cfg.Sim.Seed+int64(i), f.MasterPos, f.SlavePos, f.Gap(), r.Metrics["sync_rms"], r.Metrics["settle_time"])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Println("\nmean:")
	printMetrics(sim.Mean(results))
	return nil
}

func printMetrics(m map[string]float64) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.4f\n", name, m[name])
	}
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(io.Discard)
	if err != nil {
		return err
	}
	defer closeLog()

	rig, err := sim.New(cfg, sim.WithRealtime(), sim.WithLogger(log), sim.WithSampleLimit(2000))
	if err != nil {
		return err
	}
	overrides, err := parseParams(params)
	if err != nil {
		return err
	}
	if err := applyParams(rig.Plant(), overrides); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	if err := rig.Start(ctx); err != nil {
		return err
	}
	defer rig.Stop()

	return tui.Run(tui.Bind(rig.Lift(), rig.Recorder()), tui.Options{
		Title:     cfg.Name + " (sim)",
		MaxHeight: int(cfg.Sim.Plant.MaxHeight),
		Ports:     tui.SidePorts(rig.Lift()),
	})
}

func runDrive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if device != "" {
		cfg.Serial.Device = device
	}
	if err := cfg.ValidateSerial(); err != nil {
		return err
	}
	log, closeLog, err := newLogger(io.Discard)
	if err != nil {
		return err
	}
	defer closeLog()

	bus, err := serialbus.Open(cfg.Serial, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "close:", err)
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	if err := bus.Start(ctx); err != nil {
		return err
	}
	poller := bus.Poller(interval)
	poller.Start(ctx)
	defer poller.Stop()

	var l *lift.Lift
	applied := func() []int {
		states := l.Manager.Snapshot()
		out := make([]int, len(states))
		for i, s := range states {
			out[i] = s.Applied
		}
		return out
	}
	rec := recorder.New(recorder.Source{Start: time.Now(), Applied: applied},
		recorder.WithMetrics(metrics.Standard(cfg.Pair.Master.Gains.Tolerance)...),
		recorder.WithLimit(100000),
	)
	l, err = lift.New(bus, bus.Sensors(cfg.Pair), cfg, lift.WithLogger(log), lift.WithObserver(rec))
	if err != nil {
		return err
	}
	if err := l.Start(ctx); err != nil {
		return err
	}

	uiErr := tui.Run(tui.Bind(l, rec), tui.Options{
		Title:     cfg.Name + " @ " + cfg.Serial.Device,
		MaxHeight: int(cfg.Sim.Plant.MaxHeight),
		Ports:     tui.SidePorts(l),
	})
	l.Stop()

	if rec.Count() > 0 {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save("hardware", cfg, &dynamo.Result{
			Samples: rec.Samples(),
			Metrics: rec.Metrics(),
			Cycles:  rec.Count(),
			Skipped: l.Pair.Skipped() + l.Manager.Skipped(),
		})
		if err != nil {
			return err
		}
		fmt.Printf("recorded %d cycles as %s\n", rec.Count(), runID)
	}
	return uiErr
}

func resolveRun(st *storage.Store, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return st.Latest()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tTIME\tDURATION\tCYCLES\tSKIPPED\tSYNC_RMS")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%d\t%d\t%.3f\n",
			run.ID,
			run.Source,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Cycles,
			run.Skipped,
			run.Metrics["sync_rms"],
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runID, err := resolveRun(st, args)
	if err != nil {
		return err
	}
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	samples, err := st.LoadSamples(runID)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("source: %s\n", meta.Source)
	fmt.Printf("samples: %d\n\n", len(samples))

	goalSeries := make([]float64, len(samples))
	master := make([]float64, len(samples))
	slave := make([]float64, len(samples))
	gap := make([]float64, len(samples))
	correction := make([]float64, len(samples))
	for i, s := range samples {
		goalSeries[i] = float64(s.MasterGoal)
		master[i] = float64(s.MasterPos)
		slave[i] = float64(s.SlavePos)
		gap[i] = float64(s.Gap())
		correction[i] = float64(s.Correction)
	}

	fmt.Println(asciigraph.PlotMany([][]float64{goalSeries, master, slave},
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.SeriesColors(asciigraph.Gray, asciigraph.Cyan, asciigraph.Magenta),
		asciigraph.Caption("goal / master / slave position"),
	))
	fmt.Println()
	fmt.Println(asciigraph.Plot(gap,
		asciigraph.Height(8),
		asciigraph.Width(80),
		asciigraph.Caption("gap (master - slave)"),
	))
	fmt.Println()
	fmt.Println(asciigraph.Plot(correction,
		asciigraph.Height(6),
		asciigraph.Width(80),
		asciigraph.Caption("equalizer correction"),
	))
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runID, err := resolveRun(st, args)
	if err != nil {
		return err
	}
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	samples, err := st.LoadSamples(runID)
	if err != nil {
		return err
	}

	w := io.Writer(os.Stdout)
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "json":
		return export.JSON(w, *meta, samples)
	case "png", "png-outputs":
		build := export.PositionPlot
		if format == "png-outputs" {
			build = export.OutputPlot
		}
		p, err := build(meta.ID, samples)
		if err != nil {
			return err
		}
		return export.WritePNG(w, p, 8, 4)
	case "svg":
		_, err := io.WriteString(w, export.TrajectoryToSVG(export.GapPoints(samples), 800, 300, "#00d7af"))
		return err
	case "meta":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMASTER\tSLAVE\tSIDE KP/KI/KD\tEQUALIZER KP/KI/KD\tLIMIT")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		g, e := cfg.Pair.Master.Gains, cfg.Pair.Equalizer
		fmt.Fprintf(w, "%s\t%v\t%v\t%g/%g/%g\t%g/%g/%g\t%d\n",
			name, cfg.Pair.Master.Ports, cfg.Pair.Slave.Ports,
			g.Kp, g.Ki, g.Kd, e.Kp, e.Ki, e.Kd, cfg.Pair.Limit())
	}
	return w.Flush()
}

func writeConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	}
	if err := config.Save(args[0], cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", args[0])
	return nil
}

func parseRange(s string) ([]float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("range %q: want lo:hi:n", s)
	}
	lo, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return nil, fmt.Errorf("range %q: %w", s, err)
	}
	hi, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil, fmt.Errorf("range %q: %w", s, err)
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil || n < 1 {
		return nil, fmt.Errorf("range %q: bad count", s)
	}
	return optim.Linspace(lo, hi, n), nil
}

func tuneEqualizer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var names []string
	var ranges [][]float64
	for _, p := range []struct{ name, rng string }{{"kp", kpRange}, {"ki", kiRange}, {"kd", kdRange}} {
		if p.rng == "" {
			continue
		}
		r, err := parseRange(p.rng)
		if err != nil {
			return err
		}
		names = append(names, p.name)
		ranges = append(ranges, r)
	}
	if len(names) == 0 {
		return fmt.Errorf("no gain ranges given")
	}

	gs := optim.NewGridSearch(names, ranges)
	gs.SetWorkers(workers)

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("tuning %s equalizer over %v...\n", cfg.Name, names)
	start := time.Now()
	best, score, trials, err := gs.Search(ctx, optim.EqualizerObjective(cfg, seeds), metric)
	if err != nil {
		return err
	}

	sort.Slice(trials, func(i, j int) bool { return trials[i].Score < trials[j].Score })
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", strings.ToUpper(strings.Join(names, "\t")), strings.ToUpper(metric))
	for i, t := range trials {
		if i == 10 {
			break
		}
		vals := make([]string, len(names))
		for j, n := range names {
			vals[j] = strconv.FormatFloat(t.Params[n], 'g', 4, 64)
		}
		if t.Err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", strings.Join(vals, "\t"), t.Err)
			continue
		}
		fmt.Fprintf(w, "%s\t%.4f\n", strings.Join(vals, "\t"), t.Score)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d trials in %v\n", len(trials), time.Since(start).Round(time.Millisecond))
	fmt.Printf("best %s %.4f at", metric, score)
	for _, n := range names {
		fmt.Printf(" %s=%g", n, best[n])
	}
	fmt.Println()
	return nil
}

func benchRig(cmd *cobra.Command, args []string) error {
	base, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("benchmarking %s\n\n", base.Name)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INTEG\tDT\tSTEPS\tTIME\tSTEPS/SEC\tSYNC_RMS")

	for _, name := range integrators.Names() {
		for _, step := range []float64{0.0005, 0.001, 0.005} {
			cfg := base.Clone()
			cfg.Sim.Integrator = name
			cfg.Sim.Dt = step

			rig, err := sim.New(cfg)
			if err != nil {
				return err
			}
			start := time.Now()
			result, err := rig.Run(context.Background())
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			fmt.Fprintf(w, "%s\t%.4fs\t%d\t%v\t%.0f\t%.3f\n",
				name, step, result.Steps, elapsed.Round(time.Microsecond),
				float64(result.Steps)/elapsed.Seconds(), result.Metrics["sync_rms"])
		}
	}
	return w.Flush()
}
