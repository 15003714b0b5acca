package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/parades/parades/sim"
	"github.com/parades/parades/sim/trace"
)

var (
	// CLI flags for the run
	modelPath string // Path to the YAML model description
	seed      int64  // Seed for workgroup tie-breaks and branch draws
	workers   int    // Number of worker goroutines (0 = one per CPU)
	startTs   int64  // First tick of the run
	endTs     int64  // Events at or after this tick are not executed
	logLevel  string // Log verbosity level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "parades",
	Short: "Parallel discrete-event simulator for resource-constrained flows",
}

// runCmd loads a model file and runs the simulation
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation model",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := configureLogging(logLevel, os.Stderr); err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}

		cfg, err := sim.LoadModelConfig(modelPath)
		if err != nil {
			logrus.Fatalf("unable to load model; %v", err)
		}
		applyFlagOverrides(cfg, cmd.Flags().Changed)

		model, err := cfg.Build()
		if err != nil {
			logrus.Fatalf("invalid model %s; %v", modelPath, err)
		}
		s, err := sim.NewSimulator(model, cfg.SimConfig())
		if err != nil {
			logrus.Fatalf("unable to create simulator; %v", err)
		}
		rec := trace.NewRecorder()
		rec.RunID = s.RunID()
		s.AddListener(rec)

		startTime := time.Now()
		if err := s.Run(); err != nil {
			logrus.WithField("run", s.RunID()).Fatalf("simulation failed; %v", err)
		}
		printSummary(cmd.OutOrStdout(), s, trace.Summarize(rec.Records()), time.Since(startTime))

		logrus.WithField("run", s.RunID()).Info("Simulation complete.")
	},
}

// configureLogging sets the logrus level and picks a colored text formatter
// for terminals and JSON lines otherwise.
func configureLogging(level string, out *os.File) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(out)
	if isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()) {
		logrus.SetFormatter(&logrus.TextFormatter{ForceColors: true, FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

// applyFlagOverrides copies explicitly set flags over the model file's run
// parameters.
func applyFlagOverrides(cfg *sim.ModelConfig, changed func(name string) bool) {
	if changed("seed") {
		cfg.Seed = seed
	}
	if changed("workers") {
		cfg.Workers = workers
	}
	if changed("start") {
		cfg.Start = startTs
	}
	if changed("end") {
		cfg.End = endTs
	}
}

// printSummary writes the aggregate statistics of a finished run.
func printSummary(w io.Writer, s *sim.Simulator, summary *trace.Summary, elapsed time.Duration) {
	cfg := s.Config()
	fmt.Fprintln(w, "=== Simulation Summary ===")
	fmt.Fprintf(w, "Run ID               : %s\n", s.RunID())
	fmt.Fprintf(w, "Workers              : %d\n", cfg.Workers)
	fmt.Fprintf(w, "Seed                 : %d\n", cfg.Seed)
	fmt.Fprintf(w, "Final Clock          : %d\n", s.Clock())
	fmt.Fprintf(w, "Ticks                : %d\n", s.Ticks())
	fmt.Fprintf(w, "Elements Created     : %d\n", summary.ElementsCreated)
	fmt.Fprintf(w, "Elements Finished    : %d\n", summary.ElementsFinished)
	fmt.Fprintf(w, "Activities Started   : %d\n", summary.ActivitiesStarted)
	fmt.Fprintf(w, "Activities Finished  : %d\n", summary.ActivitiesFinished)
	fmt.Fprintf(w, "Interruptions        : %d\n", summary.Interruptions)
	fmt.Fprintf(w, "Expired Resources    : %d\n", summary.ExpiredResources)
	names := make([]string, 0, len(summary.StartsPerActivity))
	for name := range summary.StartsPerActivity {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-18s : %d starts\n", name, summary.StartsPerActivity[name])
	}
	fmt.Fprintf(w, "Simulation Wall Time : %s\n", elapsed.Round(time.Millisecond))
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {

	runCmd.Flags().StringVar(&modelPath, "model", "", "Path to the YAML model file")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for workgroup tie-breaks and branch draws (overrides the model file)")
	runCmd.Flags().IntVar(&workers, "workers", 0, "Number of worker goroutines, 0 for one per CPU (overrides the model file)")
	runCmd.Flags().Int64Var(&startTs, "start", 0, "First tick of the run (overrides the model file)")
	runCmd.Flags().Int64Var(&endTs, "end", 0, "End tick of the run (overrides the model file)")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	_ = runCmd.MarkFlagRequired("model")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
