package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prex/internal/config"
	"prex/internal/driver"
	"prex/internal/layout"
	"prex/internal/replay"
	"prex/internal/report"
	"prex/internal/schema"
	"prex/internal/store"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [flags] <profile.yaml> <facts.yaml>",
	Short: "Infer per-function preconditions from recorded facts",
	Long: `Analyze runs the refinement loop for every entry function: execute the
recorded facts against the current precondition, strengthen it, and
repeat until the function comes back clean, reports a bug, or the
iteration budget runs out. The module profile declares the types,
functions, and globals; the fact script stands in for the
symbolic-execution engine.`,
	Args: cobra.ExactArgs(2),
	RunE: analyzeExecution,
}

func analyzeExecution(cmd *cobra.Command, args []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	jsonOut, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	maxIterFlag, err := cmd.Flags().GetInt("max-iterations")
	if err != nil {
		return err
	}
	parallelismFlag, err := cmd.Flags().GetInt("parallelism")
	if err != nil {
		return err
	}
	entriesFlag, err := cmd.Flags().GetStringSlice("entries")
	if err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}

	cfg, err := resolveConfig(configPath)
	if err != nil {
		return err
	}

	cleanup, err := setupTracing(cmd, cfg.Trace)
	if err != nil {
		return err
	}
	defer cleanup()

	profile, err := schema.LoadProfile(args[0])
	if err != nil {
		return err
	}
	script, err := replay.LoadScript(args[1], profile.Types, profile.Module)
	if err != nil {
		return err
	}

	entries := script.Functions()
	if len(cfg.Analysis.Entries) > 0 {
		entries = cfg.Analysis.Entries
	}
	if len(entriesFlag) > 0 {
		entries = entriesFlag
	}
	if len(entries) == 0 {
		return errors.New("nothing to analyze: no entries configured and the fact script is empty")
	}

	maxIterations := cfg.Analysis.MaxIterations
	if cmd.Flags().Changed("max-iterations") {
		maxIterations = maxIterFlag
	}
	parallelism := cfg.Analysis.Parallelism
	if cmd.Flags().Changed("parallelism") {
		parallelism = parallelismFlag
	}

	uiModeValue, err := readUIMode(uiValue)
	if err != nil {
		return err
	}
	// The TUI and a JSON stream both own stdout; JSON wins.
	useTUI := shouldUseTUI(uiModeValue) && !jsonOut

	exec := replay.NewExecutor(script)
	opts := driver.Options{MaxIterations: maxIterations, Jobs: parallelism}

	var res *driver.ModuleResult
	if useTUI {
		res, err = runAnalyzeWithUI(cmd.Context(), "prex analyze", profile, exec, entries, opts)
	} else {
		res, err = driver.AnalyzeModule(cmd.Context(), profile.Types, profile.Module, exec, entries, opts)
	}
	if err != nil {
		return err
	}

	snap := snapshotResults(res)
	if outPath != "" {
		if err := store.Save(outPath, snap); err != nil {
			return err
		}
	}
	if jsonOut {
		return store.ExportJSON(os.Stdout, snap)
	}

	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return err
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return err
	}
	useColor, err := resolveColor(cmd, cfg)
	if err != nil {
		return err
	}

	eng := layout.New(layout.X86_64LinuxGNU(), profile.Types)
	r := report.NewRenderer(profile.Types, eng, useColor)

	if !quiet {
		for _, fr := range res.Functions {
			r.Result(os.Stdout, fr)
			if showTimings {
				r.Timings(os.Stdout, fr.Timings)
			}
			fmt.Println()
		}
	}
	r.Module(os.Stdout, res)

	failed := 0
	for _, fr := range res.Functions {
		if fr.Status == driver.StatusError {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d functions failed to analyze", failed, len(res.Functions))
	}
	return nil
}

// resolveConfig loads the explicit config file, or walks up from the
// working directory, or falls back to the defaults.
func resolveConfig(explicit string) (config.Config, error) {
	if explicit != "" {
		return config.Load(explicit)
	}
	path, ok, err := config.Find(".")
	if err != nil {
		return config.Config{}, err
	}
	if !ok {
		return config.Default(), nil
	}
	return config.Load(path)
}

// resolveColor merges the --color flag over the [report].color setting.
func resolveColor(cmd *cobra.Command, cfg config.Config) (bool, error) {
	setting := cfg.Report.Color
	if cmd.Root().PersistentFlags().Changed("color") {
		v, err := cmd.Root().PersistentFlags().GetString("color")
		if err != nil {
			return false, err
		}
		setting = v
	}
	return setting == "on" || (setting == "auto" && isTerminal(os.Stdout)), nil
}

// snapshotResults encodes every function that still carries a
// precondition. Errored functions have nothing worth persisting.
func snapshotResults(res *driver.ModuleResult) *store.ModuleSnapshot {
	fns := make([]store.FunctionSnapshot, 0, len(res.Functions))
	for _, fr := range res.Functions {
		if fr.Final == nil {
			continue
		}
		fns = append(fns, store.EncodeFunction(fr.Function, string(fr.Status), fr.Iterations, fr.Final))
	}
	return store.NewModuleSnapshot(res.Run, fns)
}

func init() {
	analyzeCmd.Flags().String("config", "", "path to prex.toml (default: walk up from the working directory)")
	analyzeCmd.Flags().String("out", "", "write a snapshot of the inferred preconditions to this path")
	analyzeCmd.Flags().Bool("json", false, "print the snapshot as JSON instead of the report")
	analyzeCmd.Flags().Int("max-iterations", 0, "per-function refinement budget (0 = default)")
	analyzeCmd.Flags().Int("parallelism", 0, "concurrent function analyses (0 = one per CPU)")
	analyzeCmd.Flags().StringSlice("entries", nil, "entry functions to analyze (default: every scripted function)")
	analyzeCmd.Flags().String("ui", "auto", "progress interface (auto|on|off)")
}
