package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"prex/internal/layout"
	"prex/internal/report"
	"prex/internal/schema"
	"prex/internal/store"
)

var showCmd = &cobra.Command{
	Use:   "show [flags] <profile.yaml> <snapshot>",
	Short: "Render the preconditions stored in a snapshot",
	Long: `Show decodes a snapshot produced by analyze --out against the module
profile and prints the inferred preconditions. The profile must declare
the same types the snapshot was recorded with.`,
	Args: cobra.ExactArgs(2),
	RunE: showExecution,
}

func showExecution(cmd *cobra.Command, args []string) error {
	functionFilter, err := cmd.Flags().GetString("function")
	if err != nil {
		return err
	}
	colorFlag, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return err
	}
	useColor := colorFlag == "on" || (colorFlag == "auto" && isTerminal(os.Stdout))

	profile, err := schema.LoadProfile(args[0])
	if err != nil {
		return err
	}
	snap, err := store.Load(args[1])
	if err != nil {
		return err
	}

	fns := snap.Functions
	if functionFilter != "" {
		fs, ok := snap.Function(functionFilter)
		if !ok {
			return fmt.Errorf("snapshot has no function %q", functionFilter)
		}
		fns = []store.FunctionSnapshot{fs}
	}

	eng := layout.New(layout.X86_64LinuxGNU(), profile.Types)
	r := report.NewRenderer(profile.Types, eng, useColor)

	fmt.Printf("run %s (%s)\n\n", snap.Run, snap.CreatedAt.Format(time.RFC3339))
	for i, fs := range fns {
		cs, err := store.DecodeFunction(profile.Types, profile.Module, fs)
		if err != nil {
			return fmt.Errorf("function %s: %w", fs.Function, err)
		}
		if i > 0 {
			fmt.Println()
		}
		r.Function(os.Stdout, fs.Function, fs.Status, fs.Iterations, cs)
	}
	return nil
}

func init() {
	showCmd.Flags().String("function", "", "show only this function")
}
