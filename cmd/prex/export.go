package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prex/internal/schema"
	"prex/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export [flags] <profile.yaml> <snapshot>",
	Short: "Convert a snapshot to JSON",
	Long: `Export re-checks a snapshot against the module profile and writes it as
JSON for downstream tooling. A snapshot that no longer decodes against
the profile is rejected rather than exported half-broken.`,
	Args: cobra.ExactArgs(2),
	RunE: exportExecution,
}

func exportExecution(cmd *cobra.Command, args []string) error {
	outPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	profile, err := schema.LoadProfile(args[0])
	if err != nil {
		return err
	}
	snap, err := store.Load(args[1])
	if err != nil {
		return err
	}
	for _, fs := range snap.Functions {
		if _, err := store.DecodeFunction(profile.Types, profile.Module, fs); err != nil {
			return fmt.Errorf("function %s: %w", fs.Function, err)
		}
	}

	w := os.Stdout
	if outPath != "" && outPath != "-" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck
		w = f
	}
	return store.ExportJSON(w, snap)
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "write JSON to this path instead of stdout")
}
