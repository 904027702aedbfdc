package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/bundlesize/cli/output"
	"github.com/fluxbase-eu/bundlesize/cli/util"
	"github.com/fluxbase-eu/bundlesize/internal/bundler"
)

var (
	bundleMangle    bool
	bundleDetails   bool
	bundleExternals []string
	bundleWrite     string
)

var bundleCmd = &cobra.Command{
	Use:   "bundle [file|-]",
	Short: "Bundle an ES module and report its minified size",
	Long: `Bundle an ES module with its registry dependencies, minify it and report
the resulting size. Source is read from the file argument, or from stdin
when the argument is "-" or omitted.

Examples:
  bundlesize bundle entry.js
  echo "export { default } from 'preact'" | bundlesize bundle --details
  bundlesize bundle entry.js -o json --write dist/bundle.js`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBundle,
}

func init() {
	bundleCmd.Flags().BoolVar(&bundleMangle, "mangle", false, "rename local identifiers (default from bundler.mangle)")
	bundleCmd.Flags().BoolVar(&bundleDetails, "details", false, "show the per-package and per-module breakdown")
	bundleCmd.Flags().StringSliceVar(&bundleExternals, "external", nil, "additional modules to leave out of the bundle")
	bundleCmd.Flags().StringVarP(&bundleWrite, "write", "w", "", "write the minified bundle to this file")
}

func runBundle(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}

	source, err := util.ReadSource(path, os.Stdin)
	if err != nil {
		return err
	}

	opts := minifyOptions(cmd)
	cfg.Bundler.Externals = append(cfg.Bundler.Externals, bundleExternals...)
	pipeline, _ := bundler.FromConfig(cfg, nil)

	start := time.Now()
	result, err := pipeline.Bundle(cmd.Context(), bundler.Request{
		Source: source,
		Minify: opts,
	})
	if err != nil {
		var buildErr *bundler.BuildError
		if errors.As(err, &buildErr) {
			for _, msg := range buildErr.Messages {
				formatter.PrintError(msg)
			}
		}
		return err
	}
	log.Debug().Dur("duration", time.Since(start)).Msg("Bundle complete")

	if bundleWrite != "" {
		if err := writeBundle(bundleWrite, result); err != nil {
			return err
		}
	}

	var analysis *bundler.Analysis
	if bundleDetails || formatter.Format != output.FormatTable {
		analysis = bundler.Analyze(result, cfg.Registry.BaseURL())
	}
	return formatter.PrintBundle(result, analysis, bundleDetails)
}

// minifyOptions uses --mangle when given, the configured default otherwise
func minifyOptions(cmd *cobra.Command) bundler.MinifyOptions {
	mangle := cfg.Bundler.Mangle
	if cmd.Flags().Changed("mangle") {
		mangle = bundleMangle
	}
	return bundler.MinifyOptions{"mangle": mangle}
}

func writeBundle(path string, result *bundler.Result) error {
	if len(result.Chunks) == 0 {
		return fmt.Errorf("bundle produced no output")
	}
	if err := os.WriteFile(path, []byte(result.Chunks[0].Code), 0o644); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	return nil
}
