// Package cmd provides the Cobra commands for the bundlesize CLI.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fluxbase-eu/bundlesize/cli/output"
	"github.com/fluxbase-eu/bundlesize/internal/config"
	"github.com/fluxbase-eu/bundlesize/internal/logging"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	outputFmt string
	quiet     bool
	debug     bool
	registry  string

	// Shared across commands
	cfg       *config.Config
	formatter *output.Formatter
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bundlesize",
	Short: "bundlesize - measure the minified size of ES modules",
	Long: `bundlesize bundles an ES module together with the packages it imports,
fetched from a package registry such as unpkg, minifies the result and
reports its size.

Get started:
  echo "import { debounce } from 'lodash-es'; debounce()" | bundlesize bundle
  bundlesize bundle entry.js --details
  bundlesize watch entry.js
  bundlesize serve`,
	SilenceUsage:      true,
	PersistentPreRunE: initialize,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./bundlesize.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")
	rootCmd.PersistentFlags().StringVar(&registry, "registry", "",
		"package registry URL (default https://unpkg.com)")

	_ = viper.BindPFlag("registry.url", rootCmd.PersistentFlags().Lookup("registry"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = rootCmd.RegisterFlagCompletionFunc("output", completeOutputFormat)

	bundleCmd.ValidArgsFunction = completeSourceFile
	watchCmd.ValidArgsFunction = completeSourceFile

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(bundleCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
}

// initialize sets up logging, configuration and the formatter
func initialize(cmd *cobra.Command, args []string) error {
	// Silence errors only when --quiet is used
	cmd.SilenceErrors = quiet

	logging.Setup(os.Stderr, logging.FormatAuto, debug)
	if quiet {
		logging.Quiet()
	}

	format, err := output.ParseFormat(outputFmt)
	if err != nil {
		return err
	}
	formatter = output.NewFormatter(format, quiet)
	formatter.Writer = cmd.OutOrStdout()
	formatter.ErrWriter = cmd.ErrOrStderr()

	// completion and version work without a valid configuration
	if cmd == versionCmd || cmd == completionCmd {
		return nil
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	cfg, err = config.Load()
	if err != nil {
		return err
	}
	if cfg.Debug && !debug {
		logging.Setup(os.Stderr, logging.FormatAuto, true)
	}
	return nil
}
