package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/twharvest/twharvest/pkg/config"
	"github.com/twharvest/twharvest/pkg/errors"
	"github.com/twharvest/twharvest/pkg/logger"
	"github.com/twharvest/twharvest/pkg/ui"
)

var (
	version   = "0.1.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	configFile   string
	logLevel     string
	noColor      bool
	quiet        bool
	outputFormat string

	cfg *config.Config
	log logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "twharvest",
	Short: "Batch media-harvesting engine for an X/Twitter-like platform",
	Long: `twharvest downloads images, video, and GIFs posted by a list of
handles, tracking what's already been downloaded in a per-output-directory
ledger so repeat runs only fetch what's new.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		format := ui.FormatText
		if outputFormat == "json" {
			format = ui.FormatJSON
		}
		ui.Configure(quiet, noColor, format)

		loaded, err := config.Load(configFile, map[string]interface{}{"log-level": logLevel})
		if err != nil {
			return errors.Wrap(errors.Usage, err)
		}
		cfg = loaded

		l, err := logger.New(&cfg.Logging)
		if err != nil {
			return errors.Wrap(errors.Internal, err)
		}
		log = l

		if cmd.Name() != "help" && cmd.Name() != "version" {
			ui.PrintLogo()
		}
		return nil
	},
}

// Execute runs the root command and exits the process with the exit
// code its error's Kind maps to, or 0 on success.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ui.ReportError(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default searches standard locations)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output-format", "text", "output format: text or json")

	rootCmd.SetVersionTemplate(`twharvest {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
