package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"lynx/pkg/config"
	"lynx/pkg/driver"
)

var rootCmd = &cobra.Command{
	Use:               "lynx",
	Short:             "Lynx bytecode engine",
	Long:              `Lynx loads compiled units (.lxb) or assembler text (.lxs) and executes them`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// cfg is resolved once flags are parsed.
var cfg *config.Config

// errReported marks a failure whose diagnostics were already printed.
var errReported = stderrors.New("errors reported")

func main() {
	rootCmd.Version = driver.Version

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(asmCmd)
	rootCmd.AddCommand(disasmCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("config", "", "path to lynx.toml (default: nearest one above the working directory)")
	rootCmd.PersistentFlags().CountP("verbose", "v", "increase log verbosity (repeatable)")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|always|never)")

	if err := rootCmd.Execute(); err != nil {
		if !stderrors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "lynx: %s\n", err)
		}
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	mode, err := cmd.Flags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	switch mode {
	case "auto":
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	default:
		return fmt.Errorf("invalid --color %q (want auto, always or never)", mode)
	}

	explicit, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err = config.Resolve(explicit, ".")
	if err != nil {
		return err
	}

	verbose, err := cmd.Flags().GetCount("verbose")
	if err != nil {
		return fmt.Errorf("failed to get verbose flag: %w", err)
	}
	var logPath *string
	if cfg.Log.Path != "" {
		logPath = &cfg.Log.Path
	}
	commonlog.Configure(cfg.Log.Verbosity+verbose, logPath)
	return nil
}
