package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lynx/pkg/driver"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <unit>... [-- args]",
	Short: "Execute one or more units",
	Long: `Execute units in order on one shared session, or each on its own
session with --parallel. Arguments after -- become process.argv.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUnits,
}

func init() {
	runCmd.Flags().IntP("parallel", "j", 0, "run units on independent sessions, N at a time (0 runs them in sequence)")
	runCmd.Flags().Bool("print", false, "print the completion value of each unit")
}

func runUnits(cmd *cobra.Command, args []string) error {
	jobs, err := cmd.Flags().GetInt("parallel")
	if err != nil {
		return fmt.Errorf("failed to get parallel flag: %w", err)
	}
	printValues, err := cmd.Flags().GetBool("print")
	if err != nil {
		return fmt.Errorf("failed to get print flag: %w", err)
	}

	units, scriptArgs := args, []string(nil)
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		units, scriptArgs = args[:dash], args[dash:]
	}
	if len(units) == 0 {
		return fmt.Errorf("no units to run")
	}
	argv := append([]string{"lynx"}, scriptArgs...)

	if jobs > 0 {
		return runParallel(cmd, units, jobs, argv, printValues)
	}

	l, err := driver.NewLynxWithConfig(cfg, os.Stdout, os.Stderr, argv)
	if err != nil {
		return err
	}
	if err := l.Attach(); err != nil {
		return err
	}
	defer l.Close()

	for _, path := range units {
		v, err := l.RunFile(path)
		if err != nil {
			driver.Report(os.Stderr, err)
			return errReported
		}
		if printValues {
			l.DisplayResult(v, nil)
		}
	}
	return nil
}

func runParallel(cmd *cobra.Command, units []string, jobs int, argv []string, printValues bool) error {
	results, err := driver.RunAll(cmd.Context(), cfg, units, jobs, argv)
	if err != nil {
		return err
	}
	failed := false
	for _, res := range results {
		os.Stdout.Write(res.Stdout)
		os.Stderr.Write(res.Stderr)
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "%s:\n", res.Path)
			driver.Report(os.Stderr, res.Err)
			failed = true
			continue
		}
		if printValues && res.Value != "" {
			fmt.Printf("%s: %s\n", res.Path, res.Value)
		}
	}
	if failed {
		return errReported
	}
	return nil
}
