package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"lynx/pkg/driver"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "lynx %s (%s %s/%s)\n", driver.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
