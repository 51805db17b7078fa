package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lynx/pkg/asm"
	"lynx/pkg/driver"
	"lynx/pkg/unitfile"
)

var asmCmd = &cobra.Command{
	Use:   "asm [flags] <unit.lxs>",
	Short: "Assemble a text unit into a compiled unit file",
	Args:  cobra.ExactArgs(1),
	RunE:  assemble,
}

func init() {
	asmCmd.Flags().StringP("output", "o", "", "output file (default: input with the .lxb extension)")
}

func assemble(cmd *cobra.Command, args []string) error {
	in := args[0]
	out, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}
	if out == "" {
		out = strings.TrimSuffix(in, filepath.Ext(in)) + unitfile.Ext
	}

	u, err := asm.AssembleFile(in)
	if err != nil {
		driver.Report(os.Stderr, err)
		return errReported
	}
	if err := unitfile.WriteFile(out, u); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d functions, %d classes)\n", out, len(u.Functions), len(u.Classes))
	return nil
}
