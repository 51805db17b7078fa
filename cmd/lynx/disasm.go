package main

import (
	"os"

	"github.com/spf13/cobra"

	"lynx/pkg/driver"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <unit>",
	Short: "Print a unit as assembler text",
	Long:  `Print a unit as assembler text. The output can be fed back to lynx asm.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := driver.LoadUnit(args[0])
		if err != nil {
			driver.Report(os.Stderr, err)
			return errReported
		}
		return u.Disassemble(cmd.OutOrStdout())
	},
}
