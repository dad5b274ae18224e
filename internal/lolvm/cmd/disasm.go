package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"lolvm/internal/disasm"
	"lolvm/internal/ui/colorize"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm FILE",
	Short: "Print the disassembly of a program",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		program, err := loadProgram(cmd, args[0])
		if err != nil {
			return err
		}

		if !term.IsTerminal(os.Stdout.Fd()) {
			os.Setenv("LOLVM_NO_COLOR", "1")
		}
		fmt.Fprint(cmd.OutOrStdout(), colorize.Listing(disasm.Disassemble(program).String()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(disasmCmd)
}
