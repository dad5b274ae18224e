package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"lolvm/internal/isa"
	"lolvm/internal/ui/colorize"
)

var asmCmd = &cobra.Command{
	Use:   "asm SRC",
	Short: "Assemble a source file into a program",
	Example: `
# Assemble loop.lasm into loop.bin
lolvm asm loop.lasm

# Choose the output file
lolvm asm loop.lasm -o /tmp/loop.bin
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := args[0]
		text, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("failed to read source: %w", err)
		}
		program, err := isa.Assemble(string(text))
		if err != nil {
			var le *isa.LineError
			if errors.As(err, &le) {
				if !term.IsTerminal(os.Stderr.Fd()) {
					os.Setenv("LOLVM_NO_COLOR", "1")
				}
				printSourceLine(cmd.ErrOrStderr(), string(text), le.Line)
			}
			return fmt.Errorf("%s: %w", src, err)
		}

		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = strings.TrimSuffix(src, filepath.Ext(src)) + ".bin"
		}
		if err := os.WriteFile(out, program, 0o644); err != nil {
			return fmt.Errorf("failed to write program: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(program), out)
		return nil
	},
}

// printSourceLine shows line n of text, numbered, as the context of an
// assembler error.
func printSourceLine(w io.Writer, text string, n int) {
	lines := strings.Split(text, "\n")
	if n < 1 || n > len(lines) {
		return
	}
	line := strings.TrimRight(lines[n-1], "\r")
	colored, err := colorize.Source(line)
	if err != nil {
		colored = line
	}
	fmt.Fprintf(w, "%4d | %s\n", n, colored)
}

func init() {
	asmCmd.Flags().StringP("output", "o", "", "Output file (default SRC with a .bin extension)")
	rootCmd.AddCommand(asmCmd)
}
