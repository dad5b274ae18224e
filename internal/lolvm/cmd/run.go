package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [file...]",
	Short: "Run programs to completion without a console",
	Long: `Run one or more programs in order and exit. Every program gets a fresh
machine. A fault in one program does not stop the others; the command fails
if any of them faulted.`,
	Example: `
# Run two programs
lolvm run a.bin b.bin

# Run with quiet mode (no debug output)
lolvm run -q prog.bin
  `,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quiet, _ := cmd.Flags().GetBool("quiet")

		out := cmd.OutOrStdout()
		var errs []error
		for _, file := range args {
			if len(args) > 1 {
				fmt.Fprintf(out, "== %s\n", file)
			}
			program, err := loadProgram(cmd, file)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			opts, cleanup, err := machineOptions(cmd)
			if err != nil {
				return err
			}
			opts.Debug = out
			if quiet {
				opts.Debug = io.Discard
			}
			if err := runProgram(program, opts); err != nil {
				slog.Error("Program faulted", "file", file, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", file, err))
			}
			cleanup()
		}
		return errors.Join(errs...)
	},
}

func init() {
	runCmd.Flags().BoolP("quiet", "q", false, "Discard debug output")
	rootCmd.AddCommand(runCmd)
}
