package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/nxadm/tail"
	"github.com/spf13/cobra"
)

var followCmd = &cobra.Command{
	Use:   "follow TRACEFILE",
	Short: "Print a trace file as a running program writes it",
	Long: `Follow prints the instruction trace written by --trace-file. It keeps
waiting for new lines until interrupted unless --follow=false is given.`,
	Example: `
# In one terminal
lolvm --trace-file /tmp/trace.log prog.bin

# In another
lolvm follow /tmp/trace.log
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		return followTrace(cmd.Context(), args[0], follow, cmd.OutOrStdout())
	},
}

func init() {
	followCmd.Flags().BoolP("follow", "f", true, "Keep waiting for new trace lines")
	rootCmd.AddCommand(followCmd)
}

// followTrace copies the lines of path to w. Without follow it stops at the
// end of the file.
func followTrace(ctx context.Context, path string, follow bool, w io.Writer) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer t.Cleanup()

	for {
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				return fmt.Errorf("failed to read trace: %w", line.Err)
			}
			fmt.Fprintln(w, line.Text)
		}
	}
}
