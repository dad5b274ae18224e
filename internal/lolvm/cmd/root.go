package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"lolvm/internal/console"
	"lolvm/internal/disasm"
	"lolvm/internal/loader"
	"lolvm/internal/lolvm/log"
	"lolvm/internal/ui/colorize"
	"lolvm/internal/ui/stepper"
	"lolvm/internal/vm"
	"lolvm/internal/vm/hostmem"
)

// Report is the JSON summary of a run written by --json.
type Report struct {
	File   string   `json:"file" jsonschema:"title=File,description=Program that was run"`
	State  vm.State `json:"state" jsonschema:"title=State,description=Machine registers when the run stopped"`
	Error  string   `json:"error,omitempty" jsonschema:"title=Error,description=Fault that halted the machine"`
	Output []string `json:"output" jsonschema:"title=Output,description=Lines written by DBG_PRINT instructions"`
}

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().Int("stack-size", vm.DefaultStackSize, "Stack size in bytes")
	rootCmd.PersistentFlags().Int("call-depth", vm.DefaultCallDepth, "Maximum call depth")
	rootCmd.PersistentFlags().Int("max-size", loader.DefaultMaxSize, "Largest program accepted, in bytes")
	rootCmd.PersistentFlags().Bool("unsafe-host-memory", false, "Let REF/LOAD/STORE use real host addresses")
	rootCmd.PersistentFlags().Bool("trace", false, "Log every instruction before it executes")
	rootCmd.PersistentFlags().String("trace-file", "", "Write an instruction trace to file (see follow)")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().Bool("run", false, "Run the program to completion (default)")
	rootCmd.Flags().BoolP("print", "p", false, "Print the disassembly before running")
	rootCmd.Flags().BoolP("step", "s", false, "Single-step the program interactively")
	rootCmd.Flags().BoolP("no-tui", "n", false, "Use the line console instead of the TUI")
	rootCmd.Flags().BoolP("json", "j", false, "Output the final machine state as JSON")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().String("memprofile", "", "Write memory profile to file")

	rootCmd.MarkFlagsMutuallyExclusive("step", "json")
	rootCmd.MarkFlagsMutuallyExclusive("print", "json")
}

var rootCmd = &cobra.Command{
	Use:   "lolvm [file]",
	Short: "Run lolvm bytecode programs",
	Long: `lolvm loads a flat bytecode program and runs it on a small stack machine.
Programs can be disassembled before they run or stepped one instruction at a time.`,
	Example: `
# Run a program
lolvm prog.bin

# Print the disassembly, then run
lolvm -p prog.bin

# Step through a program
lolvm -s prog.bin
  `,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.Setup(debug)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Setup CPU profiling if requested
		cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
		if cpuprofile != "" {
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %v", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %v", err)
			}
			defer pprof.StopCPUProfile()
		}

		// Setup memory profiling if requested
		memprofile, _ := cmd.Flags().GetString("memprofile")
		if memprofile != "" {
			defer func() {
				f, err := os.Create(memprofile)
				if err != nil {
					fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
					return
				}
				defer f.Close()
				if err := pprof.WriteHeapProfile(f); err != nil {
					fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
				}
			}()
		}

		if len(args) < 1 {
			return fmt.Errorf("usage: lolvm <file>")
		}
		file := args[0]

		program, err := loadProgram(cmd, file)
		if err != nil {
			return err
		}

		noTUI, _ := cmd.Flags().GetBool("no-tui")
		printListing, _ := cmd.Flags().GetBool("print")
		step, _ := cmd.Flags().GetBool("step")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		// Also use no-tui mode when output is being piped
		if !term.IsTerminal(os.Stdout.Fd()) {
			noTUI = true
			os.Setenv("LOLVM_NO_COLOR", "1")
		}

		out := cmd.OutOrStdout()
		if printListing {
			fmt.Fprint(out, colorize.Listing(disasm.Disassemble(program).String()))
		}

		opts, cleanup, err := machineOptions(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		switch {
		case jsonOutput:
			return runJSON(out, file, program, opts)
		case step && noTUI:
			opts.Debug = out
			return runConsole(cmd.InOrStdin(), out, program, opts)
		case step:
			return runTUI(cmd.Context(), out, program, opts)
		default:
			opts.Debug = out
			return runProgram(program, opts)
		}
	},
}

// loadProgram reads file with the --max-size limit.
func loadProgram(cmd *cobra.Command, file string) ([]byte, error) {
	limit, _ := cmd.Flags().GetInt("max-size")
	program, err := loader.Load(file, limit)
	if err != nil {
		return nil, err
	}
	slog.Debug("Loaded program", "file", file, "bytes", len(program))
	return program, nil
}

// machineOptions builds the machine configuration from the persistent flags.
// The returned cleanup closes any trace file.
func machineOptions(cmd *cobra.Command) (vm.Options, func(), error) {
	stackSize, _ := cmd.Flags().GetInt("stack-size")
	callDepth, _ := cmd.Flags().GetInt("call-depth")
	unsafeMem, _ := cmd.Flags().GetBool("unsafe-host-memory")
	trace, _ := cmd.Flags().GetBool("trace")
	traceFile, _ := cmd.Flags().GetString("trace-file")

	opts := vm.Options{StackSize: stackSize, CallDepth: callDepth}
	if unsafeMem {
		slog.Warn("Raw memory access uses real host addresses")
		opts.Memory = hostmem.Host{}
	}

	cleanup := func() {}
	var tracers []vm.Tracer
	if trace {
		lg := log.NewTraceLogger(cmd.ErrOrStderr())
		tracers = append(tracers, vm.TracerFunc(func(ev vm.TraceEvent) {
			lg.Debug(ev.Op.String(), "step", ev.Step, "ip", ev.IP, "sp", ev.SP, "depth", ev.Depth)
		}))
	}
	if traceFile != "" {
		f, err := os.Create(traceFile)
		if err != nil {
			return opts, cleanup, fmt.Errorf("could not create trace file: %w", err)
		}
		cleanup = func() { f.Close() }
		tracers = append(tracers, vm.WriterTracer{W: f})
	}
	switch len(tracers) {
	case 0:
	case 1:
		opts.Tracer = tracers[0]
	default:
		opts.Tracer = vm.TracerFunc(func(ev vm.TraceEvent) {
			for _, t := range tracers {
				t.Trace(ev)
			}
		})
	}
	return opts, cleanup, nil
}

func runProgram(program []byte, opts vm.Options) error {
	m := vm.New(program, opts)
	err := m.Run()
	slog.Debug("Machine stopped", "ip", m.IP(), "sp", m.SP(), "steps", m.Steps(), "error", err)
	return err
}

func runJSON(w io.Writer, file string, program []byte, opts vm.Options) error {
	var output bytes.Buffer
	opts.Debug = &output

	m := vm.New(program, opts)
	runErr := m.Run()

	report := Report{
		File:   file,
		State:  m.State(),
		Output: []string{},
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}
	if s := strings.TrimSuffix(output.String(), "\n"); s != "" {
		report.Output = strings.Split(s, "\n")
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return runErr
}

func runConsole(in io.Reader, out io.Writer, program []byte, opts vm.Options) error {
	m := vm.New(program, opts)

	var reader console.LineReader
	if f, ok := in.(*os.File); ok && term.IsTerminal(f.Fd()) {
		rl, err := console.OpenTerminal()
		if err != nil {
			return fmt.Errorf("failed to start readline: %w", err)
		}
		defer rl.Close()
		reader = rl
	} else {
		reader = console.NewScannerReader(in)
	}
	return console.New(m, reader, out).Run()
}

func runTUI(ctx context.Context, out io.Writer, program []byte, opts vm.Options) error {
	var output bytes.Buffer
	opts.Debug = &output

	m := vm.New(program, opts)
	err := stepper.Run(ctx, stepper.New(m, &output))

	// The alternate screen is gone; show what the program printed.
	fmt.Fprint(out, output.String())
	var fault *vm.Fault
	if err != nil && !errors.As(err, &fault) {
		slog.Error("TUI run error", "error", err)
	}
	return err
}

func Execute() {
	// Check if --no-tui or --json flag is present, or if output is being piped
	// to bypass fang's markdown rendering
	noTUI := false
	for _, arg := range os.Args[1:] {
		if arg == "--no-tui" || arg == "-n" || arg == "--json" || arg == "-j" {
			noTUI = true
			break
		}
	}

	// Also bypass fang when output is being piped
	if !noTUI && !term.IsTerminal(os.Stdout.Fd()) {
		noTUI = true
	}

	if noTUI {
		// Use cobra directly to avoid fang's automatic markdown rendering
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
	} else {
		// Use fang for enhanced CLI experience with markdown rendering
		if err := fang.Execute(
			context.Background(),
			rootCmd,
			fang.WithNotifySignal(os.Interrupt),
		); err != nil {
			os.Exit(1)
		}
	}
}
