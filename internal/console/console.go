// Package console is the line-oriented single-step console. It prints the
// next instruction and waits for a command before executing it.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"lolvm/internal/disasm"
	"lolvm/internal/vm"
)

// LineReader supplies console commands one line at a time.
type LineReader interface {
	Readline() (string, error)
}

// OpenTerminal starts a readline session with history on the terminal.
func OpenTerminal() (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          "(lolvm) ",
		HistoryFile:     filepath.Join(os.TempDir(), "lolvm_history.txt"),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
}

// ScannerReader reads commands from a plain stream such as a pipe.
type ScannerReader struct {
	s *bufio.Scanner
}

func NewScannerReader(r io.Reader) *ScannerReader {
	return &ScannerReader{s: bufio.NewScanner(r)}
}

func (r *ScannerReader) Readline() (string, error) {
	if r.s.Scan() {
		return r.s.Text(), nil
	}
	if err := r.s.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

const help = `commands:
  continue, c, n, <enter>   execute one instruction
  run, r                   run until the machine halts
  state, i                 show registers and call frames
  quit, q                  leave the console
`

// Console steps a machine under the control of a LineReader.
type Console struct {
	machine *vm.Machine
	in      LineReader
	out     io.Writer
}

func New(m *vm.Machine, in LineReader, out io.Writer) *Console {
	return &Console{machine: m, in: in, out: out}
}

// Run reads commands until the machine halts or the input ends. It returns
// the fault that halted the machine, or nil after HALT or an early quit.
func (c *Console) Run() error {
	m := c.machine
	for !m.Halted() {
		fmt.Fprintln(c.out, disasm.Decode(m.Program(), m.IP()))

		line, err := c.in.Readline()
		if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read command: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "", "continue", "c", "n", "next", "s", "step":
			m.Step()
		case "run", "r":
			m.Run()
		case "state", "i", "info":
			c.printState()
		case "quit", "q", "exit":
			return nil
		case "help", "h", "?":
			fmt.Fprint(c.out, help)
		default:
			fmt.Fprintf(c.out, "unknown command %q, type help for a list\n", strings.TrimSpace(line))
		}
	}

	if err := m.Err(); err != nil {
		fmt.Fprintf(c.out, "%v\n", err)
		return err
	}
	fmt.Fprintf(c.out, "halted at 0x%04x after %d steps\n", m.IP(), m.Steps())
	return nil
}

func (c *Console) printState() {
	st := c.machine.State()
	fmt.Fprintf(c.out, "ip 0x%04x  sp %d  depth %d  steps %d\n", st.IP, st.SP, st.Depth, st.Steps)
	for i := len(st.Frames) - 1; i >= 0; i-- {
		fmt.Fprintf(c.out, "  #%d sp %d ret 0x%04x\n", i, st.Frames[i].SP, st.Frames[i].ReturnIP)
	}
}
