// Package stepper is the interactive single-step console for a lolvm
// machine. It shows the listing with the next instruction highlighted, the
// machine registers and the program's debug output.
package stepper

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"lolvm/internal/disasm"
	"lolvm/internal/lolvm/styles"
	"lolvm/internal/ui/colorize"
	"lolvm/internal/vm"
)

// runSlice bounds how many instructions run between redraws in run mode.
const runSlice = 4096

// panelWidth is the width of the register panel on the right.
const panelWidth = 36

type runMsg struct{}

// Model is a bubbletea model driving one machine.
type Model struct {
	machine *vm.Machine
	listing disasm.Stream
	output  fmt.Stringer

	viewport viewport.Model
	width    int
	height   int
	running  bool
	quitting bool
}

// New returns a console for m. output, when not nil, holds the machine's
// debug output and is shown below the registers.
func New(m *vm.Machine, output fmt.Stringer) *Model {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(20)

	model := &Model{
		machine:  m,
		listing:  disasm.Disassemble(m.Program()),
		output:   output,
		viewport: vp,
		width:    80 + panelWidth,
		height:   22,
	}
	model.refresh()
	return model
}

// Machine returns the machine being stepped.
func (m *Model) Machine() *vm.Machine { return m.machine }

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if msg.Width != m.width || msg.Height != m.height {
			m.width = msg.Width
			m.height = msg.Height
			m.viewport.SetWidth(max(msg.Width-panelWidth, 20))
			m.viewport.SetHeight(max(msg.Height-2, 1))
			m.refresh()
		}
		return m, nil

	case runMsg:
		if !m.running {
			return m, nil
		}
		m.machine.RunN(runSlice)
		if m.machine.Halted() {
			m.running = false
		}
		m.refresh()
		if m.running {
			return m, continueRun
		}
		return m, nil

	case tea.KeyMsg:
		switch m.handleKey(msg.String()) {
		case actionQuit:
			return m, tea.Quit
		case actionRun:
			return m, continueRun
		case actionHandled:
			return m, nil
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func continueRun() tea.Msg { return runMsg{} }

type action int

const (
	actionNone action = iota
	actionHandled
	actionRun
	actionQuit
)

// handleKey applies a key press to the machine.
func (m *Model) handleKey(key string) action {
	switch key {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return actionQuit
	case "enter", "n", "c", "space", "s":
		// Any stepping key pauses a run in progress.
		m.running = false
		m.machine.Step()
		m.refresh()
		return actionHandled
	case "r":
		if m.machine.Halted() {
			return actionHandled
		}
		m.running = !m.running
		if m.running {
			return actionRun
		}
		return actionHandled
	}
	return actionNone
}

// refresh rebuilds the listing and keeps the next instruction in view.
func (m *Model) refresh() {
	ip := m.machine.IP()
	current := -1
	lines := make([]string, len(m.listing))
	for i, in := range m.listing {
		line := in.String()
		switch {
		case in.Offset == ip && !m.machine.Halted():
			current = i
			lines[i] = styles.Current.Render("> " + line)
		case in.Offset == ip:
			current = i
			lines[i] = styles.Halted.Render("= " + line)
		case !in.Valid:
			lines[i] = "  " + styles.Invalid.Render(line)
		default:
			lines[i] = "  " + colorize.ColorizeInstructionLine(line)
		}
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	if current >= 0 {
		m.viewport.SetYOffset(max(current-m.viewport.Height()/2, 0))
	}
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	content := lipgloss.JoinHorizontal(lipgloss.Top,
		m.viewport.View(),
		lipgloss.NewStyle().Width(panelWidth).Render(m.panel()),
	)
	return content + "\n" + styles.StatusBar.Width(m.width).Render(m.status())
}

// panel renders the registers, call frames and debug output.
func (m *Model) panel() string {
	rendered, err := renderState(m.machine, panelWidth)
	if err != nil {
		rendered = stateMarkdown(m.machine)
	}
	var sb strings.Builder
	sb.WriteString(strings.TrimSuffix(rendered, "\n"))
	if fault := m.machine.Err(); fault != nil {
		sb.WriteString("\n\n")
		sb.WriteString(styles.Fault.Width(panelWidth).Render(fault.Error()))
	}
	if m.output != nil {
		if out := lastLines(m.output.String(), 8); out != "" {
			sb.WriteString("\n\n")
			sb.WriteString(out)
		}
	}
	return sb.String()
}

func (m *Model) status() string {
	switch {
	case m.machine.Err() != nil:
		return " faulted • Q: quit "
	case m.machine.Halted():
		return " halted • Q: quit "
	case m.running:
		return " running • R: pause • Enter: step • Q: quit "
	default:
		return " Enter/N: step • R: run • Q: quit "
	}
}

func renderState(machine *vm.Machine, width int) (string, error) {
	r := styles.GetMarkdownRenderer(width)
	if r == nil {
		return "", fmt.Errorf("no markdown renderer")
	}
	return r.Render(stateMarkdown(machine))
}

// stateMarkdown describes the machine registers as markdown.
func stateMarkdown(machine *vm.Machine) string {
	st := machine.State()
	var sb strings.Builder
	sb.WriteString("## Machine\n\n")
	fmt.Fprintf(&sb, "- **ip** `0x%04x`\n", st.IP)
	fmt.Fprintf(&sb, "- **sp** `%d`\n", st.SP)
	fmt.Fprintf(&sb, "- **depth** `%d/%d`\n", st.Depth, machine.CallCapacity())
	fmt.Fprintf(&sb, "- **steps** `%d`\n", st.Steps)
	if len(st.Frames) > 0 {
		sb.WriteString("\n## Frames\n\n")
		for i := len(st.Frames) - 1; i >= 0; i-- {
			f := st.Frames[i]
			fmt.Fprintf(&sb, "- sp `%d` ret `0x%04x`\n", f.SP, f.ReturnIP)
		}
	}
	return sb.String()
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// Run shows m on the alternate screen until the user quits. It returns the
// fault that halted the machine, if any, so callers can report it after the
// screen closes.
func Run(ctx context.Context, m *Model) error {
	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return m.machine.Err()
}
