package styles

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

// Styles for the single-step console.
var (
	// Line about to execute.
	Current = lipgloss.NewStyle().
		Foreground(lipgloss.Color(charmtone.Zest.Hex())).
		Bold(true)

	// Bytes that do not decode to an instruction.
	Invalid = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))

	StatusBar = lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1)

	Fault = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FF5F87")).
		Bold(true)

	Halted = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Guac.Hex()))
)
