// Package colorize applies terminal syntax highlighting to lolvm listings.
// Setting LOLVM_NO_COLOR to any value disables it.
package colorize

import (
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

const (
	grey  = "\033[38;2;79;79;79m"
	dim   = "\033[38;2;124;156;157m"
	reset = "\033[0m"
)

// Enabled reports whether colour output is on.
func Enabled() bool {
	return os.Getenv("LOLVM_NO_COLOR") == ""
}

// getAssemblyLexer returns an assembly lexer with fallbacks. NASM handles
// ';' comments and bare numbers the way lolvm listings write them.
func getAssemblyLexer() chroma.Lexer {
	for _, name := range []string{"nasm", "gas"} {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getDisasmStyle returns the disassembly style with fallbacks
func getDisasmStyle() *chroma.Style {
	for _, name := range []string{"lolvm-dark", "dracula", "monokai"} {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Source colours assembler source text.
func Source(code string) (string, error) {
	if !Enabled() {
		return code, nil
	}
	return highlight(code)
}

// Listing colours a disassembly listing line by line.
func Listing(listing string) string {
	if !Enabled() {
		return listing
	}
	lines := strings.Split(listing, "\n")
	for i, line := range lines {
		lines[i] = ColorizeInstructionLine(line)
	}
	return strings.Join(lines, "\n")
}

// ColorizeInstructionLine colours a single listing line while preserving
// its spacing. The expected shape is "offset  rawbytes  TEXT ; note"; other
// lines are highlighted as plain assembly.
func ColorizeInstructionLine(line string) string {
	if !Enabled() || strings.TrimSpace(line) == "" {
		return line
	}

	offEnd := strings.IndexByte(line, ' ')
	if offEnd <= 0 || !isHex(line[:offEnd]) {
		return colorizeFullLine(line)
	}
	rawStart := skipSpaces(line, offEnd)
	rawEnd := rawStart + strings.IndexByte(line[rawStart:]+" ", ' ')
	if !isHex(line[rawStart:rawEnd]) {
		return colorizeFullLine(line)
	}
	textStart := skipSpaces(line, rawEnd)

	var sb strings.Builder
	sb.WriteString(grey + line[:offEnd] + reset)
	sb.WriteString(line[offEnd:rawStart])
	sb.WriteString(dim + line[rawStart:rawEnd] + reset)
	sb.WriteString(line[rawEnd:textStart])
	if textStart < len(line) {
		sb.WriteString(colorizeFullLine(line[textStart:]))
	}
	return sb.String()
}

// colorizeFullLine uses Chroma to colorize an assembly line
func colorizeFullLine(line string) string {
	out, err := highlight(line)
	if err != nil {
		return line
	}
	return out
}

func highlight(code string) (string, error) {
	lexer := getAssemblyLexer()
	if lexer == nil {
		return code, nil
	}

	// Make sure our custom style is registered
	_ = LolvmDark

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}
	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return code, err
	}

	out := buf.String()
	// Lexers terminate their token stream with a newline.
	if !strings.HasSuffix(code, "\n") {
		if i := strings.LastIndexByte(out, '\n'); i >= 0 && strings.TrimSpace(StripANSI(out[i:])) == "" {
			out = out[:i] + out[i+1:]
		}
	}
	return out, nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !((ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')) {
			return false
		}
	}
	return true
}

func skipSpaces(s string, i int) int {
	for i < len(s) && s[i] == ' ' {
		i++
	}
	return i
}

// StripANSI removes ANSI escape sequences.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false

	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
		} else if inEscape {
			if r == 'm' {
				inEscape = false
			}
		} else {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// VisibleWidth returns the number of printed characters in s.
func VisibleWidth(s string) int {
	return len([]rune(StripANSI(s)))
}
