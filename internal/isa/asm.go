package isa

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ErrSyntax marks assembler input that could not be parsed.
var ErrSyntax = errors.New("syntax error")

// LineError attaches a source line number to an assembler error.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Assemble translates lolvm assembly text into a program.
//
// Each line holds an optional "label:" followed by an optional instruction.
// Text after ';' is a comment. Operands are separated by commas; stack
// offsets may be written as "@4" or "4". Immediates accept decimal, hex
// (0x), negative and float literals, the latter stored as their IEEE bit
// pattern. CALL targets and branch displacements may name a label. The
// ".byte" directive emits raw bytes.
func Assemble(src string) ([]byte, error) {
	b := NewBuilder()
	labels := make(map[string]*Label)
	firstUse := make(map[string]int)

	label := func(name string, line int) *Label {
		l, ok := labels[name]
		if !ok {
			l = b.NewLabel(name)
			labels[name] = l
		}
		if _, seen := firstUse[name]; !seen {
			firstUse[name] = line
		}
		return l
	}

	sc := bufio.NewScanner(strings.NewReader(src))
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, ';'); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)

		if i := strings.IndexByte(text, ':'); i >= 0 {
			name := strings.TrimSpace(text[:i])
			if !isIdent(name) {
				return nil, &LineError{line, fmt.Errorf("%w: bad label %q", ErrSyntax, name)}
			}
			l, ok := labels[name]
			if !ok {
				l = b.NewLabel(name)
				labels[name] = l
			}
			b.Mark(l)
			if err := b.Err(); err != nil {
				return nil, &LineError{line, err}
			}
			text = strings.TrimSpace(text[i+1:])
		}
		if text == "" {
			continue
		}

		if err := assembleLine(b, text, func(name string) *Label { return label(name, line) }); err != nil {
			return nil, &LineError{line, err}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	for name, l := range labels {
		if _, ok := l.Position(); !ok {
			return nil, &LineError{firstUse[name], fmt.Errorf("%w: %s", ErrUnresolvedLabel, name)}
		}
	}
	return b.Program()
}

func assembleLine(b *Builder, text string, label func(string) *Label) error {
	mnemonic, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		mnemonic, rest = text[:i], text[i:]
	}
	mnemonic = strings.ToUpper(mnemonic)
	args := splitArgs(rest)

	if mnemonic == ".BYTE" {
		if len(args) == 0 {
			return fmt.Errorf("%w: .byte needs at least one value", ErrSyntax)
		}
		for _, a := range args {
			v, err := strconv.ParseUint(a, 0, 8)
			if err != nil {
				return fmt.Errorf("%w: bad byte %q", ErrSyntax, a)
			}
			b.Raw(byte(v))
		}
		return nil
	}

	op, ok := ByName(mnemonic)
	if !ok {
		return fmt.Errorf("%w: unknown mnemonic %q", ErrSyntax, mnemonic)
	}
	info := table[op]
	if len(args) != len(info.Operands) {
		return fmt.Errorf("%w: %s takes %d operands, got %d", ErrOperandCount, info.Name, len(info.Operands), len(args))
	}

	vals := make([]int64, 0, len(args))
	for i, k := range info.Operands {
		last := i == len(info.Operands)-1
		if last && (k == Target || k == Delta) && isIdent(args[i]) {
			b.emitRef(op, label(args[i]), vals...)
			return b.Err()
		}
		v, err := parseOperand(k, args[i])
		if err != nil {
			return err
		}
		vals = append(vals, v)
	}
	b.Emit(op, vals...)
	return b.Err()
}

func splitArgs(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseOperand(k OperandKind, s string) (int64, error) {
	if k == Slot || k == Bump {
		s = strings.TrimPrefix(s, "@")
	}
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, nil
	}
	switch k {
	case Imm64:
		if v, err := strconv.ParseUint(s, 0, 64); err == nil {
			return int64(v), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(math.Float64bits(f)), nil
		}
	case Imm32:
		if f, err := strconv.ParseFloat(s, 32); err == nil {
			return int64(math.Float32bits(float32(f))), nil
		}
	}
	return 0, fmt.Errorf("%w: bad %s operand %q", ErrSyntax, k, s)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && (r == '.' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}
