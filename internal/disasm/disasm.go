// Package disasm renders lolvm programs as text. Decoding never fails: bytes
// that do not form an instruction are shown as .byte data with a note.
package disasm

import (
	"fmt"
	"strings"

	"lolvm/internal/binread"
	"lolvm/internal/isa"
)

// Inst is one decoded instruction.
type Inst struct {
	Offset    int
	Op        isa.Opcode
	Raw       []byte
	Text      string // mnemonic and operands in assembler syntax
	Note      string
	Valid     bool
	Target    int // absolute destination of CALL and branches
	HasTarget bool
}

// Len returns the number of program bytes the instruction covers.
func (i Inst) Len() int {
	return len(i.Raw)
}

// String renders the instruction as a listing line:
// offset, raw bytes, text and an optional "; note".
func (i Inst) String() string {
	line := fmt.Sprintf("%04x  %-26x  %s", i.Offset, i.Raw, i.Text)
	if i.Note != "" {
		line = fmt.Sprintf("%-60s ; %s", line, i.Note)
	}
	return strings.TrimRight(line, " ")
}

type Stream []Inst

// At returns the index of the instruction starting at offset.
func (s Stream) At(offset int) (int, bool) {
	lo, hi := 0, len(s)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case s[mid].Offset == offset:
			return mid, true
		case s[mid].Offset < offset:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, false
}

func (s Stream) String() string {
	var sb strings.Builder
	for _, in := range s {
		sb.WriteString(in.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Decode decodes the instruction at pos. The returned length is zero only
// when pos is outside the program.
func Decode(program []byte, pos int) Inst {
	if pos < 0 || pos >= len(program) {
		return Inst{Offset: pos, Note: "outside program"}
	}

	op := isa.Opcode(program[pos])
	info, ok := isa.Lookup(program[pos])
	if !ok {
		return Inst{
			Offset: pos,
			Op:     op,
			Raw:    program[pos : pos+1],
			Text:   byteDirective(program[pos : pos+1]),
			Note:   "invalid opcode",
		}
	}
	if err := binread.Check(program, pos, info.Len); err != nil {
		raw := program[pos:]
		return Inst{
			Offset: pos,
			Op:     op,
			Raw:    raw,
			Text:   byteDirective(raw),
			Note:   fmt.Sprintf("truncated %s: needs %d bytes, %d left", info.Name, info.Len, len(raw)),
		}
	}

	in := Inst{
		Offset: pos,
		Op:     op,
		Raw:    program[pos : pos+info.Len],
		Valid:  true,
	}
	args := make([]string, len(info.Operands))
	for n, k := range info.Operands {
		at := pos + info.Offset(n)
		switch k {
		case isa.Slot:
			args[n] = fmt.Sprintf("@%d", binread.I16(program, at))
		case isa.Bump:
			args[n] = fmt.Sprintf("%d", binread.I16(program, at))
		case isa.Imm8:
			args[n] = fmt.Sprintf("%d", program[at])
		case isa.Imm32:
			args[n] = immediate(uint64(binread.U32(program, at)))
		case isa.Imm64:
			args[n] = immediate(binread.U64(program, at))
		case isa.Size:
			args[n] = fmt.Sprintf("%d", binread.U32(program, at))
		case isa.Target:
			in.Target = int(binread.U32(program, at))
			in.HasTarget = true
			args[n] = fmt.Sprintf("0x%04x", in.Target)
		case isa.Delta:
			d := binread.I16(program, at)
			in.Target = pos + int(d)
			in.HasTarget = true
			args[n] = fmt.Sprintf("%d", d)
			in.Note = fmt.Sprintf("-> 0x%04x", in.Target)
		}
	}
	in.Text = info.Name
	if len(args) > 0 {
		in.Text += " " + strings.Join(args, ", ")
	}
	if in.HasTarget && (in.Target < 0 || in.Target >= len(program)) {
		in.Note = strings.TrimSpace(in.Note + " outside program")
	}
	return in
}

// Disassemble decodes the whole program linearly from offset zero.
func Disassemble(program []byte) Stream {
	var s Stream
	for pos := 0; pos < len(program); {
		in := Decode(program, pos)
		s = append(s, in)
		pos += in.Len()
	}
	return s
}

func immediate(v uint64) string {
	if v >= 0x10000 {
		return fmt.Sprintf("0x%x", v)
	}
	return fmt.Sprintf("%d", v)
}

func byteDirective(raw []byte) string {
	parts := make([]string, len(raw))
	for i, b := range raw {
		parts[i] = fmt.Sprintf("0x%02x", b)
	}
	return ".byte " + strings.Join(parts, ", ")
}
