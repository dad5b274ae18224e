package isa

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrOperandCount    = errors.New("wrong number of operands")
	ErrOperandRange    = errors.New("operand out of range")
	ErrUnknownOpcode   = errors.New("unknown opcode")
	ErrUnresolvedLabel = errors.New("unresolved label")
	ErrLabelResolved   = errors.New("label already marked")
)

// Builder assembles a program one instruction at a time. The first encoding
// error is kept and reported by Program; later emits are ignored.
type Builder struct {
	buf    []byte
	err    error
	labels []*Label
}

func NewBuilder() *Builder {
	return &Builder{buf: make([]byte, 0, 64)}
}

// Bytes returns the bytes emitted so far, including unpatched placeholders.
func (b *Builder) Bytes() []byte {
	return b.buf
}

// Len returns the current program length, which is the offset of the next
// instruction.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Err returns the first error recorded by the builder.
func (b *Builder) Err() error {
	return b.err
}

// Program returns the finished program. It fails if any emit failed or any
// label was referenced but never marked.
func (b *Builder) Program() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	for _, l := range b.labels {
		if !l.resolved && len(l.refs) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedLabel, l.name)
		}
	}
	return b.buf, nil
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Raw appends bytes verbatim.
func (b *Builder) Raw(data ...byte) *Builder {
	if b.err == nil {
		b.buf = append(b.buf, data...)
	}
	return b
}

// Emit appends op with its operands in table order. Signed and unsigned
// values are accepted for every kind as long as they fit its width.
func (b *Builder) Emit(op Opcode, args ...int64) *Builder {
	if b.err != nil {
		return b
	}
	if !op.Valid() {
		b.fail(fmt.Errorf("%w: %#02x", ErrUnknownOpcode, byte(op)))
		return b
	}
	info := table[op]
	if len(args) != len(info.Operands) {
		b.fail(fmt.Errorf("%w: %s takes %d, got %d", ErrOperandCount, info.Name, len(info.Operands), len(args)))
		return b
	}
	start := len(b.buf)
	b.buf = append(b.buf, byte(op))
	for i, k := range info.Operands {
		if err := checkRange(k, args[i]); err != nil {
			b.buf = b.buf[:start]
			b.fail(fmt.Errorf("%s operand %d: %w", info.Name, i, err))
			return b
		}
		b.buf = appendOperand(b.buf, k, args[i])
	}
	return b
}

// SetF32 stores a float32 constant with SETI_32.
func (b *Builder) SetF32(dest int16, v float32) *Builder {
	return b.Emit(OpSetI32, int64(dest), int64(math.Float32bits(v)))
}

// SetF64 stores a float64 constant with SETI_64.
func (b *Builder) SetF64(dest int16, v float64) *Builder {
	return b.Emit(OpSetI64, int64(dest), int64(math.Float64bits(v)))
}

func checkRange(k OperandKind, v int64) error {
	var lo, hi int64
	switch k {
	case Slot, Bump, Delta:
		lo, hi = math.MinInt16, math.MaxInt16
	case Imm8:
		lo, hi = math.MinInt8, math.MaxUint8
	case Imm32:
		lo, hi = math.MinInt32, math.MaxUint32
	case Size, Target:
		lo, hi = 0, math.MaxUint32
	case Imm64:
		return nil
	}
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s %d", ErrOperandRange, k, v)
	}
	return nil
}

func appendOperand(buf []byte, k OperandKind, v int64) []byte {
	switch k.Width() {
	case 1:
		return append(buf, byte(v))
	case 2:
		return binary.LittleEndian.AppendUint16(buf, uint16(v))
	case 4:
		return binary.LittleEndian.AppendUint32(buf, uint32(v))
	default:
		return binary.LittleEndian.AppendUint64(buf, uint64(v))
	}
}

func putOperand(dst []byte, k OperandKind, v int64) {
	switch k.Width() {
	case 1:
		dst[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	default:
		binary.LittleEndian.PutUint64(dst, uint64(v))
	}
}

// Label is a program position that may be referenced before it is marked.
type Label struct {
	name     string
	resolved bool
	position int
	refs     []labelRef
}

type labelRef struct {
	at   int // offset of the operand field
	base int // start of the referencing instruction
	kind OperandKind
}

// Position returns the marked offset. It is only meaningful once marked.
func (l *Label) Position() (int, bool) {
	return l.position, l.resolved
}

// NewLabel creates an unmarked label.
func (b *Builder) NewLabel(name string) *Label {
	l := &Label{name: name}
	b.labels = append(b.labels, l)
	return l
}

// Mark binds the label to the current position and patches every pending
// reference to it.
func (b *Builder) Mark(l *Label) *Builder {
	if b.err != nil {
		return b
	}
	if l.resolved {
		b.fail(fmt.Errorf("%w: %s", ErrLabelResolved, l.name))
		return b
	}
	l.resolved = true
	l.position = len(b.buf)
	for _, ref := range l.refs {
		b.patch(l, ref)
	}
	l.refs = nil
	return b
}

func (b *Builder) patch(l *Label, ref labelRef) {
	v := int64(l.position)
	if ref.kind == Delta {
		v -= int64(ref.base)
	}
	if err := checkRange(ref.kind, v); err != nil {
		b.fail(fmt.Errorf("label %s: %w", l.name, err))
		return
	}
	putOperand(b.buf[ref.at:], ref.kind, v)
}

// emitRef appends op whose last operand refers to l. The leading operands
// are encoded as in Emit.
func (b *Builder) emitRef(op Opcode, l *Label, lead ...int64) *Builder {
	if b.err != nil {
		return b
	}
	info := table[op]
	start := len(b.buf)
	args := append(lead, 0)
	b.Emit(op, args...)
	if b.err != nil {
		return b
	}
	last := len(info.Operands) - 1
	ref := labelRef{at: start + info.Offset(last), base: start, kind: info.Operands[last]}
	if l.resolved {
		b.patch(l, ref)
	} else {
		l.refs = append(l.refs, ref)
	}
	return b
}

// EmitBranch appends an unconditional BRANCH to l.
func (b *Builder) EmitBranch(l *Label) *Builder {
	return b.emitRef(OpBranch, l)
}

// EmitBranchIf appends BRANCH_Z or BRANCH_NZ testing the byte at cond.
func (b *Builder) EmitBranchIf(op Opcode, cond int16, l *Label) *Builder {
	if op != OpBranchZ && op != OpBranchNZ {
		b.fail(fmt.Errorf("%w: %s is not a conditional branch", ErrUnknownOpcode, op))
		return b
	}
	return b.emitRef(op, l, int64(cond))
}

// EmitCall appends a CALL to l that bumps the stack pointer by bump.
func (b *Builder) EmitCall(bump int16, l *Label) *Builder {
	return b.emitRef(OpCall, l, int64(bump))
}
