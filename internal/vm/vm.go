// Package vm executes lolvm programs.
//
// A Machine owns a fixed-size byte stack, a frame base (the stack pointer)
// and a bounded call stack. Every operand that names a stack location is a
// signed offset from the current stack pointer. CALL saves the caller's
// stack pointer and return address, then bumps the stack pointer to open
// the callee's frame; RETURN restores both.
//
// All buffers are allocated by New. Execution reports problems as a *Fault
// and halts; a halted machine does nothing further.
package vm

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"

	"lolvm/internal/binread"
	"lolvm/internal/isa"
)

const (
	DefaultStackSize = 1024
	DefaultCallDepth = 64
)

var le = binary.LittleEndian

// noOp marks faults raised before an opcode could be fetched.
const noOp = isa.Opcode(0xff)

// Options configures a Machine. Zero values select the defaults.
type Options struct {
	StackSize int
	CallDepth int

	// Memory backs REF, LOAD and STORE. Defaults to StackMemory.
	Memory RawMemory

	// Debug receives DBG_PRINT output. Defaults to io.Discard. Write errors
	// are ignored.
	Debug io.Writer

	// Tracer, when set, sees every instruction before it executes.
	Tracer Tracer
}

// Frame is a saved call record.
type Frame struct {
	SP       int `json:"sp"`
	ReturnIP int `json:"return_ip"`
}

// Machine is the state of one program run.
type Machine struct {
	program []byte
	ip      int
	sp      int
	stack   []byte
	frames  []Frame
	depth   int
	halted  bool
	err     error
	steps   uint64

	mem     RawMemory
	dbg     io.Writer
	tracer  Tracer
	scratch []byte
}

// New prepares a machine to run program from offset zero. The program is
// borrowed and must not be modified while the machine runs.
func New(program []byte, opts Options) *Machine {
	if opts.StackSize <= 0 {
		opts.StackSize = DefaultStackSize
	}
	if opts.CallDepth <= 0 {
		opts.CallDepth = DefaultCallDepth
	}
	if opts.Memory == nil {
		opts.Memory = StackMemory{}
	}
	if opts.Debug == nil {
		opts.Debug = io.Discard
	}
	return &Machine{
		program: program,
		stack:   make([]byte, opts.StackSize),
		frames:  make([]Frame, opts.CallDepth),
		mem:     opts.Memory,
		dbg:     opts.Debug,
		tracer:  opts.Tracer,
		scratch: make([]byte, 0, 64),
	}
}

func (m *Machine) IP() int           { return m.ip }
func (m *Machine) SP() int           { return m.sp }
func (m *Machine) Depth() int        { return m.depth }
func (m *Machine) Halted() bool      { return m.halted }
func (m *Machine) Steps() uint64     { return m.steps }
func (m *Machine) Program() []byte   { return m.program }
func (m *Machine) StackSize() int    { return len(m.stack) }
func (m *Machine) CallCapacity() int { return len(m.frames) }

// Err returns the fault that halted the machine, or nil.
func (m *Machine) Err() error { return m.err }

// Stack returns a copy of the stack.
func (m *Machine) Stack() []byte {
	return append([]byte(nil), m.stack...)
}

// Frames returns a copy of the live call records, outermost first.
func (m *Machine) Frames() []Frame {
	frames := make([]Frame, m.depth)
	copy(frames, m.frames)
	return frames
}

// State is a snapshot of the machine registers.
type State struct {
	IP     int     `json:"ip"`
	SP     int     `json:"sp"`
	Depth  int     `json:"depth"`
	Halted bool    `json:"halted"`
	Steps  uint64  `json:"steps"`
	Frames []Frame `json:"frames"`
}

func (m *Machine) State() State {
	return State{
		IP:     m.ip,
		SP:     m.sp,
		Depth:  m.depth,
		Halted: m.halted,
		Steps:  m.steps,
		Frames: m.Frames(),
	}
}

// Run steps the machine until it halts. It returns nil after HALT and the
// fault otherwise. A program that never halts never returns.
func (m *Machine) Run() error {
	for !m.halted {
		if err := m.Step(); err != nil {
			return err
		}
	}
	return m.err
}

// RunN executes at most n instructions and returns how many ran. Interactive
// drivers use it to run in slices.
func (m *Machine) RunN(n int) (int, error) {
	ran := 0
	for ran < n && !m.halted {
		if err := m.Step(); err != nil {
			return ran, err
		}
		ran++
	}
	return ran, nil
}

// Step executes one instruction. On a halted machine it does nothing and
// returns the fault that halted it, if any.
func (m *Machine) Step() error {
	if m.halted {
		return m.err
	}

	start := m.ip
	if start < 0 || start >= len(m.program) {
		return m.fault(start, noOp, fmt.Errorf("%w: ip 0x%04x, program length %d",
			ErrProgramOutOfBounds, start, len(m.program)))
	}
	op := isa.Opcode(m.program[start])
	info, ok := isa.Lookup(byte(op))
	if !ok {
		return m.fault(start, op, fmt.Errorf("%w: byte %#02x", ErrInvalidOpcode, byte(op)))
	}
	if binread.Check(m.program, start, info.Len) != nil {
		return m.fault(start, op, fmt.Errorf("%w: %s needs %d bytes at 0x%04x, program length %d",
			ErrProgramOutOfBounds, info.Name, info.Len, start, len(m.program)))
	}

	if m.tracer != nil {
		m.tracer.Trace(TraceEvent{Step: m.steps, IP: start, SP: m.sp, Depth: m.depth, Op: op})
	}
	if err := m.exec(op, start, start+info.Len); err != nil {
		return m.fault(start, op, err)
	}
	m.steps++
	return nil
}

func (m *Machine) fault(ip int, op isa.Opcode, err error) error {
	m.halted = true
	m.err = &Fault{Err: err, IP: ip, Op: op}
	return m.err
}

// cell resolves the stack operand encoded at program offset at to a slice of
// size bytes.
func (m *Machine) cell(at, size int) ([]byte, error) {
	off := int(binread.I16(m.program, at))
	idx := m.sp + off
	if size < 0 || idx < 0 || idx > len(m.stack)-size {
		return nil, fmt.Errorf("%w: %d bytes at @%d (sp %d, stack size %d)",
			ErrStackOutOfBounds, size, off, m.sp, len(m.stack))
	}
	return m.stack[idx : idx+size], nil
}

func (m *Machine) size(at int) int {
	n := binread.U32(m.program, at)
	if uint64(n) > math.MaxInt32 {
		return -1
	}
	return int(n)
}

// exec runs op, whose encoding spans program[start:next]. It either fails
// without touching machine state or completes the instruction, including
// the instruction pointer update.
func (m *Machine) exec(op isa.Opcode, start, next int) error {
	p := m.program
	var err error

	switch op {
	case isa.OpSetI8:
		err = m.set(start, p[start+3:start+4])
	case isa.OpSetI32:
		err = m.set(start, p[start+3:start+7])
	case isa.OpSetI64:
		err = m.set(start, p[start+3:start+11])

	case isa.OpCopy8:
		err = m.copy(start, 1)
	case isa.OpCopy32:
		err = m.copy(start, 4)
	case isa.OpCopy64:
		err = m.copy(start, 8)
	case isa.OpCopyN:
		err = m.copy(start, m.size(start+5))

	case isa.OpAdd8:
		err = m.binop(start, 1, func(d, a, b []byte) { d[0] = a[0] + b[0] })
	case isa.OpAdd32:
		err = m.binop(start, 4, func(d, a, b []byte) { le.PutUint32(d, le.Uint32(a)+le.Uint32(b)) })
	case isa.OpAdd64:
		err = m.binop(start, 8, func(d, a, b []byte) { le.PutUint64(d, le.Uint64(a)+le.Uint64(b)) })
	case isa.OpAddF32:
		err = m.binop(start, 4, func(d, a, b []byte) { putF32(d, f32(a)+f32(b)) })
	case isa.OpAddF64:
		err = m.binop(start, 8, func(d, a, b []byte) { putF64(d, f64(a)+f64(b)) })

	case isa.OpAddI8:
		err = m.addImm(start, p[start+5:start+6])
	case isa.OpAddI32:
		err = m.addImm(start, p[start+5:start+9])
	case isa.OpAddI64:
		err = m.addImm(start, p[start+5:start+13])

	case isa.OpEq8:
		err = m.compare(start, 1, func(a, b []byte) bool { return a[0] == b[0] })
	case isa.OpEq32:
		err = m.compare(start, 4, func(a, b []byte) bool { return le.Uint32(a) == le.Uint32(b) })
	case isa.OpEq64:
		err = m.compare(start, 8, func(a, b []byte) bool { return le.Uint64(a) == le.Uint64(b) })
	case isa.OpEqF32:
		err = m.compare(start, 4, func(a, b []byte) bool { return f32(a) == f32(b) })
	case isa.OpEqF64:
		err = m.compare(start, 8, func(a, b []byte) bool { return f64(a) == f64(b) })

	case isa.OpNeq8:
		err = m.compare(start, 1, func(a, b []byte) bool { return a[0] != b[0] })
	case isa.OpNeq32:
		err = m.compare(start, 4, func(a, b []byte) bool { return le.Uint32(a) != le.Uint32(b) })
	case isa.OpNeq64:
		err = m.compare(start, 8, func(a, b []byte) bool { return le.Uint64(a) != le.Uint64(b) })
	case isa.OpNeqF32:
		err = m.compare(start, 4, func(a, b []byte) bool { return f32(a) != f32(b) })
	case isa.OpNeqF64:
		err = m.compare(start, 8, func(a, b []byte) bool { return f64(a) != f64(b) })

	case isa.OpLtU8:
		err = m.compare(start, 1, func(a, b []byte) bool { return a[0] < b[0] })
	case isa.OpLtI32:
		err = m.compare(start, 4, func(a, b []byte) bool { return int32(le.Uint32(a)) < int32(le.Uint32(b)) })
	case isa.OpLtI64:
		err = m.compare(start, 8, func(a, b []byte) bool { return int64(le.Uint64(a)) < int64(le.Uint64(b)) })
	case isa.OpLtF32:
		err = m.compare(start, 4, func(a, b []byte) bool { return f32(a) < f32(b) })
	case isa.OpLtF64:
		err = m.compare(start, 8, func(a, b []byte) bool { return f64(a) < f64(b) })

	case isa.OpLeU8:
		err = m.compare(start, 1, func(a, b []byte) bool { return a[0] <= b[0] })
	case isa.OpLeI32:
		err = m.compare(start, 4, func(a, b []byte) bool { return int32(le.Uint32(a)) <= int32(le.Uint32(b)) })
	case isa.OpLeI64:
		err = m.compare(start, 8, func(a, b []byte) bool { return int64(le.Uint64(a)) <= int64(le.Uint64(b)) })
	case isa.OpLeF32:
		err = m.compare(start, 4, func(a, b []byte) bool { return f32(a) <= f32(b) })
	case isa.OpLeF64:
		err = m.compare(start, 8, func(a, b []byte) bool { return f64(a) <= f64(b) })

	case isa.OpRef:
		err = m.ref(start)

	case isa.OpLoad8:
		err = m.load(start, 1)
	case isa.OpLoad32:
		err = m.load(start, 4)
	case isa.OpLoad64:
		err = m.load(start, 8)
	case isa.OpLoadN:
		err = m.load(start, m.size(start+5))

	case isa.OpStore8:
		err = m.store(start, 1)
	case isa.OpStore32:
		err = m.store(start, 4)
	case isa.OpStore64:
		err = m.store(start, 8)
	case isa.OpStoreN:
		err = m.store(start, m.size(start+5))

	case isa.OpCall:
		return m.call(start, next)
	case isa.OpReturn:
		return m.ret()
	case isa.OpBranch:
		m.ip = start + int(binread.I16(p, start+1))
		return nil
	case isa.OpBranchZ, isa.OpBranchNZ:
		cond, err := m.cell(start+1, 1)
		if err != nil {
			return err
		}
		if (cond[0] == 0) == (op == isa.OpBranchZ) {
			m.ip = start + int(binread.I16(p, start+3))
		} else {
			m.ip = next
		}
		return nil

	case isa.OpDbgPrintU8, isa.OpDbgPrintI32, isa.OpDbgPrintI64, isa.OpDbgPrintF32, isa.OpDbgPrintF64:
		err = m.debugPrint(op, start)

	case isa.OpHalt:
		m.halted = true
		return nil

	default:
		return fmt.Errorf("%w: byte %#02x", ErrInvalidOpcode, byte(op))
	}

	if err != nil {
		return err
	}
	m.ip = next
	return nil
}

func (m *Machine) set(start int, imm []byte) error {
	dst, err := m.cell(start+1, len(imm))
	if err != nil {
		return err
	}
	copy(dst, imm)
	return nil
}

func (m *Machine) copy(start, n int) error {
	dst, err := m.cell(start+1, n)
	if err != nil {
		return err
	}
	src, err := m.cell(start+3, n)
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

func (m *Machine) binop(start, n int, f func(d, a, b []byte)) error {
	dst, err := m.cell(start+1, n)
	if err != nil {
		return err
	}
	a, err := m.cell(start+3, n)
	if err != nil {
		return err
	}
	b, err := m.cell(start+5, n)
	if err != nil {
		return err
	}
	f(dst, a, b)
	return nil
}

// addImm adds a little-endian immediate of the same width as the operands.
func (m *Machine) addImm(start int, imm []byte) error {
	n := len(imm)
	dst, err := m.cell(start+1, n)
	if err != nil {
		return err
	}
	a, err := m.cell(start+3, n)
	if err != nil {
		return err
	}
	switch n {
	case 1:
		dst[0] = a[0] + imm[0]
	case 4:
		le.PutUint32(dst, le.Uint32(a)+le.Uint32(imm))
	case 8:
		le.PutUint64(dst, le.Uint64(a)+le.Uint64(imm))
	}
	return nil
}

func (m *Machine) compare(start, n int, f func(a, b []byte) bool) error {
	dst, err := m.cell(start+1, 1)
	if err != nil {
		return err
	}
	a, err := m.cell(start+3, n)
	if err != nil {
		return err
	}
	b, err := m.cell(start+5, n)
	if err != nil {
		return err
	}
	if f(a, b) {
		dst[0] = 1
	} else {
		dst[0] = 0
	}
	return nil
}

func (m *Machine) ref(start int) error {
	dst, err := m.cell(start+1, 8)
	if err != nil {
		return err
	}
	if _, err := m.cell(start+3, 1); err != nil {
		return err
	}
	idx := m.sp + int(binread.I16(m.program, start+3))
	le.PutUint64(dst, m.mem.AddressOf(m.stack, idx))
	return nil
}

// load reads n bytes from the address held at the source operand.
func (m *Machine) load(start, n int) error {
	dst, err := m.cell(start+1, n)
	if err != nil {
		return err
	}
	ptr, err := m.cell(start+3, 8)
	if err != nil {
		return err
	}
	return m.mem.Load(m.stack, le.Uint64(ptr), dst)
}

// store writes n bytes from the source operand to the address held at the
// destination operand.
func (m *Machine) store(start, n int) error {
	ptr, err := m.cell(start+1, 8)
	if err != nil {
		return err
	}
	src, err := m.cell(start+3, n)
	if err != nil {
		return err
	}
	return m.mem.Store(m.stack, le.Uint64(ptr), src)
}

func (m *Machine) call(start, next int) error {
	if m.depth == len(m.frames) {
		return fmt.Errorf("%w: depth %d", ErrCallStackOverflow, m.depth)
	}
	bump := int(binread.I16(m.program, start+1))
	sp := m.sp + bump
	if sp < 0 || sp > len(m.stack) {
		return fmt.Errorf("%w: stack pointer %d bumped by %d (stack size %d)",
			ErrStackOutOfBounds, m.sp, bump, len(m.stack))
	}
	m.frames[m.depth] = Frame{SP: m.sp, ReturnIP: next}
	m.depth++
	m.sp = sp
	m.ip = int(binread.U32(m.program, start+3))
	return nil
}

func (m *Machine) ret() error {
	if m.depth == 0 {
		return ErrCallStackUnderflow
	}
	m.depth--
	f := m.frames[m.depth]
	m.sp = f.SP
	m.ip = f.ReturnIP
	return nil
}

func (m *Machine) debugPrint(op isa.Opcode, start int) error {
	width := 8
	switch op {
	case isa.OpDbgPrintU8:
		width = 1
	case isa.OpDbgPrintI32, isa.OpDbgPrintF32:
		width = 4
	}
	v, err := m.cell(start+1, width)
	if err != nil {
		return err
	}

	buf := append(m.scratch[:0], "DBG PRINT @"...)
	buf = strconv.AppendInt(buf, int64(binread.I16(m.program, start+1)), 10)
	buf = append(buf, ": "...)
	switch op {
	case isa.OpDbgPrintU8:
		buf = strconv.AppendUint(buf, uint64(v[0]), 10)
	case isa.OpDbgPrintI32:
		buf = strconv.AppendInt(buf, int64(int32(le.Uint32(v))), 10)
	case isa.OpDbgPrintI64:
		buf = strconv.AppendInt(buf, int64(le.Uint64(v)), 10)
	case isa.OpDbgPrintF32:
		buf = strconv.AppendFloat(buf, float64(f32(v)), 'g', -1, 32)
	case isa.OpDbgPrintF64:
		buf = strconv.AppendFloat(buf, f64(v), 'g', -1, 64)
	}
	buf = append(buf, '\n')
	m.scratch = buf[:0]
	_, _ = m.dbg.Write(buf)
	return nil
}

func f32(b []byte) float32 { return math.Float32frombits(le.Uint32(b)) }
func f64(b []byte) float64 { return math.Float64frombits(le.Uint64(b)) }

func putF32(b []byte, v float32) { le.PutUint32(b, math.Float32bits(v)) }
func putF64(b []byte, v float64) { le.PutUint64(b, math.Float64bits(v)) }
