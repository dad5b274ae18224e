package vm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lolvm/internal/isa"
)

func requireFault(t *testing.T, err error, sentinel error, ip int) *Fault {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	var f *Fault
	require.True(t, errors.As(err, &f), "want *Fault, got %T", err)
	assert.Equal(t, ip, f.IP)
	return f
}

func TestFaults(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		opts     Options
		sentinel error
		ip       int
	}{
		{"invalid opcode", ".byte 0xee", Options{}, ErrInvalidOpcode, 0},
		{"invalid opcode after halt-free prefix", "SETI_8 @0, 1\n.byte 0x37", Options{}, ErrInvalidOpcode, 4},
		{"stack past end", "SETI_32 @1022, 1", Options{}, ErrStackOutOfBounds, 0},
		{"negative stack index", "COPY_8 @0, @-1", Options{}, ErrStackOutOfBounds, 0},
		{"size past end", "COPY_N @0, @8, 1017", Options{}, ErrStackOutOfBounds, 0},
		{"huge size", "LOAD_N @0, @8, 0xffffffff", Options{}, ErrStackOutOfBounds, 0},
		{"bump past end", "CALL 1025, 0", Options{}, ErrStackOutOfBounds, 0},
		{"bump below zero", "CALL -1, 0", Options{}, ErrStackOutOfBounds, 0},
		{"call overflow", "fn: CALL 0, fn", Options{CallDepth: 4}, ErrCallStackOverflow, 0},
		{"return underflow", "RETURN", Options{}, ErrCallStackUnderflow, 0},
		{"empty program", "", Options{}, ErrProgramOutOfBounds, 0},
		{"truncated operands", ".byte 0x01, 0x04, 0x00", Options{}, ErrProgramOutOfBounds, 0},
		{"runs off the end", "SETI_8 @0, 1", Options{}, ErrProgramOutOfBounds, 4},
		{"call outside program", "CALL 0, 1000", Options{}, ErrProgramOutOfBounds, 1000},
		{"branch before start", "BRANCH -5", Options{}, ErrProgramOutOfBounds, -5},
		{"load outside stack", "SETI_64 @0, 0x1234\nLOAD_32 @8, @0", Options{}, ErrRawMemoryFault, 11},
		{"load straddling stack end", "REF @0, @1022\nLOAD_32 @8, @0", Options{}, ErrRawMemoryFault, 5},
		{"store through zero", "STORE_8 @0, @8", Options{}, ErrRawMemoryFault, 0},
		{"small stack", "SETI_64 @12, 1", Options{StackSize: 16}, ErrStackOutOfBounds, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := isa.Assemble(tt.src)
			require.NoError(t, err)

			m := New(prog, tt.opts)
			err = m.Run()
			requireFault(t, err, tt.sentinel, tt.ip)
			assert.True(t, m.Halted())
			assert.Equal(t, err, m.Err())

			// The fault is sticky.
			steps := m.Steps()
			assert.Equal(t, err, m.Step())
			assert.Equal(t, steps, m.Steps())
		})
	}
}

func TestFaultLeavesStateUntouched(t *testing.T) {
	prog, err := isa.Assemble(`
		SETI_32 @0, 7
		ADD_32  @0, @0, @1021
		HALT`)
	require.NoError(t, err)

	m := New(prog, Options{})
	require.NoError(t, m.Step())
	before := m.State()
	stack := m.Stack()

	requireFault(t, m.Step(), ErrStackOutOfBounds, 7)
	after := m.State()
	assert.Equal(t, before.IP, after.IP)
	assert.Equal(t, before.SP, after.SP)
	assert.Equal(t, before.Steps, after.Steps)
	assert.Equal(t, stack, m.Stack())
	assert.True(t, after.Halted)
}

func TestCallOverflowDepth(t *testing.T) {
	prog, err := isa.Assemble("fn: CALL 4, fn")
	require.NoError(t, err)

	m := New(prog, Options{CallDepth: 3})
	requireFault(t, m.Run(), ErrCallStackOverflow, 0)
	assert.Equal(t, 3, m.Depth())
	assert.Equal(t, 12, m.SP())
	assert.Equal(t, uint64(3), m.Steps())
}

func TestFaultMessage(t *testing.T) {
	m := New([]byte{0xee}, Options{})
	err := m.Run()
	assert.Equal(t, "fault at 0x0000: invalid opcode: byte 0xee", err.Error())

	m = New([]byte{byte(isa.OpReturn)}, Options{})
	err = m.Run()
	assert.Equal(t, "fault at 0x0000 (RETURN): call stack underflow", err.Error())
}
