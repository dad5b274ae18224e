package isa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstructionLengths(t *testing.T) {
	want := map[Opcode]int{
		OpSetI8: 4, OpSetI32: 7, OpSetI64: 11,
		OpCopy8: 5, OpCopy32: 5, OpCopy64: 5, OpCopyN: 9,
		OpAdd8: 7, OpAdd32: 7, OpAdd64: 7, OpAddF32: 7, OpAddF64: 7,
		OpAddI8: 6, OpAddI32: 9, OpAddI64: 13,
		OpEq8: 7, OpEq32: 7, OpEq64: 7, OpEqF32: 7, OpEqF64: 7,
		OpNeq8: 7, OpNeq32: 7, OpNeq64: 7, OpNeqF32: 7, OpNeqF64: 7,
		OpLtU8: 7, OpLtI32: 7, OpLtI64: 7, OpLtF32: 7, OpLtF64: 7,
		OpLeU8: 7, OpLeI32: 7, OpLeI64: 7, OpLeF32: 7, OpLeF64: 7,
		OpRef:   5,
		OpLoad8: 5, OpLoad32: 5, OpLoad64: 5, OpLoadN: 9,
		OpStore8: 5, OpStore32: 5, OpStore64: 5, OpStoreN: 9,
		OpCall: 7, OpReturn: 1, OpBranch: 3, OpBranchZ: 5, OpBranchNZ: 5,
		OpDbgPrintU8: 3, OpDbgPrintI32: 3, OpDbgPrintI64: 3, OpDbgPrintF32: 3, OpDbgPrintF64: 3,
		OpHalt: 1,
	}
	require.Len(t, want, int(numOpcodes), "every opcode needs an expected length")

	for _, op := range Opcodes() {
		assert.Equal(t, want[op], op.Len(), op.String())
		info, ok := Lookup(byte(op))
		require.True(t, ok)
		assert.Equal(t, op.Len(), info.Len)
	}
}

func TestByNameCoversTable(t *testing.T) {
	for _, op := range Opcodes() {
		got, ok := ByName(op.String())
		require.True(t, ok, op.String())
		assert.Equal(t, op, got)
	}
	_, ok := ByName("BEGIN_FRAME")
	assert.False(t, ok)
}

func TestInvalidOpcode(t *testing.T) {
	_, ok := Lookup(byte(numOpcodes))
	assert.False(t, ok)
	_, ok = Lookup(0xff)
	assert.False(t, ok)

	op := Opcode(0xff)
	assert.False(t, op.Valid())
	assert.Equal(t, "UNKNOWN_FF", op.String())
	assert.Equal(t, 0, op.Len())
}

func TestInfoOffset(t *testing.T) {
	info := OpAddI64.Info()
	assert.Equal(t, 1, info.Offset(0))
	assert.Equal(t, 3, info.Offset(1))
	assert.Equal(t, 5, info.Offset(2))

	call := OpCall.Info()
	assert.Equal(t, 3, call.Offset(1))
}

func TestControlFlow(t *testing.T) {
	for _, op := range []Opcode{OpCall, OpReturn, OpBranch, OpBranchZ, OpBranchNZ} {
		assert.True(t, op.IsControlFlow(), op.String())
	}
	assert.False(t, OpHalt.IsControlFlow())
	assert.False(t, OpAdd32.IsControlFlow())
}
