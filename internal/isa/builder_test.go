package isa

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitEncoding(t *testing.T) {
	tests := []struct {
		name string
		op   Opcode
		args []int64
		want []byte
	}{
		{"seti_8", OpSetI8, []int64{2, 250}, []byte{byte(OpSetI8), 2, 0, 250}},
		{"seti_32", OpSetI32, []int64{4, 50}, []byte{byte(OpSetI32), 4, 0, 50, 0, 0, 0}},
		{"seti_64 negative", OpSetI64, []int64{0, -1}, []byte{byte(OpSetI64), 0, 0, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{"copy_n", OpCopyN, []int64{8, -4, 16}, []byte{byte(OpCopyN), 8, 0, 0xfc, 0xff, 16, 0, 0, 0}},
		{"call", OpCall, []int64{8, 0x20}, []byte{byte(OpCall), 8, 0, 0x20, 0, 0, 0}},
		{"halt", OpHalt, nil, []byte{byte(OpHalt)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			b.Emit(tt.op, tt.args...)
			prog, err := b.Program()
			require.NoError(t, err)
			assert.Equal(t, tt.want, prog)
			assert.Len(t, prog, tt.op.Len())
		})
	}
}

func TestEmitErrors(t *testing.T) {
	b := NewBuilder()
	b.Emit(OpSetI8, 0)
	_, err := b.Program()
	assert.ErrorIs(t, err, ErrOperandCount)

	b = NewBuilder()
	b.Emit(OpSetI8, 0, 256)
	_, err = b.Program()
	assert.ErrorIs(t, err, ErrOperandRange)

	b = NewBuilder()
	b.Emit(OpCopy8, math.MaxInt16+1, 0)
	_, err = b.Program()
	assert.ErrorIs(t, err, ErrOperandRange)

	b = NewBuilder()
	b.Emit(Opcode(0xee))
	_, err = b.Program()
	assert.ErrorIs(t, err, ErrUnknownOpcode)

	// The first error sticks and later emits are dropped.
	b = NewBuilder()
	b.Emit(OpCall, -1, -1).Emit(OpHalt)
	assert.ErrorIs(t, b.Err(), ErrOperandRange)
	assert.Empty(t, b.Bytes())
}

func TestFloatConstants(t *testing.T) {
	b := NewBuilder().SetF32(0, 1.5).SetF64(4, -2)
	prog, err := b.Program()
	require.NoError(t, err)
	assert.Equal(t, []byte{byte(OpSetI32), 0, 0, 0x00, 0x00, 0xc0, 0x3f}, prog[:7])
	assert.Equal(t, byte(OpSetI64), prog[7])
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0xc0}, prog[10:])
}

func TestLabels(t *testing.T) {
	t.Run("forward branch", func(t *testing.T) {
		b := NewBuilder()
		end := b.NewLabel("end")
		b.EmitBranch(end).Emit(OpHalt).Mark(end).Emit(OpHalt)
		prog, err := b.Program()
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(OpBranch), 4, 0, byte(OpHalt), byte(OpHalt)}, prog)
	})

	t.Run("backward conditional", func(t *testing.T) {
		b := NewBuilder()
		top := b.NewLabel("top")
		b.Mark(top).Emit(OpHalt).EmitBranchIf(OpBranchNZ, 2, top)
		prog, err := b.Program()
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(OpHalt), byte(OpBranchNZ), 2, 0, 0xff, 0xff}, prog)
	})

	t.Run("call target", func(t *testing.T) {
		b := NewBuilder()
		fn := b.NewLabel("fn")
		b.EmitCall(8, fn).Emit(OpHalt).Mark(fn).Emit(OpReturn)
		prog, err := b.Program()
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(OpCall), 8, 0, 8, 0, 0, 0, byte(OpHalt), byte(OpReturn)}, prog)
	})

	t.Run("unresolved", func(t *testing.T) {
		b := NewBuilder()
		b.EmitBranch(b.NewLabel("nowhere"))
		_, err := b.Program()
		assert.ErrorIs(t, err, ErrUnresolvedLabel)
	})

	t.Run("marked twice", func(t *testing.T) {
		b := NewBuilder()
		l := b.NewLabel("twice")
		b.Mark(l).Mark(l)
		assert.ErrorIs(t, b.Err(), ErrLabelResolved)
	})

	t.Run("not a conditional", func(t *testing.T) {
		b := NewBuilder()
		b.EmitBranchIf(OpBranch, 0, b.NewLabel("x"))
		assert.ErrorIs(t, b.Err(), ErrUnknownOpcode)
	})
}
