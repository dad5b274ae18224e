package isa

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleMatchesBuilder(t *testing.T) {
	src := `
; count down from 3
        SETI_8   @0, 3
loop:   DBG_PRINT_U8 @0
        ADDI_8   @0, @0, 0xff      ; -1 as a byte
        BRANCH_NZ @0, loop
        CALL     8, done
        HALT
done:   RETURN
`
	got, err := Assemble(src)
	require.NoError(t, err)

	b := NewBuilder()
	loop := b.NewLabel("loop")
	done := b.NewLabel("done")
	b.Emit(OpSetI8, 0, 3)
	b.Mark(loop)
	b.Emit(OpDbgPrintU8, 0)
	b.Emit(OpAddI8, 0, 0, 0xff)
	b.EmitBranchIf(OpBranchNZ, 0, loop)
	b.EmitCall(8, done)
	b.Emit(OpHalt)
	b.Mark(done)
	b.Emit(OpReturn)
	want, err := b.Program()
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestAssembleOperands(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []byte
	}{
		{"bare slot", "COPY_32 8, 4", []byte{byte(OpCopy32), 8, 0, 4, 0}},
		{"negative slot", "COPY_8 @-1, @0", []byte{byte(OpCopy8), 0xff, 0xff, 0, 0}},
		{"lowercase mnemonic", "halt", []byte{byte(OpHalt)}},
		{"float32 immediate", "SETI_32 @0, 1.5", []byte{byte(OpSetI32), 0, 0, 0x00, 0x00, 0xc0, 0x3f}},
		{"unsigned 64-bit", "SETI_64 @0, 0xffffffffffffffff", []byte{byte(OpSetI64), 0, 0, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{"numeric delta", "BRANCH -3", []byte{byte(OpBranch), 0xfd, 0xff}},
		{"numeric target", "CALL @0, 0x10", []byte{byte(OpCall), 0, 0, 0x10, 0, 0, 0}},
		{"raw bytes", ".byte 0xfe, 1", []byte{0xfe, 1}},
		{"dotted label", "loop.end: BRANCH loop.end", []byte{byte(OpBranch), 0, 0}},
		{"label on own line", "x:\nBRANCH x", []byte{byte(OpBranch), 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Assemble(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		line     int
		sentinel error
	}{
		{"unknown mnemonic", "HALT\nBEGIN_FRAME @4", 2, ErrSyntax},
		{"operand count", "ADD_32 @0, @4", 1, ErrOperandCount},
		{"bad operand", "SETI_8 @0, lots", 1, ErrSyntax},
		{"range", "SETI_8 @0, 300", 1, ErrOperandRange},
		{"undefined label", "HALT\n\nBRANCH nowhere", 3, ErrUnresolvedLabel},
		{"duplicate label", "a: HALT\na: HALT", 2, ErrLabelResolved},
		{"bad label", "1x: HALT", 1, ErrSyntax},
		{"leading dot label", ".x: HALT", 1, ErrSyntax},
		{"leading dot delta", "HALT\nBRANCH .5", 2, ErrSyntax},
		{"empty byte", ".byte", 1, ErrSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(tt.src)
			require.Error(t, err)
			var le *LineError
			require.True(t, errors.As(err, &le), "want *LineError, got %T", err)
			assert.Equal(t, tt.line, le.Line)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}
