// Package isa defines the lolvm instruction set: opcode numbering, operand
// layouts and encoded lengths. The engine, the disassembler and the
// assembler all read instruction lengths from this table.
package isa

import "fmt"

// Opcode is the first byte of every instruction.
type Opcode byte

// Opcodes are numbered consecutively from zero.
const (
	OpSetI8 Opcode = iota
	OpSetI32
	OpSetI64

	OpCopy8
	OpCopy32
	OpCopy64
	OpCopyN

	OpAdd8
	OpAdd32
	OpAdd64
	OpAddF32
	OpAddF64

	OpAddI8
	OpAddI32
	OpAddI64

	OpEq8
	OpEq32
	OpEq64
	OpEqF32
	OpEqF64

	OpNeq8
	OpNeq32
	OpNeq64
	OpNeqF32
	OpNeqF64

	OpLtU8
	OpLtI32
	OpLtI64
	OpLtF32
	OpLtF64

	OpLeU8
	OpLeI32
	OpLeI64
	OpLeF32
	OpLeF64

	OpRef

	OpLoad8
	OpLoad32
	OpLoad64
	OpLoadN

	OpStore8
	OpStore32
	OpStore64
	OpStoreN

	OpCall
	OpReturn
	OpBranch
	OpBranchZ
	OpBranchNZ

	OpDbgPrintU8
	OpDbgPrintI32
	OpDbgPrintI64
	OpDbgPrintF32
	OpDbgPrintF64

	OpHalt

	numOpcodes
)

// OperandKind describes one encoded operand field.
type OperandKind uint8

const (
	Slot   OperandKind = iota // signed 16-bit stack offset from the frame base
	Imm8                      // 8-bit immediate
	Imm32                     // 32-bit immediate
	Imm64                     // 64-bit immediate
	Size                      // unsigned 32-bit byte count
	Bump                      // signed 16-bit stack pointer adjustment
	Target                    // unsigned 32-bit absolute program offset
	Delta                     // signed 16-bit displacement from the instruction start
)

// Width returns the encoded size of the operand in bytes.
func (k OperandKind) Width() int {
	switch k {
	case Imm8:
		return 1
	case Slot, Bump, Delta:
		return 2
	case Imm32, Size, Target:
		return 4
	case Imm64:
		return 8
	}
	return 0
}

func (k OperandKind) String() string {
	switch k {
	case Slot:
		return "slot"
	case Imm8:
		return "imm8"
	case Imm32:
		return "imm32"
	case Imm64:
		return "imm64"
	case Size:
		return "size"
	case Bump:
		return "bump"
	case Target:
		return "target"
	case Delta:
		return "delta"
	}
	return fmt.Sprintf("OperandKind(%d)", uint8(k))
}

// Info holds the static description of an opcode.
type Info struct {
	Name     string
	Operands []OperandKind
	Len      int // total encoded length including the opcode byte
}

// Offset returns the byte offset of operand n from the start of the instruction.
func (i Info) Offset(n int) int {
	off := 1
	for _, k := range i.Operands[:n] {
		off += k.Width()
	}
	return off
}

var (
	slotImm8  = []OperandKind{Slot, Imm8}
	slotImm32 = []OperandKind{Slot, Imm32}
	slotImm64 = []OperandKind{Slot, Imm64}
	slot2     = []OperandKind{Slot, Slot}
	slot2Size = []OperandKind{Slot, Slot, Size}
	slot3     = []OperandKind{Slot, Slot, Slot}
	slot1     = []OperandKind{Slot}
)

var table = [numOpcodes]Info{
	OpSetI8:  {Name: "SETI_8", Operands: slotImm8},
	OpSetI32: {Name: "SETI_32", Operands: slotImm32},
	OpSetI64: {Name: "SETI_64", Operands: slotImm64},

	OpCopy8:  {Name: "COPY_8", Operands: slot2},
	OpCopy32: {Name: "COPY_32", Operands: slot2},
	OpCopy64: {Name: "COPY_64", Operands: slot2},
	OpCopyN:  {Name: "COPY_N", Operands: slot2Size},

	OpAdd8:   {Name: "ADD_8", Operands: slot3},
	OpAdd32:  {Name: "ADD_32", Operands: slot3},
	OpAdd64:  {Name: "ADD_64", Operands: slot3},
	OpAddF32: {Name: "ADD_F32", Operands: slot3},
	OpAddF64: {Name: "ADD_F64", Operands: slot3},

	OpAddI8:  {Name: "ADDI_8", Operands: []OperandKind{Slot, Slot, Imm8}},
	OpAddI32: {Name: "ADDI_32", Operands: []OperandKind{Slot, Slot, Imm32}},
	OpAddI64: {Name: "ADDI_64", Operands: []OperandKind{Slot, Slot, Imm64}},

	OpEq8:   {Name: "EQ_8", Operands: slot3},
	OpEq32:  {Name: "EQ_32", Operands: slot3},
	OpEq64:  {Name: "EQ_64", Operands: slot3},
	OpEqF32: {Name: "EQ_F32", Operands: slot3},
	OpEqF64: {Name: "EQ_F64", Operands: slot3},

	OpNeq8:   {Name: "NEQ_8", Operands: slot3},
	OpNeq32:  {Name: "NEQ_32", Operands: slot3},
	OpNeq64:  {Name: "NEQ_64", Operands: slot3},
	OpNeqF32: {Name: "NEQ_F32", Operands: slot3},
	OpNeqF64: {Name: "NEQ_F64", Operands: slot3},

	OpLtU8:  {Name: "LT_U8", Operands: slot3},
	OpLtI32: {Name: "LT_I32", Operands: slot3},
	OpLtI64: {Name: "LT_I64", Operands: slot3},
	OpLtF32: {Name: "LT_F32", Operands: slot3},
	OpLtF64: {Name: "LT_F64", Operands: slot3},

	OpLeU8:  {Name: "LE_U8", Operands: slot3},
	OpLeI32: {Name: "LE_I32", Operands: slot3},
	OpLeI64: {Name: "LE_I64", Operands: slot3},
	OpLeF32: {Name: "LE_F32", Operands: slot3},
	OpLeF64: {Name: "LE_F64", Operands: slot3},

	OpRef: {Name: "REF", Operands: slot2},

	OpLoad8:  {Name: "LOAD_8", Operands: slot2},
	OpLoad32: {Name: "LOAD_32", Operands: slot2},
	OpLoad64: {Name: "LOAD_64", Operands: slot2},
	OpLoadN:  {Name: "LOAD_N", Operands: slot2Size},

	OpStore8:  {Name: "STORE_8", Operands: slot2},
	OpStore32: {Name: "STORE_32", Operands: slot2},
	OpStore64: {Name: "STORE_64", Operands: slot2},
	OpStoreN:  {Name: "STORE_N", Operands: slot2Size},

	OpCall:     {Name: "CALL", Operands: []OperandKind{Bump, Target}},
	OpReturn:   {Name: "RETURN"},
	OpBranch:   {Name: "BRANCH", Operands: []OperandKind{Delta}},
	OpBranchZ:  {Name: "BRANCH_Z", Operands: []OperandKind{Slot, Delta}},
	OpBranchNZ: {Name: "BRANCH_NZ", Operands: []OperandKind{Slot, Delta}},

	OpDbgPrintU8:  {Name: "DBG_PRINT_U8", Operands: slot1},
	OpDbgPrintI32: {Name: "DBG_PRINT_I32", Operands: slot1},
	OpDbgPrintI64: {Name: "DBG_PRINT_I64", Operands: slot1},
	OpDbgPrintF32: {Name: "DBG_PRINT_F32", Operands: slot1},
	OpDbgPrintF64: {Name: "DBG_PRINT_F64", Operands: slot1},

	OpHalt: {Name: "HALT"},
}

var byName = make(map[string]Opcode, numOpcodes)

func init() {
	for i := range table {
		n := 1
		for _, k := range table[i].Operands {
			n += k.Width()
		}
		table[i].Len = n
		byName[table[i].Name] = Opcode(i)
	}
}

// Lookup returns the table entry for an opcode byte. The boolean is false
// for bytes that do not name an instruction.
func Lookup(b byte) (Info, bool) {
	if int(b) >= len(table) {
		return Info{}, false
	}
	return table[b], true
}

// ByName resolves a mnemonic such as "ADD_32".
func ByName(name string) (Opcode, bool) {
	op, ok := byName[name]
	return op, ok
}

// Opcodes returns every defined opcode in numeric order.
func Opcodes() []Opcode {
	ops := make([]Opcode, numOpcodes)
	for i := range ops {
		ops[i] = Opcode(i)
	}
	return ops
}

// Valid reports whether op names an instruction.
func (op Opcode) Valid() bool {
	return op < numOpcodes
}

// Info returns the table entry for op.
func (op Opcode) Info() Info {
	if !op.Valid() {
		return Info{Name: op.String()}
	}
	return table[op]
}

// Len returns the encoded length of op, or 0 for an invalid opcode.
func (op Opcode) Len() int {
	if !op.Valid() {
		return 0
	}
	return table[op].Len
}

func (op Opcode) String() string {
	if !op.Valid() {
		return fmt.Sprintf("UNKNOWN_%02X", byte(op))
	}
	return table[op].Name
}

// IsControlFlow reports whether op sets the instruction pointer itself
// instead of advancing by its length.
func (op Opcode) IsControlFlow() bool {
	switch op {
	case OpCall, OpReturn, OpBranch, OpBranchZ, OpBranchNZ:
		return true
	}
	return false
}
