package vm

import (
	"errors"
	"fmt"

	"lolvm/internal/isa"
)

// Fatal conditions. Each one halts the machine; Step and Run return them
// wrapped in a *Fault.
var (
	ErrInvalidOpcode      = errors.New("invalid opcode")
	ErrStackOutOfBounds   = errors.New("stack access out of bounds")
	ErrCallStackOverflow  = errors.New("call stack overflow")
	ErrCallStackUnderflow = errors.New("call stack underflow")
	ErrProgramOutOfBounds = errors.New("program access out of bounds")
	ErrRawMemoryFault     = errors.New("raw memory fault")
)

// Fault describes the instruction that halted the machine.
type Fault struct {
	Err error
	IP  int
	Op  isa.Opcode
}

func (f *Fault) Error() string {
	if !f.Op.Valid() {
		return fmt.Sprintf("fault at 0x%04x: %v", f.IP, f.Err)
	}
	return fmt.Sprintf("fault at 0x%04x (%s): %v", f.IP, f.Op, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}
