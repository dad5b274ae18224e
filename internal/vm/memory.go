package vm

import "fmt"

// RawMemory is the capability behind REF, LOAD and STORE. REF asks it for
// the address of a stack byte; LOAD and STORE hand it an address read from
// the stack. Implementations decide which addresses are reachable.
type RawMemory interface {
	AddressOf(stack []byte, index int) uint64
	Load(stack []byte, addr uint64, dst []byte) error
	Store(stack []byte, addr uint64, src []byte) error
}

// StackBase is the address StackMemory assigns to stack index zero.
const StackBase uint64 = 0x2_0000_0000

// StackMemory confines raw access to the machine's own stack. Addresses are
// StackBase plus the stack index, so they survive being copied around the
// stack as plain integers but cannot reach host memory.
type StackMemory struct{}

func (StackMemory) AddressOf(_ []byte, index int) uint64 {
	return StackBase + uint64(index)
}

func (StackMemory) Load(stack []byte, addr uint64, dst []byte) error {
	src, err := translate(stack, addr, len(dst))
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

func (StackMemory) Store(stack []byte, addr uint64, src []byte) error {
	dst, err := translate(stack, addr, len(src))
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

func translate(stack []byte, addr uint64, n int) ([]byte, error) {
	size := uint64(len(stack))
	if addr < StackBase || addr-StackBase > size || uint64(n) > size-(addr-StackBase) {
		return nil, fmt.Errorf("%w: %d bytes at %#x outside stack [%#x, %#x)",
			ErrRawMemoryFault, n, addr, StackBase, StackBase+size)
	}
	off := addr - StackBase
	return stack[off : off+uint64(n)], nil
}
