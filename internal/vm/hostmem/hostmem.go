// Package hostmem gives REF, LOAD and STORE real host addresses.
//
// With Host installed a program can read and write any memory in the
// process through addresses it computes itself. The machine stays memory
// safe only as long as the program is trusted; nothing here checks an
// address beyond rejecting nil.
package hostmem

import (
	"fmt"
	"unsafe"

	"lolvm/internal/vm"
)

// Host implements vm.RawMemory with unchecked pointer access.
type Host struct{}

var _ vm.RawMemory = Host{}

func (Host) AddressOf(stack []byte, index int) uint64 {
	return uint64(uintptr(unsafe.Pointer(&stack[index])))
}

func (Host) Load(_ []byte, addr uint64, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	if addr == 0 {
		return fmt.Errorf("%w: load of %d bytes through nil address", vm.ErrRawMemoryFault, len(dst))
	}
	copy(dst, unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), len(dst)))
	return nil
}

func (Host) Store(_ []byte, addr uint64, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	if addr == 0 {
		return fmt.Errorf("%w: store of %d bytes through nil address", vm.ErrRawMemoryFault, len(src))
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), len(src)), src)
	return nil
}
