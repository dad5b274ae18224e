// Package binread decodes little-endian integers from bytecode buffers.
//
// The readers panic on a short buffer like any slice access. Callers
// validate a whole instruction once with Check and then read its operands
// unchecked.
package binread

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOutOfBounds is returned when a read would run past the end of the buffer.
var ErrOutOfBounds = errors.New("read out of bounds")

// U16 reads a little-endian uint16 at off.
func U16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off:])
}

// I16 reads a little-endian int16 at off.
func I16(b []byte, off int) int16 {
	return int16(U16(b, off))
}

// U32 reads a little-endian uint32 at off.
func U32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off:])
}

// U64 reads a little-endian uint64 at off.
func U64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off:])
}

// Check reports whether n bytes starting at off lie inside b.
func Check(b []byte, off, n int) error {
	if off < 0 || n < 0 || off > len(b)-n {
		return fmt.Errorf("%w: %d bytes at offset %d (buffer length %d)", ErrOutOfBounds, n, off, len(b))
	}
	return nil
}
