// Package loader reads bytecode files into memory.
package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultMaxSize is the largest program accepted when no limit is given.
const DefaultMaxSize = 1024

var (
	ErrEmptyProgram    = errors.New("empty program")
	ErrProgramTooLarge = errors.New("program too large")
)

// Load reads the program at path. A limit of zero or less selects
// DefaultMaxSize.
func Load(path string, limit int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	prog, err := Read(f, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

// Read reads a whole program from r, rejecting empty input and input longer
// than limit bytes. Short programs are returned as is.
func Read(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxSize
	}
	prog, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	switch {
	case len(prog) == 0:
		return nil, ErrEmptyProgram
	case len(prog) > limit:
		return nil, fmt.Errorf("%w: more than %d bytes", ErrProgramTooLarge, limit)
	}
	return prog, nil
}
