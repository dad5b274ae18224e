package binread

import (
	"errors"
	"testing"
)

func TestUnchecked(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0xff, 0xff}

	if got := U16(buf, 0); got != 0x0201 {
		t.Errorf("U16 = %#x, want 0x0201", got)
	}
	if got := U32(buf, 1); got != 0x05040302 {
		t.Errorf("U32 = %#x, want 0x05040302", got)
	}
	if got := U64(buf, 0); got != 0x0807060504030201 {
		t.Errorf("U64 = %#x, want 0x0807060504030201", got)
	}
	if got := I16(buf, 8); got != -1 {
		t.Errorf("I16 = %d, want -1", got)
	}
}

func TestCheck(t *testing.T) {
	buf := []byte{0x10, 0x20, 0x30, 0x40}

	tests := []struct {
		name    string
		off, n  int
		wantErr bool
	}{
		{"u16 at start", 0, 2, false},
		{"u16 at last pair", 2, 2, false},
		{"u16 past end", 3, 2, true},
		{"negative offset", -1, 2, true},
		{"whole buffer", 0, 4, false},
		{"u32 past end", 1, 4, true},
		{"u64 short buffer", 0, 8, true},
		{"empty at end", 4, 0, false},
		{"negative length", 0, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(buf, tt.off, tt.n)
			if tt.wantErr {
				if !errors.Is(err, ErrOutOfBounds) {
					t.Fatalf("expected ErrOutOfBounds, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
