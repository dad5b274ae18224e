package colorize

import (
	"strings"
	"testing"
)

func TestNoColor(t *testing.T) {
	t.Setenv("LOLVM_NO_COLOR", "1")

	line := "0000  01040032000000              SETI_32 @4, 50"
	if got := ColorizeInstructionLine(line); got != line {
		t.Errorf("got %q, want unchanged line", got)
	}
	if got := Listing(line + "\n" + line); got != line+"\n"+line {
		t.Errorf("listing changed with colours disabled: %q", got)
	}
	src := "loop: BRANCH loop"
	if got, err := Source(src); err != nil || got != src {
		t.Errorf("Source = %q, %v", got, err)
	}
	if Enabled() {
		t.Error("Enabled() = true with LOLVM_NO_COLOR set")
	}
}

func TestColorPreservesText(t *testing.T) {
	t.Setenv("LOLVM_NO_COLOR", "")

	lines := []string{
		"0000  01040032000000              SETI_32 @4, 50",
		"0007  2e0000                      BRANCH 0                     ; -> 0x0007",
		"000a  ee                          .byte 0xee                   ; invalid opcode",
		"not a listing line",
		"",
	}
	for _, line := range lines {
		got := ColorizeInstructionLine(line)
		if StripANSI(got) != line {
			t.Errorf("text changed:\n got %q\nwant %q", StripANSI(got), line)
		}
		if line != "" && !strings.Contains(got, "\x1b[") {
			t.Errorf("no colour codes in %q", got)
		}
	}
}

func TestStripANSI(t *testing.T) {
	in := "\x1b[38;2;79;79;79m0000\x1b[0m  HALT"
	if got := StripANSI(in); got != "0000  HALT" {
		t.Errorf("StripANSI = %q", got)
	}
	if got := VisibleWidth(in); got != 10 {
		t.Errorf("VisibleWidth = %d, want 10", got)
	}
}
