package vm

import (
	"fmt"
	"io"

	"lolvm/internal/isa"
)

// TraceEvent is the machine state just before an instruction executes.
type TraceEvent struct {
	Step  uint64
	IP    int
	SP    int
	Depth int
	Op    isa.Opcode
}

// Tracer observes execution. Trace is called synchronously from Step.
type Tracer interface {
	Trace(TraceEvent)
}

// TracerFunc adapts a function to the Tracer interface.
type TracerFunc func(TraceEvent)

func (f TracerFunc) Trace(ev TraceEvent) { f(ev) }

// String renders the event as a single trace line.
func (ev TraceEvent) String() string {
	return fmt.Sprintf("%s(x%02x): ip: %d, sp: %d, depth: %d", ev.Op, byte(ev.Op), ev.IP, ev.SP, ev.Depth)
}

// WriterTracer writes one line per event. Write errors are ignored.
type WriterTracer struct {
	W io.Writer
}

func (t WriterTracer) Trace(ev TraceEvent) {
	_, _ = fmt.Fprintf(t.W, "%d %s\n", ev.Step, ev)
}
