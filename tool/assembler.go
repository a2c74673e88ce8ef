package tool

import (
	"fmt"
	"strings"

	"github.com/promptwire/promptwire/stream"
)

// Call is a completed tool invocation reassembled from stream chunks:
// the call id, the tool name, and the raw argument document obtained by
// concatenating every argument fragment in arrival order.
type Call struct {
	ID        string
	Name      string
	Arguments string
}

type pendingCall struct {
	name string
	buf  strings.Builder
}

// Assembler buffers tool call argument fragments per call id until the
// matching ToolCallEnd arrives. Feed it every chunk pulled from a stream;
// it returns a completed Call when one finishes and nil otherwise.
//
// The assembler re-checks the chunk ordering invariants even though
// well-behaved adapters already enforce them, since it accepts chunks from
// any source.
type Assembler struct {
	pending map[string]*pendingCall
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{pending: make(map[string]*pendingCall)}
}

// Observe consumes one chunk. Chunks that are not tool call events are
// ignored. A non-nil Call is returned exactly when the chunk completes an
// open tool call.
func (a *Assembler) Observe(c stream.Chunk) (*Call, error) {
	switch c.Kind {
	case stream.KindToolCallStart:
		if c.CallID == "" {
			return nil, fmt.Errorf("tool call start with empty call id")
		}
		if _, ok := a.pending[c.CallID]; ok {
			return nil, fmt.Errorf("tool call %q started twice", c.CallID)
		}
		a.pending[c.CallID] = &pendingCall{name: c.ToolName}
	case stream.KindToolCallArgument:
		p, ok := a.pending[c.CallID]
		if !ok {
			return nil, fmt.Errorf("argument fragment for tool call %q with no open call", c.CallID)
		}
		p.buf.WriteString(c.Fragment)
	case stream.KindToolCallEnd:
		p, ok := a.pending[c.CallID]
		if !ok {
			return nil, fmt.Errorf("end for tool call %q with no open call", c.CallID)
		}
		delete(a.pending, c.CallID)
		return &Call{ID: c.CallID, Name: p.name, Arguments: p.buf.String()}, nil
	}
	return nil, nil
}

// Open reports how many tool calls are started but not yet completed.
func (a *Assembler) Open() int {
	return len(a.pending)
}
