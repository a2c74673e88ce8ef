package stream

import (
	"context"
	"errors"
	"fmt"
)

// ErrTerminated is returned by Emitter methods invoked after the stream has
// already produced its terminal value.
var ErrTerminated = errors.New("stream: already terminated")

type item struct {
	chunk Chunk
	err   *StreamError
}

// Emitter is the producer half of a token stream. A backend adapter drives
// it from its wire-format parser; the emitter enforces the chunk ordering
// invariants so no adapter can emit argument fragments without an open call
// or anything at all after the terminal value.
//
// Tool calls are tracked per call id, so providers that interleave several
// concurrent calls run one independent little state machine each.
//
// An Emitter must only be used from a single goroutine.
type Emitter struct {
	ctx      context.Context
	ch       chan<- item
	open     map[string]struct{}
	finished map[string]struct{}
	terminal bool
}

// Token emits a text chunk.
func (e *Emitter) Token(text string) error {
	return e.send(Token(text))
}

// StartToolCall emits ToolCallStart and opens the call's fragment window.
// The call id must be non-empty and not previously used on this stream.
func (e *Emitter) StartToolCall(callID, toolName string) error {
	if e.terminal {
		return ErrTerminated
	}
	if callID == "" {
		return fmt.Errorf("stream: tool call id must not be empty")
	}
	if _, ok := e.open[callID]; ok {
		return fmt.Errorf("stream: tool call %q already open", callID)
	}
	if _, ok := e.finished[callID]; ok {
		return fmt.Errorf("stream: tool call %q already finished", callID)
	}
	if err := e.send(ToolCallStart(callID, toolName)); err != nil {
		return err
	}
	e.open[callID] = struct{}{}
	return nil
}

// ToolCallArgument emits an argument fragment for an open call.
func (e *Emitter) ToolCallArgument(callID, fragment string) error {
	if e.terminal {
		return ErrTerminated
	}
	if _, ok := e.open[callID]; !ok {
		return fmt.Errorf("stream: argument fragment for tool call %q with no open call", callID)
	}
	return e.send(ToolCallArgument(callID, fragment))
}

// EndToolCall emits ToolCallEnd and closes the call's fragment window. No
// further fragments for the call id are accepted.
func (e *Emitter) EndToolCall(callID string) error {
	if e.terminal {
		return ErrTerminated
	}
	if _, ok := e.open[callID]; !ok {
		return fmt.Errorf("stream: end for tool call %q with no open call", callID)
	}
	if err := e.send(ToolCallEnd(callID)); err != nil {
		return err
	}
	delete(e.open, callID)
	e.finished[callID] = struct{}{}
	return nil
}

// End emits the terminal chunk. Exactly one of End or Fail terminates a
// stream; any emission afterwards returns ErrTerminated.
func (e *Emitter) End() error {
	if e.terminal {
		return ErrTerminated
	}
	if err := e.send(End()); err != nil {
		return err
	}
	e.terminal = true
	close(e.ch)
	return nil
}

// Fail terminates the stream with the given error. The consumer observes it
// exactly once as the next pulled value.
func (e *Emitter) Fail(serr *StreamError) error {
	if e.terminal {
		return ErrTerminated
	}
	select {
	case e.ch <- item{err: serr}:
	case <-e.ctx.Done():
	}
	e.terminal = true
	close(e.ch)
	return nil
}

func (e *Emitter) send(c Chunk) error {
	if e.terminal {
		return ErrTerminated
	}
	select {
	case e.ch <- item{chunk: c}:
		return nil
	case <-e.ctx.Done():
		// Consumer cancelled; the producer should stop reading frames
		// and release its transport.
		e.terminal = true
		return context.Cause(e.ctx)
	}
}
