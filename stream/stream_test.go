package stream

import (
	"context"
	"errors"
	"testing"
	"time"
)

// produce runs fn against the emitter half of a fresh pipe and returns the
// consumer half.
func produce(t *testing.T, fn func(*Emitter)) *TokenStream {
	t.Helper()
	ts, em := NewPipe(context.Background())
	go fn(em)
	return ts
}

func collect(ts *TokenStream) ([]Chunk, error) {
	var chunks []Chunk
	for ts.Next() {
		chunks = append(chunks, ts.Current())
	}
	return chunks, ts.Err()
}

func TestStreamDeliversTokensThenEnd(t *testing.T) {
	ts := produce(t, func(em *Emitter) {
		em.Token("Hello")
		em.Token(" world")
		em.End()
	})
	defer ts.Close()

	chunks, err := collect(ts)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "Hello" || chunks[1].Text != " world" {
		t.Errorf("Unexpected token contents: %q, %q", chunks[0].Text, chunks[1].Text)
	}
	if chunks[2].Kind != KindEnd {
		t.Errorf("Expected final chunk to be End, got %v", chunks[2].Kind)
	}
}

func TestStreamExhaustedAfterEnd(t *testing.T) {
	ts := produce(t, func(em *Emitter) {
		em.Token("a")
		em.End()
	})
	defer ts.Close()

	if _, err := collect(ts); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	for i := 0; i < 3; i++ {
		if ts.Next() {
			t.Fatal("Expected no further values after End")
		}
	}
	if ts.Err() != nil {
		t.Errorf("Expected nil error after clean End, got %v", ts.Err())
	}
}

func TestStreamDeliversErrorOnce(t *testing.T) {
	ts := produce(t, func(em *Emitter) {
		em.Token("a")
		em.Fail(MalformedError(`{"bad":`, nil))
	})
	defer ts.Close()

	if !ts.Next() {
		t.Fatal("Expected first chunk before the error")
	}
	if ts.Next() {
		t.Fatal("Expected Next to return false at the error")
	}
	serr, ok := ts.Err().(*StreamError)
	if !ok || serr.Kind != ErrorMalformed {
		t.Fatalf("Expected malformed stream error, got %v", ts.Err())
	}
	if serr.RawFrame != `{"bad":` {
		t.Errorf("Expected raw frame to be preserved, got %q", serr.RawFrame)
	}

	// Exhausted from here on, error unchanged.
	for i := 0; i < 3; i++ {
		if ts.Next() {
			t.Fatal("Expected no further values after error")
		}
	}
	if ts.Err() != serr {
		t.Errorf("Expected same terminal error, got %v", ts.Err())
	}
}

func TestCloseStopsDeliveryOfBufferedChunks(t *testing.T) {
	ts, em := NewPipe(context.Background())

	// Buffer frames without the consumer pulling any of them.
	for i := 0; i < 5; i++ {
		if err := em.Token("tok"); err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
	}

	ts.Close()

	if ts.Next() {
		t.Fatal("Expected no chunks delivered after Close")
	}
	if !IsCancelled(ts.Err()) {
		t.Errorf("Expected cancelled error, got %v", ts.Err())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ts, _ := NewPipe(context.Background())
	for i := 0; i < 3; i++ {
		if err := ts.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}
	if !IsCancelled(ts.Err()) {
		t.Errorf("Expected cancelled error, got %v", ts.Err())
	}
}

func TestCloseUnblocksProducer(t *testing.T) {
	ts, em := NewPipe(context.Background())

	returned := make(chan error, 1)
	go func() {
		// More than the pipe buffer, so the producer ends up blocked.
		for i := 0; ; i++ {
			if err := em.Token("tok"); err != nil {
				returned <- err
				return
			}
		}
	}()

	time.Sleep(10 * time.Millisecond)
	ts.Close()

	select {
	case err := <-returned:
		if err == nil {
			t.Fatal("Expected producer emit to fail after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Producer still blocked after Close")
	}
}

func TestParentContextCancellationReportsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ts, em := NewPipe(ctx)
	go func() {
		for em.Token("tok") == nil {
		}
	}()

	cancel()

	// Drain whatever races in; the terminal state must be cancellation.
	for ts.Next() {
	}
	if !IsCancelled(ts.Err()) {
		t.Errorf("Expected cancelled error, got %v", ts.Err())
	}
}

func TestToolCallChunkOrdering(t *testing.T) {
	ts := produce(t, func(em *Emitter) {
		em.Token("calling a tool")
		em.StartToolCall("call_1", "get_weather")
		em.ToolCallArgument("call_1", `{"city":`)
		em.ToolCallArgument("call_1", `"Paris"}`)
		em.EndToolCall("call_1")
		em.End()
	})
	defer ts.Close()

	chunks, err := collect(ts)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := []ChunkKind{KindToken, KindToolCallStart, KindToolCallArgument, KindToolCallArgument, KindToolCallEnd, KindEnd}
	if len(chunks) != len(want) {
		t.Fatalf("Expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, k := range want {
		if chunks[i].Kind != k {
			t.Errorf("Chunk %d: expected kind %v, got %v", i, k, chunks[i].Kind)
		}
	}
	if got := chunks[2].Fragment + chunks[3].Fragment; got != `{"city":"Paris"}` {
		t.Errorf("Expected fragments to concatenate to the argument document, got %q", got)
	}
}

func TestConcurrentToolCallsKeyedByID(t *testing.T) {
	ts := produce(t, func(em *Emitter) {
		em.StartToolCall("call_a", "first")
		em.StartToolCall("call_b", "second")
		em.ToolCallArgument("call_b", `{"n":2}`)
		em.ToolCallArgument("call_a", `{"n":1}`)
		em.EndToolCall("call_a")
		em.EndToolCall("call_b")
		em.End()
	})
	defer ts.Close()

	chunks, err := collect(ts)
	if err != nil {
		t.Fatalf("Expected interleaved calls to be accepted, got %v", err)
	}
	if len(chunks) != 7 {
		t.Errorf("Expected 7 chunks, got %d", len(chunks))
	}
}

func TestEmitterRejectsInvalidTransitions(t *testing.T) {
	// The pipe buffer is large enough that nothing here blocks.
	_, em := NewPipe(context.Background())

	if err := em.StartToolCall("", "tool"); err == nil {
		t.Error("Expected empty call id to be rejected")
	}
	if err := em.ToolCallArgument("ghost", "{}"); err == nil {
		t.Error("Expected fragment with no open call to be rejected")
	}
	if err := em.EndToolCall("ghost"); err == nil {
		t.Error("Expected end with no open call to be rejected")
	}

	if err := em.StartToolCall("call_1", "tool"); err != nil {
		t.Fatalf("StartToolCall failed: %v", err)
	}
	if err := em.StartToolCall("call_1", "tool"); err == nil {
		t.Error("Expected duplicate call id to be rejected")
	}
	if err := em.EndToolCall("call_1"); err != nil {
		t.Fatalf("EndToolCall failed: %v", err)
	}
	if err := em.ToolCallArgument("call_1", "{}"); err == nil {
		t.Error("Expected fragment after ToolCallEnd to be rejected")
	}
	if err := em.StartToolCall("call_1", "tool"); err == nil {
		t.Error("Expected reuse of a finished call id to be rejected")
	}
}

func TestEmitterRejectsEmissionAfterTerminal(t *testing.T) {
	ts, em := NewPipe(context.Background())
	defer ts.Close()

	if err := em.End(); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if err := em.Token("late"); err != ErrTerminated {
		t.Errorf("Expected ErrTerminated, got %v", err)
	}
	if err := em.End(); err != ErrTerminated {
		t.Errorf("Expected second End to return ErrTerminated, got %v", err)
	}
	if err := em.Fail(TransportError(nil)); err != ErrTerminated {
		t.Errorf("Expected Fail after End to return ErrTerminated, got %v", err)
	}
}

func TestEmitterReportsDeadlineToProducer(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	ts, em := NewPipe(ctx)
	defer ts.Close()

	// With no consumer, emission must fail once the buffer would block; the
	// producer sees the deadline, not a synthetic stream error.
	var err error
	for i := 0; i <= pipeBuffer; i++ {
		if err = em.Token("x"); err != nil {
			break
		}
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected DeadlineExceeded from emitter, got %v", err)
	}
	if err := em.Token("late"); err != ErrTerminated {
		t.Errorf("Expected ErrTerminated after deadline, got %v", err)
	}

	if ts.Next() {
		t.Error("Expected no chunks after deadline")
	}
	if !IsCancelled(ts.Err()) {
		t.Errorf("Expected cancelled error, got %v", ts.Err())
	}
}
