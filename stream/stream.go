package stream

import (
	"context"
	"sync"
)

const pipeBuffer = 16

// TokenStream is the consumer half of a streamed LLM response. It follows
// the pull shape of the provider SDK streams it wraps:
//
//	st, _ := backend.Prompt(ctx, msgs, opts)
//	defer st.Close()
//	for st.Next() {
//	    chunk := st.Current()
//	    ...
//	}
//	if err := st.Err(); err != nil { ... }
//
// A stream is single-pass and owns its transport exclusively. Close cancels
// the in-flight request; it is safe to call any number of times. Pulls must
// be serialized by the caller; concurrent calls to Next are not supported.
type TokenStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	ch     <-chan item

	cur       Chunk
	err       *StreamError
	done      bool
	closeOnce sync.Once
}

// NewPipe builds the two halves of a token stream: the TokenStream handed to
// the consumer and the Emitter driven by a backend adapter. The adapter must
// issue its network request with the stream's Context so that Close aborts
// the transport.
func NewPipe(ctx context.Context) (*TokenStream, *Emitter) {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan item, pipeBuffer)
	ts := &TokenStream{ctx: ctx, cancel: cancel, ch: ch}
	em := &Emitter{
		ctx:      ctx,
		ch:       ch,
		open:     make(map[string]struct{}),
		finished: make(map[string]struct{}),
	}
	return ts, em
}

// Context returns the stream-scoped context. It is cancelled by Close and
// when the stream reaches any terminal state, releasing the transport.
func (s *TokenStream) Context() context.Context {
	return s.ctx
}

// Next advances to the next chunk. It returns false once the stream has
// terminated: after the End chunk was delivered, after an error (see Err),
// or after cancellation. Next blocks until the transport delivers another
// frame or the stream terminates.
func (s *TokenStream) Next() bool {
	if s.done {
		return false
	}

	// Cancellation observed locally wins over frames already buffered.
	select {
	case <-s.ctx.Done():
		s.terminate(CancelledError())
		return false
	default:
	}

	select {
	case it, ok := <-s.ch:
		if !ok {
			s.terminate(nil)
			return false
		}
		if it.err != nil {
			s.terminate(it.err)
			return false
		}
		s.cur = it.chunk
		if it.chunk.Kind == KindEnd {
			// Deliver End, then report exhaustion on the next pull.
			s.done = true
			s.cancel()
		}
		return true
	case <-s.ctx.Done():
		s.terminate(CancelledError())
		return false
	}
}

// Current returns the chunk produced by the last successful call to Next.
func (s *TokenStream) Current() Chunk {
	return s.cur
}

// Err returns the terminal error, if any. It returns nil while the stream is
// still live and after a clean End.
func (s *TokenStream) Err() error {
	if s.err == nil {
		return nil
	}
	return s.err
}

// Close cancels the stream and releases the underlying transport. If the
// stream had not yet terminated, subsequent calls to Err report
// cancellation. Close is idempotent.
func (s *TokenStream) Close() error {
	s.closeOnce.Do(func() {
		if !s.done {
			s.done = true
			s.err = CancelledError()
		}
		s.cancel()
	})
	return nil
}

func (s *TokenStream) terminate(serr *StreamError) {
	s.done = true
	if s.err == nil {
		s.err = serr
	}
	s.cancel()
}
