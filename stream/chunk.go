package stream

import "fmt"

// ChunkKind discriminates the variants of a streamed Chunk.
type ChunkKind int

const (
	// KindToken is a fragment of assistant-generated text. Token chunks
	// concatenate in arrival order to the full message.
	KindToken ChunkKind = iota
	// KindToolCallStart marks the beginning of a tool invocation.
	KindToolCallStart
	// KindToolCallArgument is an incremental fragment of a tool call's
	// argument payload, typically partial JSON. Fragments for the same
	// call id concatenate in arrival order to the full argument document.
	KindToolCallArgument
	// KindToolCallEnd signals that the argument payload for a call id is
	// complete and parseable.
	KindToolCallEnd
	// KindEnd is the terminal marker. Nothing follows it.
	KindEnd
)

func (k ChunkKind) String() string {
	switch k {
	case KindToken:
		return "token"
	case KindToolCallStart:
		return "tool_call_start"
	case KindToolCallArgument:
		return "tool_call_argument"
	case KindToolCallEnd:
		return "tool_call_end"
	case KindEnd:
		return "end"
	default:
		return fmt.Sprintf("chunk_kind(%d)", int(k))
	}
}

// Chunk is one unit of a streamed LLM response. Kind selects which of the
// remaining fields are meaningful.
type Chunk struct {
	Kind     ChunkKind
	Text     string // KindToken
	CallID   string // tool call chunks
	ToolName string // KindToolCallStart
	Fragment string // KindToolCallArgument
}

// Token builds a text chunk.
func Token(text string) Chunk {
	return Chunk{Kind: KindToken, Text: text}
}

// ToolCallStart builds a chunk announcing a new tool invocation.
func ToolCallStart(callID, toolName string) Chunk {
	return Chunk{Kind: KindToolCallStart, CallID: callID, ToolName: toolName}
}

// ToolCallArgument builds an argument fragment chunk for an open call.
func ToolCallArgument(callID, fragment string) Chunk {
	return Chunk{Kind: KindToolCallArgument, CallID: callID, Fragment: fragment}
}

// ToolCallEnd builds the chunk that completes a tool call's arguments.
func ToolCallEnd(callID string) Chunk {
	return Chunk{Kind: KindToolCallEnd, CallID: callID}
}

// End builds the terminal chunk.
func End() Chunk {
	return Chunk{Kind: KindEnd}
}
