// Package tokenizer estimates token counts for outgoing prompts so backends
// can log request sizes without waiting for provider usage reports.
package tokenizer

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/promptwire/promptwire/message"
)

const fallbackEncoding = "cl100k_base"

type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// ForModel returns a tokenizer for the given model name, falling back to the
// cl100k_base encoding for models tiktoken does not know (Claude, Gemini,
// OpenRouter-hosted models). Counts are estimates, not billing numbers.
func ForModel(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{enc: enc}, nil
}

// Count returns the number of tokens in the text.
func (t *Tokenizer) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessages sums the token counts of every message's content.
func (t *Tokenizer) CountMessages(msgs []*message.Message) int {
	total := 0
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		total += t.Count(msg.Content)
		for _, tc := range msg.ToolCalls {
			total += t.Count(tc.Arguments)
		}
	}
	return total
}
