package provider

import "github.com/promptwire/promptwire/tool"

// Defaults applied by DefaultOptions.
const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 1.0
)

// ReasoningEffort requests extended reasoning from models that support it.
// Backends that have no equivalent knob ignore it.
type ReasoningEffort string

const (
	ReasoningNone   ReasoningEffort = ""
	ReasoningLow    ReasoningEffort = "low"
	ReasoningMedium ReasoningEffort = "medium"
	ReasoningHigh   ReasoningEffort = "high"
)

// Options configures a single prompt call. It is read-only input to the
// backend and is never mutated by it. Tool handlers are ignored by backends;
// only the declarations travel on the wire.
type Options struct {
	MaxTokens     int
	Temperature   float64
	SystemPrompt  string
	StopSequences []string
	Tools         []*tool.Tool
	Reasoning     ReasoningEffort
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() *Options {
	return &Options{
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// WithMaxTokens sets the completion token budget.
func (o *Options) WithMaxTokens(n int) *Options {
	o.MaxTokens = n
	return o
}

// WithTemperature sets the sampling temperature.
func (o *Options) WithTemperature(t float64) *Options {
	o.Temperature = t
	return o
}

// WithSystemPrompt sets the system prompt.
func (o *Options) WithSystemPrompt(prompt string) *Options {
	o.SystemPrompt = prompt
	return o
}

// WithStopSequence appends a stopping sequence.
func (o *Options) WithStopSequence(seq string) *Options {
	o.StopSequences = append(o.StopSequences, seq)
	return o
}

// WithTools sets the tool declarations offered to the model.
func (o *Options) WithTools(tools ...*tool.Tool) *Options {
	o.Tools = tools
	return o
}

// WithReasoning sets the reasoning effort.
func (o *Options) WithReasoning(effort ReasoningEffort) *Options {
	o.Reasoning = effort
	return o
}

// OrDefaults returns o, or the defaults when o is nil.
func (o *Options) OrDefaults() *Options {
	if o == nil {
		return DefaultOptions()
	}
	return o
}
