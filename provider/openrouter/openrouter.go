// Package openrouter streams chat completions from the OpenRouter API, an
// OpenAI-compatible endpoint fronting many hosted models. The wire protocol
// is plain JSON over SSE, so the backend talks to it directly.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/promptwire/promptwire/config"
	"github.com/promptwire/promptwire/message"
	"github.com/promptwire/promptwire/pkg/logging"
	"github.com/promptwire/promptwire/pkg/sse"
	"github.com/promptwire/promptwire/pkg/telemetry"
	"github.com/promptwire/promptwire/provider"
	"github.com/promptwire/promptwire/stream"
	"github.com/promptwire/promptwire/tool"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// Model names commonly routed through OpenRouter.
const (
	ModelLlama370B      = "meta-llama/llama-3-70b-instruct"
	ModelMixtral8x7B    = "mistralai/mixtral-8x7b-instruct"
	ModelClaude35Sonnet = "anthropic/claude-3.5-sonnet"
	ModelGPT4o          = "openai/gpt-4o"
)

const defaultModel = ModelLlama370B

// Config holds OpenRouter backend configuration
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// DefaultConfig returns default OpenRouter configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:  apiKey,
		BaseURL: defaultBaseURL,
		Model:   defaultModel,
	}
}

// Backend implements provider.Backend for OpenRouter over raw HTTP
type Backend struct {
	config *Config
	client *http.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a new OpenRouter backend
func New(cfg *Config) *Backend {
	if cfg == nil {
		cfg = DefaultConfig("")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	return &Backend{
		config: cfg,
		client: &http.Client{},
		logger: logging.WithComponent("provider.openrouter"),
		tracer: otel.Tracer("github.com/promptwire/promptwire/provider/openrouter"),
	}
}

// FromEnv builds a backend from OPENROUTER_API_KEY, OPENROUTER_BASE_URL and
// PROMPTWIRE_OPENROUTER_MODEL.
func FromEnv() (*Backend, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := settings.OpenRouter.Validate(); err != nil {
		return nil, err
	}
	return New(&Config{
		APIKey:  settings.OpenRouter.APIKey,
		BaseURL: settings.OpenRouter.BaseURL,
		Model:   settings.OpenRouter.Model,
	}), nil
}

// Request body in OpenAI chat completion format.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
	Stop        []string      `json:"stop,omitempty"`
	Tools       []chatTool    `json:"tools,omitempty"`
	Reasoning   *reasoning    `json:"reasoning,omitempty"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string      `json:"type"`
	Function chatToolDef `json:"function"`
}

type chatToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type reasoning struct {
	Effort string `json:"effort"`
}

// Streaming response frames.
type chunkFrame struct {
	Choices []chunkChoice `json:"choices"`
	Error   *apiError     `json:"error"`
}

type chunkChoice struct {
	Delta        chunkDelta `json:"delta"`
	FinishReason string     `json:"finish_reason"`
}

type chunkDelta struct {
	Content   string          `json:"content"`
	ToolCalls []deltaToolCall `json:"tool_calls"`
}

type deltaToolCall struct {
	Index    int          `json:"index"`
	ID       string       `json:"id"`
	Function chatFunction `json:"function"`
}

type apiError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *apiError) codeString() string {
	switch c := e.Code.(type) {
	case string:
		return c
	case float64:
		return strconv.Itoa(int(c))
	default:
		if e.Type != "" {
			return e.Type
		}
		return ""
	}
}

type errorResponse struct {
	Error *apiError `json:"error"`
}

// Prompt implements provider.Backend.
func (b *Backend) Prompt(ctx context.Context, msgs []*message.Message, opts *provider.Options) (*stream.TokenStream, error) {
	if err := provider.ValidateMessages(msgs); err != nil {
		return nil, err
	}
	if b.config.APIKey == "" {
		return nil, provider.InvalidRequestf("openrouter: API key not configured")
	}
	opts = opts.OrDefaults()

	body, err := json.Marshal(b.buildRequest(msgs, opts))
	if err != nil {
		return nil, fmt.Errorf("openrouter: marshal request: %w", err)
	}

	b.logger.Debug("prompt issued", "model", b.config.Model, "messages", len(msgs))

	ctx, span := b.tracer.Start(ctx, "openrouter.prompt",
		trace.WithAttributes(attribute.String("llm.model", b.config.Model)))

	ts, em := stream.NewPipe(ctx)
	go b.consume(ts.Context(), span, em, body)
	return ts, nil
}

func (b *Backend) buildRequest(msgs []*message.Message, opts *provider.Options) chatRequest {
	converted := make([]chatMessage, 0, len(msgs)+1)
	if opts.SystemPrompt != "" {
		converted = append(converted, chatMessage{Role: "system", Content: opts.SystemPrompt})
	}
	for _, msg := range msgs {
		cm := chatMessage{Role: string(msg.Role), Content: msg.Content}
		if msg.Role == message.RoleTool {
			cm.ToolCallID = msg.ToolID
		}
		for _, tc := range msg.ToolCalls {
			args := tc.Arguments
			if args == "" {
				args = "{}"
			}
			cm.ToolCalls = append(cm.ToolCalls, chatToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: chatFunction{Name: tc.Name, Arguments: args},
			})
		}
		converted = append(converted, cm)
	}

	req := chatRequest{
		Model:       b.config.Model,
		Messages:    converted,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      true,
		Stop:        opts.StopSequences,
		Tools:       encodeTools(opts.Tools),
	}
	if opts.Reasoning != provider.ReasoningNone {
		req.Reasoning = &reasoning{Effort: string(opts.Reasoning)}
	}
	return req
}

func encodeTools(tools []*tool.Tool) []chatTool {
	if len(tools) == 0 {
		return nil
	}
	encoded := make([]chatTool, 0, len(tools))
	for _, t := range tools {
		encoded = append(encoded, chatTool{
			Type: "function",
			Function: chatToolDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.ParametersSchema(),
			},
		})
	}
	return encoded
}

// consume issues the streaming request and feeds decoded frames into the
// emitter until [DONE], an error frame, or consumer cancellation.
func (b *Backend) consume(ctx context.Context, span trace.Span, em *stream.Emitter, body []byte) {
	fail := func(serr *stream.StreamError) {
		em.Fail(serr)
		telemetry.End(span, serr)
	}

	url := b.config.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		fail(stream.TransportError(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+b.config.APIKey)

	resp, err := b.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			telemetry.End(span, nil)
			return
		}
		fail(stream.TransportError(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		var er errorResponse
		if err := json.Unmarshal(raw, &er); err == nil && er.Error != nil {
			fail(stream.ProviderError(er.Error.codeString(), er.Error.Message))
			return
		}
		fail(stream.ProviderError(strconv.Itoa(resp.StatusCode), string(raw)))
		return
	}

	// Call id of the tool call currently receiving argument fragments, and
	// its delta index.
	openCall := ""
	openIndex := -1

	closeOpen := func() error {
		if openCall == "" {
			return nil
		}
		err := em.EndToolCall(openCall)
		openCall = ""
		openIndex = -1
		return err
	}

	dec := sse.NewDecoder(resp.Body)
	for dec.Next() {
		data := dec.Event().Data
		if data == "[DONE]" {
			if err := closeOpen(); err == nil {
				em.End()
			}
			telemetry.End(span, nil)
			return
		}

		var frame chunkFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			fail(stream.MalformedError(data, err))
			return
		}
		if frame.Error != nil {
			fail(stream.ProviderError(frame.Error.codeString(), frame.Error.Message))
			return
		}
		if len(frame.Choices) == 0 {
			continue
		}
		choice := frame.Choices[0]
		var err error

		if choice.Delta.Content != "" {
			err = em.Token(choice.Delta.Content)
		}

		for _, tc := range choice.Delta.ToolCalls {
			if err != nil {
				break
			}
			if tc.Index != openIndex {
				if err = closeOpen(); err != nil {
					break
				}
				if tc.ID == "" || tc.Function.Name == "" {
					fail(stream.MalformedErrorf(data, "tool call delta at index %d without id or name", tc.Index))
					return
				}
				if err = em.StartToolCall(tc.ID, tc.Function.Name); err != nil {
					break
				}
				openCall = tc.ID
				openIndex = tc.Index
			}
			if tc.Function.Arguments != "" {
				err = em.ToolCallArgument(openCall, tc.Function.Arguments)
			}
		}

		if err == nil && choice.FinishReason != "" {
			err = closeOpen()
		}

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, stream.ErrTerminated) {
				telemetry.End(span, nil)
				return
			}
			fail(stream.MalformedErrorf(data, "%v", err))
			return
		}
	}

	if err := dec.Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			telemetry.End(span, nil)
			return
		}
		fail(stream.TransportError(err))
		return
	}

	// Body ended without [DONE]; the conversation is over either way.
	if err := closeOpen(); err == nil {
		em.End()
	}
	telemetry.End(span, nil)
}
