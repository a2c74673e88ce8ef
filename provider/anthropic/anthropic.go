// Package anthropic streams completions from the Anthropic Messages API,
// translating its content-block events into the shared chunk model.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/promptwire/promptwire/config"
	"github.com/promptwire/promptwire/message"
	"github.com/promptwire/promptwire/pkg/logging"
	"github.com/promptwire/promptwire/pkg/telemetry"
	"github.com/promptwire/promptwire/provider"
	"github.com/promptwire/promptwire/stream"
	"github.com/promptwire/promptwire/tokenizer"
	"github.com/promptwire/promptwire/tool"
)

// Model names accepted by the Messages API.
const (
	ModelClaude35Sonnet = "claude-3-5-sonnet-latest"
	ModelClaude35Haiku  = "claude-3-5-haiku-latest"
	ModelClaude3Opus    = "claude-3-opus-latest"
	ModelClaudeSonnet45 = "claude-sonnet-4-5-20250929"
)

const defaultModel = ModelClaude35Sonnet

// Config holds Anthropic backend configuration
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// DefaultConfig returns default Anthropic configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey: apiKey,
		Model:  defaultModel,
	}
}

// Backend implements provider.Backend for Anthropic using the official SDK
type Backend struct {
	config *Config
	client anthropic.Client
	logger *slog.Logger
	tok    *tokenizer.Tokenizer
	tracer trace.Tracer
}

// New creates a new Anthropic backend
func New(cfg *Config) *Backend {
	if cfg == nil {
		cfg = DefaultConfig("")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	tok, err := tokenizer.ForModel(cfg.Model)
	if err != nil {
		tok = nil
	}

	return &Backend{
		config: cfg,
		client: anthropic.NewClient(options...),
		logger: logging.WithComponent("provider.anthropic"),
		tok:    tok,
		tracer: otel.Tracer("github.com/promptwire/promptwire/provider/anthropic"),
	}
}

// FromEnv builds a backend from ANTHROPIC_API_KEY, ANTHROPIC_BASE_URL and
// PROMPTWIRE_ANTHROPIC_MODEL.
func FromEnv() (*Backend, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := settings.Anthropic.Validate(); err != nil {
		return nil, err
	}
	return New(&Config{
		APIKey:  settings.Anthropic.APIKey,
		BaseURL: settings.Anthropic.BaseURL,
		Model:   settings.Anthropic.Model,
	}), nil
}

// Prompt implements provider.Backend.
func (b *Backend) Prompt(ctx context.Context, msgs []*message.Message, opts *provider.Options) (*stream.TokenStream, error) {
	if err := provider.ValidateMessages(msgs); err != nil {
		return nil, err
	}
	if err := provider.FirstNonSystemIsUser(msgs); err != nil {
		return nil, err
	}
	opts = opts.OrDefaults()

	params, err := b.buildParams(msgs, opts)
	if err != nil {
		return nil, err
	}

	if b.tok != nil && b.logger.Enabled(ctx, slog.LevelDebug) {
		b.logger.Debug("prompt issued",
			"model", b.config.Model,
			"messages", len(msgs),
			"estimated_tokens", b.tok.CountMessages(msgs))
	}

	ctx, span := b.tracer.Start(ctx, "anthropic.prompt",
		trace.WithAttributes(attribute.String("llm.model", b.config.Model)))

	ts, em := stream.NewPipe(ctx)
	go b.consume(ts.Context(), span, em, params)
	return ts, nil
}

// consume drives the SDK event stream into the emitter until a terminal
// event, an error, or consumer cancellation.
func (b *Backend) consume(ctx context.Context, span trace.Span, em *stream.Emitter, params anthropic.MessageNewParams) {
	sdk := b.client.Messages.NewStreaming(ctx, params)
	defer sdk.Close()

	fail := func(serr *stream.StreamError) {
		em.Fail(serr)
		telemetry.End(span, serr)
	}

	// Open tool_use blocks by content block index.
	toolBlocks := make(map[int64]string)

	for sdk.Next() {
		event := sdk.Current()
		var err error

		switch event.Type {
		case "ping", "message_start", "message_delta":
			// pass
		case "content_block_start":
			start := event.AsContentBlockStart()
			switch start.ContentBlock.Type {
			case "text":
				if start.ContentBlock.Text != "" {
					err = em.Token(start.ContentBlock.Text)
				}
			case "tool_use":
				if err = em.StartToolCall(start.ContentBlock.ID, start.ContentBlock.Name); err == nil {
					toolBlocks[start.Index] = start.ContentBlock.ID
				}
			default:
				// Other block types (thinking, citations) carry no
				// chunk-model content.
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta()
			switch delta.Delta.Type {
			case "text_delta":
				if delta.Delta.Text != "" {
					err = em.Token(delta.Delta.Text)
				}
			case "input_json_delta":
				id, ok := toolBlocks[delta.Index]
				if !ok {
					fail(stream.MalformedErrorf(event.RawJSON(), "input_json_delta for block %d with no open tool call", delta.Index))
					return
				}
				if delta.Delta.PartialJSON != "" {
					err = em.ToolCallArgument(id, delta.Delta.PartialJSON)
				}
			}
		case "content_block_stop":
			stop := event.AsContentBlockStop()
			if id, ok := toolBlocks[stop.Index]; ok {
				err = em.EndToolCall(id)
				delete(toolBlocks, stop.Index)
			}
		case "message_stop":
			em.End()
			telemetry.End(span, nil)
			return
		case "error":
			raw := event.RawJSON()
			fail(stream.ProviderError(
				gjson.Get(raw, "error.type").String(),
				gjson.Get(raw, "error.message").String()))
			return
		default:
			fail(stream.MalformedErrorf(event.RawJSON(), "unexpected event type %q", event.Type))
			return
		}

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, stream.ErrTerminated) {
				telemetry.End(span, nil)
				return
			}
			fail(stream.MalformedErrorf(event.RawJSON(), "%v", err))
			return
		}
	}

	if err := sdk.Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			telemetry.End(span, nil)
			return
		}
		fail(classifyErr(err))
		return
	}

	// Frames ended without message_stop; treat end of input as end of
	// stream, closing any dangling tool call first.
	for _, id := range toolBlocks {
		em.EndToolCall(id)
	}
	em.End()
	telemetry.End(span, nil)
}

func classifyErr(err error) *stream.StreamError {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return stream.ProviderError(strconv.Itoa(apierr.StatusCode), apierr.Error())
	}
	return stream.TransportError(err)
}

func (b *Backend) buildParams(msgs []*message.Message, opts *provider.Options) (anthropic.MessageNewParams, error) {
	var systemPrompts []string
	if opts.SystemPrompt != "" {
		systemPrompts = append(systemPrompts, opts.SystemPrompt)
	}

	conversation := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case message.RoleSystem:
			systemPrompts = append(systemPrompts, msg.Content)
		case message.RoleUser:
			conversation = append(conversation,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case message.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" || len(msg.ToolCalls) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: json.RawMessage(tc.Arguments),
					},
				})
			}
			conversation = append(conversation, anthropic.NewAssistantMessage(blocks...))
		case message.RoleTool:
			conversation = append(conversation, anthropic.NewUserMessage(
				anthropic.ContentBlockParamUnion{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: msg.ToolID,
						Content: []anthropic.ToolResultBlockParamContentUnion{
							{OfText: &anthropic.TextBlockParam{Text: msg.Content}},
						},
					},
				}))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.config.Model),
		Messages:  conversation,
		MaxTokens: int64(opts.MaxTokens),
	}

	if len(systemPrompts) > 0 {
		systemText := ""
		for i, sp := range systemPrompts {
			if i > 0 {
				systemText += "\n"
			}
			systemText += sp
		}
		params.System = []anthropic.TextBlockParam{{Text: systemText}}
	}

	if opts.Temperature != provider.DefaultTemperature {
		params.Temperature = param.NewOpt(opts.Temperature)
	}
	if len(opts.StopSequences) > 0 {
		params.StopSequences = opts.StopSequences
	}

	if len(opts.Tools) > 0 {
		tools, err := encodeTools(opts.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}

	return params, nil
}

func encodeTools(tools []*tool.Tool) ([]anthropic.ToolUnionParam, error) {
	encoded := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		raw, err := json.Marshal(map[string]any{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": t.ParametersSchema(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tool %q: %w", t.Name, err)
		}

		var toolParam anthropic.ToolParam
		if err := json.Unmarshal(raw, &toolParam); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tool param for %q: %w", t.Name, err)
		}
		encoded = append(encoded, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return encoded, nil
}
