// Package openai streams chat completions from the OpenAI API, translating
// its choice deltas into the shared chunk model.
package openai

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
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
)

// Model names accepted by the chat completions API.
const (
	ModelGPT4o     = "gpt-4o"
	ModelGPT4oMini = "gpt-4o-mini"
	ModelGPT41     = "gpt-4.1"
	ModelO3Mini    = "o3-mini"
)

const defaultModel = ModelGPT4oMini

// Config holds OpenAI backend configuration
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// DefaultConfig returns default OpenAI configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey: apiKey,
		Model:  defaultModel,
	}
}

// Backend implements provider.Backend for OpenAI using the official SDK
type Backend struct {
	config *Config
	client openai.Client
	logger *slog.Logger
	tok    *tokenizer.Tokenizer
	tracer trace.Tracer
}

// New creates a new OpenAI backend
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
		client: openai.NewClient(options...),
		logger: logging.WithComponent("provider.openai"),
		tok:    tok,
		tracer: otel.Tracer("github.com/promptwire/promptwire/provider/openai"),
	}
}

// FromEnv builds a backend from OPENAI_API_KEY, OPENAI_BASE_URL and
// PROMPTWIRE_OPENAI_MODEL.
func FromEnv() (*Backend, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := settings.OpenAI.Validate(); err != nil {
		return nil, err
	}
	return New(&Config{
		APIKey:  settings.OpenAI.APIKey,
		BaseURL: settings.OpenAI.BaseURL,
		Model:   settings.OpenAI.Model,
	}), nil
}

// Prompt implements provider.Backend.
func (b *Backend) Prompt(ctx context.Context, msgs []*message.Message, opts *provider.Options) (*stream.TokenStream, error) {
	if err := provider.ValidateMessages(msgs); err != nil {
		return nil, err
	}
	opts = opts.OrDefaults()

	params, reqOpts, err := b.buildParams(msgs, opts)
	if err != nil {
		return nil, err
	}

	if b.tok != nil && b.logger.Enabled(ctx, slog.LevelDebug) {
		b.logger.Debug("prompt issued",
			"model", b.config.Model,
			"messages", len(msgs),
			"estimated_tokens", b.tok.CountMessages(msgs))
	}

	ctx, span := b.tracer.Start(ctx, "openai.prompt",
		trace.WithAttributes(attribute.String("llm.model", b.config.Model)))

	ts, em := stream.NewPipe(ctx)
	go b.consume(ts.Context(), span, em, params, reqOpts)
	return ts, nil
}

// consume drives the SDK chunk stream into the emitter. Tool call deltas
// arrive keyed by choice index; a new index implicitly closes the previous
// call.
func (b *Backend) consume(ctx context.Context, span trace.Span, em *stream.Emitter, params openai.ChatCompletionNewParams, reqOpts []option.RequestOption) {
	sdk := b.client.Chat.Completions.NewStreaming(ctx, params, reqOpts...)
	defer sdk.Close()

	fail := func(serr *stream.StreamError) {
		em.Fail(serr)
		telemetry.End(span, serr)
	}

	// Call id of the tool call currently receiving argument fragments, and
	// its delta index. Only one is open at a time.
	openCall := ""
	openIndex := int64(-1)

	closeOpen := func() error {
		if openCall == "" {
			return nil
		}
		err := em.EndToolCall(openCall)
		openCall = ""
		openIndex = -1
		return err
	}

	for sdk.Next() {
		chunk := sdk.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
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
					fail(stream.MalformedErrorf(chunk.RawJSON(), "tool call delta at index %d without id or name", tc.Index))
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
			fail(stream.MalformedErrorf(chunk.RawJSON(), "%v", err))
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

	if err := closeOpen(); err == nil {
		em.End()
	}
	telemetry.End(span, nil)
}

func classifyErr(err error) *stream.StreamError {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return stream.ProviderError(strconv.Itoa(apierr.StatusCode), apierr.Error())
	}
	return stream.TransportError(err)
}

// buildParams converts the message history and options into SDK params.
// Stop sequences and reasoning effort are set on the raw request body so the
// same shapes reach every OpenAI-compatible endpoint.
func (b *Backend) buildParams(msgs []*message.Message, opts *provider.Options) (openai.ChatCompletionNewParams, []option.RequestOption, error) {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if opts.SystemPrompt != "" {
		converted = append(converted, openai.SystemMessage(opts.SystemPrompt))
	}

	for _, msg := range msgs {
		switch msg.Role {
		case message.RoleSystem:
			converted = append(converted, openai.SystemMessage(msg.Content))
		case message.RoleUser:
			converted = append(converted, openai.UserMessage(msg.Content))
		case message.RoleAssistant:
			assistant := openai.AssistantMessage(msg.Content)
			if len(msg.ToolCalls) > 0 && assistant.OfAssistant != nil {
				assistant.OfAssistant.ToolCalls = encodeToolCalls(msg.ToolCalls)
			}
			converted = append(converted, assistant)
		case message.RoleTool:
			converted = append(converted, openai.ToolMessage(msg.Content, msg.ToolID))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages:            converted,
		Model:               shared.ChatModel(b.config.Model),
		MaxCompletionTokens: param.NewOpt(int64(opts.MaxTokens)),
	}
	if opts.Temperature != provider.DefaultTemperature {
		params.Temperature = param.NewOpt(opts.Temperature)
	}

	if len(opts.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolUnionParam, 0, len(opts.Tools))
		for _, t := range opts.Tools {
			tools = append(tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  shared.FunctionParameters(t.ParametersSchema()),
			}))
		}
		params.Tools = tools
	}

	var reqOpts []option.RequestOption
	if len(opts.StopSequences) > 0 {
		reqOpts = append(reqOpts, option.WithJSONSet("stop", opts.StopSequences))
	}
	if opts.Reasoning != provider.ReasoningNone {
		reqOpts = append(reqOpts, option.WithJSONSet("reasoning_effort", string(opts.Reasoning)))
	}

	return params, reqOpts, nil
}

func encodeToolCalls(calls []message.ToolCall) []openai.ChatCompletionMessageToolCallUnionParam {
	encoded := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(calls))
	for _, tc := range calls {
		args := tc.Arguments
		if args == "" {
			args = "{}"
		}
		encoded = append(encoded, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: args,
				},
			},
		})
	}
	return encoded
}
