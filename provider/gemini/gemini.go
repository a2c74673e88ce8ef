// Package gemini streams completions from the Gemini API. Unlike the
// OpenAI-family endpoints, Gemini delivers function calls whole rather than
// as argument fragments, so each one is emitted as a start, a single
// argument chunk and an end.
package gemini

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

	"github.com/google/uuid"
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

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// Model names accepted by the Gemini API.
const (
	ModelGemini20Flash = "gemini-2.0-flash"
	ModelGemini15Pro   = "gemini-1.5-pro"
	ModelGemini15Flash = "gemini-1.5-flash"
)

const defaultModel = ModelGemini20Flash

// Config holds Gemini backend configuration
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:  apiKey,
		BaseURL: defaultBaseURL,
		Model:   defaultModel,
	}
}

// Backend implements provider.Backend for Gemini over raw HTTP
type Backend struct {
	config *Config
	client *http.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a new Gemini backend
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
		logger: logging.WithComponent("provider.gemini"),
		tracer: otel.Tracer("github.com/promptwire/promptwire/provider/gemini"),
	}
}

// FromEnv builds a backend from GEMINI_API_KEY, GEMINI_BASE_URL and
// PROMPTWIRE_GEMINI_MODEL.
func FromEnv() (*Backend, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := settings.Gemini.Validate(); err != nil {
		return nil, err
	}
	return New(&Config{
		APIKey:  settings.Gemini.APIKey,
		BaseURL: settings.Gemini.BaseURL,
		Model:   settings.Gemini.Model,
	}), nil
}

// Request and response bodies in Gemini wire format.
type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	Tools             []toolDecls       `json:"tools,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *functionCall     `json:"functionCall,omitempty"`
	FunctionResponse *functionResponse `json:"functionResponse,omitempty"`
}

type functionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type functionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type generationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     float64  `json:"temperature"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type toolDecls struct {
	FunctionDeclarations []functionDecl `json:"functionDeclarations"`
}

type functionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type generateFrame struct {
	Candidates []candidate `json:"candidates"`
	Error      *apiError   `json:"error"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Prompt implements provider.Backend.
func (b *Backend) Prompt(ctx context.Context, msgs []*message.Message, opts *provider.Options) (*stream.TokenStream, error) {
	if err := provider.ValidateMessages(msgs); err != nil {
		return nil, err
	}
	if b.config.APIKey == "" {
		return nil, provider.InvalidRequestf("gemini: API key not configured")
	}
	opts = opts.OrDefaults()

	body, err := json.Marshal(b.buildRequest(msgs, opts))
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	b.logger.Debug("prompt issued", "model", b.config.Model, "messages", len(msgs))

	ctx, span := b.tracer.Start(ctx, "gemini.prompt",
		trace.WithAttributes(attribute.String("llm.model", b.config.Model)))

	ts, em := stream.NewPipe(ctx)
	go b.consume(ts.Context(), span, em, body)
	return ts, nil
}

// buildRequest converts the history to Gemini contents. Gemini addresses
// function responses by function name, not call id, so each tool message's
// call id is resolved to the name declared by the assistant turn that issued
// the call, falling back to the id itself.
func (b *Backend) buildRequest(msgs []*message.Message, opts *provider.Options) generateRequest {
	var system []part
	if opts.SystemPrompt != "" {
		system = append(system, part{Text: opts.SystemPrompt})
	}

	callNames := make(map[string]string)
	for _, msg := range msgs {
		for _, tc := range msg.ToolCalls {
			callNames[tc.ID] = tc.Name
		}
	}

	contents := make([]content, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case message.RoleSystem:
			system = append(system, part{Text: msg.Content})
		case message.RoleUser:
			contents = append(contents, content{Role: "user", Parts: []part{{Text: msg.Content}}})
		case message.RoleAssistant:
			parts := make([]part, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				parts = append(parts, part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Arguments
				if args == "" {
					args = "{}"
				}
				parts = append(parts, part{FunctionCall: &functionCall{
					Name: tc.Name,
					Args: json.RawMessage(args),
				}})
			}
			contents = append(contents, content{Role: "model", Parts: parts})
		case message.RoleTool:
			name, ok := callNames[msg.ToolID]
			if !ok {
				name = msg.ToolID
			}
			contents = append(contents, content{Role: "user", Parts: []part{{
				FunctionResponse: &functionResponse{
					Name:     name,
					Response: map[string]any{"result": msg.Content},
				},
			}}})
		}
	}

	req := generateRequest{
		Contents: contents,
		GenerationConfig: &generationConfig{
			MaxOutputTokens: opts.MaxTokens,
			Temperature:     opts.Temperature,
			StopSequences:   opts.StopSequences,
		},
	}
	if len(system) > 0 {
		req.SystemInstruction = &content{Parts: system}
	}
	if len(opts.Tools) > 0 {
		req.Tools = []toolDecls{{FunctionDeclarations: encodeTools(opts.Tools)}}
	}
	return req
}

func encodeTools(tools []*tool.Tool) []functionDecl {
	decls := make([]functionDecl, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, functionDecl{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.ParametersSchema(),
		})
	}
	return decls
}

// consume issues the streaming request and feeds decoded frames into the
// emitter. Function calls arrive complete in a single part; a synthetic call
// id is minted for each so downstream handling stays uniform.
func (b *Backend) consume(ctx context.Context, span trace.Span, em *stream.Emitter, body []byte) {
	fail := func(serr *stream.StreamError) {
		em.Fail(serr)
		telemetry.End(span, serr)
	}

	url := fmt.Sprintf("%s/%s:streamGenerateContent?alt=sse", b.config.BaseURL, b.config.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		fail(stream.TransportError(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", b.config.APIKey)

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
		var frame generateFrame
		if err := json.Unmarshal(raw, &frame); err == nil && frame.Error != nil {
			fail(stream.ProviderError(strconv.Itoa(frame.Error.Code), frame.Error.Message))
			return
		}
		// Error bodies may also arrive as a one-element array.
		var frames []generateFrame
		if err := json.Unmarshal(raw, &frames); err == nil && len(frames) > 0 && frames[0].Error != nil {
			fail(stream.ProviderError(strconv.Itoa(frames[0].Error.Code), frames[0].Error.Message))
			return
		}
		fail(stream.ProviderError(strconv.Itoa(resp.StatusCode), string(raw)))
		return
	}

	dec := sse.NewDecoder(resp.Body)
	for dec.Next() {
		data := dec.Event().Data

		var frame generateFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			fail(stream.MalformedError(data, err))
			return
		}
		if frame.Error != nil {
			fail(stream.ProviderError(strconv.Itoa(frame.Error.Code), frame.Error.Message))
			return
		}
		if len(frame.Candidates) == 0 {
			continue
		}

		var err error
		for _, p := range frame.Candidates[0].Content.Parts {
			if p.Text != "" {
				if err = em.Token(p.Text); err != nil {
					break
				}
			}
			if p.FunctionCall != nil {
				if err = b.emitFunctionCall(em, p.FunctionCall); err != nil {
					break
				}
			}
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

	em.End()
	telemetry.End(span, nil)
}

func (b *Backend) emitFunctionCall(em *stream.Emitter, fc *functionCall) error {
	id := uuid.NewString()
	if err := em.StartToolCall(id, fc.Name); err != nil {
		return err
	}
	args := string(fc.Args)
	if args == "" {
		args = "{}"
	}
	if err := em.ToolCallArgument(id, args); err != nil {
		return err
	}
	return em.EndToolCall(id)
}
