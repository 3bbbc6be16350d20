package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/dragonchat/internal/agent"
	"github.com/haasonsaas/dragonchat/pkg/models"
)

// DefaultOpenAIModel is used when neither the request nor the provider
// config names a model.
const DefaultOpenAIModel = "gpt-4o"

// OpenAIProvider implements ChatProvider against the OpenAI chat
// completions API. It translates the internal message and tool formats,
// passes tool_choice through untouched, and retries transient failures with
// linear backoff.
//
// Safe for concurrent use; each Complete call is independent.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// OpenAIOption customizes the provider.
type OpenAIOption func(*OpenAIProvider)

// WithDefaultModel sets the model used when requests carry none.
func WithDefaultModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) {
		if model != "" {
			p.defaultModel = model
		}
	}
}

// WithBaseURL points the provider at an OpenAI-compatible endpoint.
func WithBaseURL(apiKey, baseURL string) OpenAIOption {
	return func(p *OpenAIProvider) {
		cfg := openai.DefaultConfig(apiKey)
		cfg.BaseURL = baseURL
		p.client = openai.NewClientWithConfig(cfg)
	}
}

// NewOpenAIProvider creates an OpenAI provider. An empty API key is allowed
// for delayed configuration; Complete fails until a client exists.
func NewOpenAIProvider(apiKey string, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		defaultModel: DefaultOpenAIModel,
		maxRetries:   3,
		retryDelay:   time.Second,
	}
	if apiKey != "" {
		p.client = openai.NewClient(apiKey)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string { return "openai" }

// Complete performs one chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, req agent.ModelRequest) (*models.ModelResponse, error) {
	if p.client == nil {
		return nil, errors.New("openai provider not configured: missing API key")
	}

	apiReq := p.buildRequest(req)

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		resp, err = p.client.CreateChatCompletion(ctx, apiReq)
		if err == nil {
			break
		}
		if !retryable(err) || attempt == p.maxRetries {
			return nil, fmt.Errorf("openai completion: %w", err)
		}
		select {
		case <-time.After(p.retryDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("openai completion: empty response")
	}
	choice := resp.Choices[0]

	msg := models.Message{
		Role:    models.RoleAssistant,
		Content: choice.Message.Content,
	}
	for _, call := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: json.RawMessage(call.Function.Arguments),
		})
	}

	return &models.ModelResponse{
		Message:      msg,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		StopReason:   string(choice.FinishReason),
	}, nil
}

func (p *OpenAIProvider) buildRequest(req agent.ModelRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, convertMessage(msg))
	}

	apiReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Tools:    req.Tools,
	}
	apiReq.ToolChoice = req.ToolChoice
	return apiReq
}

func convertMessage(msg models.Message) openai.ChatCompletionMessage {
	switch msg.Role {
	case models.RoleAssistant:
		out := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: msg.Content,
		}
		for _, call := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: string(call.Arguments),
				},
			})
		}
		return out
	case models.RoleTool:
		return openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
	case models.RoleSystem:
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: msg.Content,
		}
	default:
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: msg.Content,
		}
	}
}

// retryable reports whether err is worth retrying: rate limits and server
// errors are, client errors are not.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	// Transport errors (timeouts, resets) are retryable.
	return true
}
