// Package llm provides the chat-completion adapter used by the transcript
// analyzer and the in-call utterance classifier.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chriscow/livekit-postop-sub000/pkg/config"
)

// ErrUnavailable indicates the LLM backend could not be reached. Callers
// fall back to deterministic behavior when they see it.
var ErrUnavailable = errors.New("llm unavailable")

// Message is one turn of a chat-completion conversation.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Request is a single chat-completion call.
type Request struct {
	Model       string // empty = adapter default
	Messages    []Message
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// Response is the completion result.
type Response struct {
	Content      string
	FinishReason string
}

// Client is the chat-completion interface. Implementations must return
// ErrUnavailable (wrapped) for transport-level failures so callers can
// distinguish them from malformed content.
type Client interface {
	ChatCompletion(ctx context.Context, req Request) (Response, error)
}

// ChatClient captures the subset of the go-openai client the adapter uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// openAIClient implements Client via the OpenAI Chat Completions API.
type openAIClient struct {
	chat ChatClient
	cfg  config.LLMConfig
}

// NewOpenAI builds a chat-completion client from configuration. An optional
// BaseURL routes requests through a self-hosted gateway.
func NewOpenAI(cfg config.LLMConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &openAIClient{chat: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

// NewWithChatClient wraps a pre-built chat client (used by tests).
func NewWithChatClient(chat ChatClient, cfg config.LLMConfig) Client {
	return &openAIClient{chat: chat, cfg: cfg}
}

// ChatCompletion issues one chat-completion request with the adapter's
// defaults filled in.
func (c *openAIClient) ChatCompletion(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}
	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("chat completion: %w: %w", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("chat completion: empty choices")
	}
	choice := resp.Choices[0]
	return Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}, nil
}
