package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOllamaHost is used when OLLAMA_HOST is unset.
const DefaultOllamaHost = "http://localhost:11434"

var errNoChoices = errors.New("response contained no choices")

// OpenAIClient implements Client against the OpenAI chat completions API
// or any server compatible with it, such as Ollama.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient creates a client for api.openai.com.
func NewOpenAIClient(apiKey string, opts ...option.RequestOption) *OpenAIClient {
	if apiKey != "" {
		opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	}
	return &OpenAIClient{client: openai.NewClient(opts...)}
}

// NewOpenAICompatibleClient creates a client for an OpenAI-compatible server.
func NewOpenAICompatibleClient(baseURL, apiKey string, opts ...option.RequestOption) *OpenAIClient {
	opts = append([]option.RequestOption{option.WithBaseURL(baseURL)}, opts...)
	return NewOpenAIClient(apiKey, opts...)
}

// NewOllamaClient creates a client for an Ollama server's OpenAI endpoint.
// An empty host selects DefaultOllamaHost.
func NewOllamaClient(host string, opts ...option.RequestOption) *OpenAIClient {
	if host == "" {
		host = DefaultOllamaHost
	}
	host = strings.TrimSuffix(host, "/")
	if !strings.HasSuffix(host, "/v1") {
		host += "/v1"
	}
	// Ollama ignores the key but the SDK requires one.
	return NewOpenAICompatibleClient(host+"/", "ollama", opts...)
}

// Chat sends a chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openAIParams(req))
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai chat: %w", errNoChoices)
	}

	choice := completion.Choices[0]
	return &ChatResponse{
		Content:    choice.Message.Content,
		StopReason: mapOAIStopReason(choice.FinishReason),
		Usage: TokenUsage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

func openAIParams(req ChatRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	return params
}

func mapOAIStopReason(reason string) StopReason {
	switch reason {
	case "stop":
		return StopEndTurn
	case "length":
		return StopMaxTokens
	default:
		return StopReason(reason)
	}
}
