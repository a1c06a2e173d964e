package llm

import (
	"strings"

	"github.com/anthropics/anthropic-sdk-go/option"
)

// Provider identifies an LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
)

// Settings carries the provider credentials and endpoints the extraction
// model may use. Empty fields leave the SDK defaults in place.
type Settings struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OllamaHost      string
}

// Resolve maps a model string to a provider and the provider-local model
// name. An explicit "anthropic/", "openai/" or "ollama/" prefix wins, then
// claude and gpt/o-series names. Other names go to Ollama when a host is
// configured, to OpenAI when only an OpenAI key is, and to Anthropic
// otherwise.
func (s Settings) Resolve(model string) (Provider, string) {
	if prefix, name, ok := strings.Cut(model, "/"); ok && prefix != "" {
		switch p := Provider(strings.ToLower(prefix)); p {
		case ProviderAnthropic, ProviderOpenAI, ProviderOllama:
			return p, name
		}
	}

	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "claude"):
		return ProviderAnthropic, model
	case strings.HasPrefix(lower, "gpt-"), strings.HasPrefix(lower, "o1"), strings.HasPrefix(lower, "o3"), strings.HasPrefix(lower, "o4"):
		return ProviderOpenAI, model
	case s.OllamaHost != "":
		return ProviderOllama, model
	case s.OpenAIAPIKey != "" || s.OpenAIBaseURL != "":
		return ProviderOpenAI, model
	}
	return ProviderAnthropic, model
}

// NewClient builds the client serving model and returns it with the
// provider-local model name.
func (s Settings) NewClient(model string) (Client, string) {
	provider, name := s.Resolve(model)
	switch provider {
	case ProviderOllama:
		return NewOllamaClient(s.OllamaHost), name
	case ProviderOpenAI:
		if s.OpenAIBaseURL != "" {
			return NewOpenAICompatibleClient(s.OpenAIBaseURL, s.OpenAIAPIKey), name
		}
		return NewOpenAIClient(s.OpenAIAPIKey), name
	}

	var opts []option.RequestOption
	if s.AnthropicAPIKey != "" {
		opts = append(opts, option.WithAPIKey(s.AnthropicAPIKey))
	}
	return NewAnthropicClient(opts...), name
}
