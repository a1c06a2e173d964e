// Package extraction implements the structured-output protocol: a prompt
// plus a JSON schema goes in, a JSON object conforming to the schema comes
// back. It also provides an in-process agent that answers prompts with an
// LLM.
package extraction

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// UnknownValue is written by the extractor in place of values it could
// not determine.
const UnknownValue = "<UNKNOWN>"

// Schema names.
const (
	KindPrompt   = "structured_output_prompt"
	KindResponse = "structured_output_response"
)

// Prompt asks for the prompt text to be turned into an object matching
// OutputSchema.
type Prompt struct {
	Prompt       string         `json:"prompt"`
	OutputSchema map[string]any `json:"output_schema"`
}

// Kind implements agent.Message.
func (Prompt) Kind() string { return KindPrompt }

// Response carries the extracted object.
type Response struct {
	Output map[string]any `json:"output"`
}

// Kind implements agent.Message.
func (Response) Kind() string { return KindResponse }

// SchemaFor returns the JSON schema of T as a generic map.
func SchemaFor[T any]() (map[string]any, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("infer schema: %w", err)
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return out, nil
}
