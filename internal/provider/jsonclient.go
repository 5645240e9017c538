package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/evidara/paperqa-go/internal/rag"
)

// ChatCompleter is the narrow slice of a chat model the JSONClient needs.
// model.ToolCallingChatModel satisfies it; tests substitute fakes.
type ChatCompleter interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// JSONClient wraps a chat model in a JSON request/response contract: every
// call sends a system and a user prompt and expects a single JSON object
// back. It implements rag.Generator.
type JSONClient struct {
	cm ChatCompleter
}

var _ rag.Generator = (*JSONClient)(nil)

// NewJSONClient wraps the given chat model.
func NewJSONClient(cm ChatCompleter) (*JSONClient, error) {
	if cm == nil {
		return nil, fmt.Errorf("provider: chat model must not be nil")
	}
	return &JSONClient{cm: cm}, nil
}

// GenerateJSON sends the prompts and returns the raw bytes of the first JSON
// object found in the model's reply. A transport or provider failure wraps
// rag.ErrGenerationUnavailable; a reply with no valid JSON object wraps
// rag.ErrMalformedOutput.
func (c *JSONClient) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) ([]byte, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	}
	out, err := c.cm.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("provider: generate: %v: %w", err, rag.ErrGenerationUnavailable)
	}
	if out == nil {
		return nil, fmt.Errorf("provider: generate returned no message: %w", rag.ErrGenerationUnavailable)
	}
	obj, err := extractJSONObject(out.Content)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// extractJSONObject pulls the first JSON object out of a model reply.
// Models routinely wrap their JSON in markdown fences or prose, so the
// extraction takes everything from the first '{' to the last '}' and
// validates it.
func extractJSONObject(content string) ([]byte, error) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("provider: no JSON object in model reply: %w", rag.ErrMalformedOutput)
	}
	candidate := []byte(content[start : end+1])
	if !json.Valid(candidate) {
		return nil, fmt.Errorf("provider: model reply is not valid JSON: %w", rag.ErrMalformedOutput)
	}
	return candidate, nil
}
