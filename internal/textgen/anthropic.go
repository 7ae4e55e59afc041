package textgen

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/pimstack/aipopulate/pkg/anthropic"
)

const defaultAnthropicMaxTokens = 4096

type anthropicGenerator struct {
	client anthropic.Client
	model  string
}

func newAnthropicGenerator(cfg Config) *anthropicGenerator {
	return &anthropicGenerator{
		client: anthropic.NewClient(cfg.APIKey),
		model:  cfg.Model,
	}
}

func (g *anthropicGenerator) Generate(ctx context.Context, in Input) (string, error) {
	maxTokens := int64(in.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	req := anthropic.MessageRequest{
		Model:       g.model,
		MaxTokens:   maxTokens,
		Temperature: in.Temperature,
		Messages:    []anthropic.Message{{Role: "user", Content: in.UserPrompt}},
	}
	if system := anthropicSystemPrompt(in); system != "" {
		req.System = anthropic.CachedSystemBlocks(system)
	}

	resp, err := g.client.CreateMessage(ctx, req)
	if err != nil {
		return "", eris.Wrap(err, "textgen: anthropic generate")
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := sb.String()
	if text == "" {
		return "", eris.New("textgen: anthropic returned no text content")
	}
	return text, nil
}

// anthropicSystemPrompt folds the output format into the system prompt,
// since the messages API has no structured response_format parameter.
func anthropicSystemPrompt(in Input) string {
	parts := []string{}
	if in.SystemPrompt != "" {
		parts = append(parts, in.SystemPrompt)
	}
	switch f := in.Format.(type) {
	case nil, TextFormat:
	case JSONObjectFormat:
		parts = append(parts, "Respond with a single valid JSON object and nothing else.")
	case JSONSchemaFormat:
		if schema, err := json.Marshal(f.Schema); err == nil {
			parts = append(parts, "Respond with a single JSON object conforming to this JSON Schema and nothing else:\n"+string(schema))
		}
	}
	return strings.Join(parts, "\n\n")
}
