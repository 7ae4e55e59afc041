package textgen

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/pimstack/aipopulate/pkg/openai"
)

type openAIGenerator struct {
	client openai.Client
	model  string
}

func newOpenAIGenerator(cfg Config) *openAIGenerator {
	opts := []openai.Option{}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return &openAIGenerator{
		client: openai.NewClient(cfg.APIKey, opts...),
		model:  cfg.Model,
	}
}

func (g *openAIGenerator) Generate(ctx context.Context, in Input) (string, error) {
	resp, err := g.client.ChatCompletion(ctx, OpenAIChatRequest(g.model, in))
	if err != nil {
		return "", eris.Wrap(err, "textgen: openai generate")
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("textgen: openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenAIChatRequest translates an Input into the chat completions request
// body. Batch input files embed the same body per line, so the translation
// is shared rather than buried in the generator.
func OpenAIChatRequest(model string, in Input) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: in.Temperature,
	}
	if in.SystemPrompt != "" {
		req.Messages = append(req.Messages, openai.Message{Role: "system", Content: in.SystemPrompt})
	}
	req.Messages = append(req.Messages, openai.Message{Role: "user", Content: in.UserPrompt})
	if in.MaxOutputTokens > 0 {
		n := in.MaxOutputTokens
		req.MaxTokens = &n
	}
	if in.WebSearchEnabled {
		req.WebSearchOptions = &openai.WebSearchOptions{}
	}

	switch f := in.Format.(type) {
	case nil, TextFormat:
	case JSONObjectFormat:
		req.ResponseFormat = &openai.ResponseFormat{Type: "json_object"}
	case JSONSchemaFormat:
		req.ResponseFormat = &openai.ResponseFormat{
			Type: "json_schema",
			JSONSchema: &openai.JSONSchema{
				Name:   f.Name,
				Strict: true,
				Schema: f.Schema,
			},
		}
	}
	return req
}
