// Package textgen abstracts single-shot text generation over the model
// providers this service supports. Callers describe what they want
// (prompts, sampling, output shape) and the provider adapters translate
// that into each API's request format.
package textgen

import (
	"context"

	"github.com/rotisserie/eris"
)

// Provider identifiers accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Input describes one generation request.
type Input struct {
	SystemPrompt     string
	UserPrompt       string
	Temperature      *float64
	MaxOutputTokens  int
	WebSearchEnabled bool
	// Format defaults to plain text when nil.
	Format OutputFormat
}

// OutputFormat constrains the shape of the generated text.
type OutputFormat interface {
	isOutputFormat()
}

// TextFormat requests free-form text.
type TextFormat struct{}

// JSONObjectFormat requests syntactically valid JSON with no fixed schema.
type JSONObjectFormat struct{}

// JSONSchemaFormat requests JSON conforming to the given schema.
type JSONSchemaFormat struct {
	Name   string
	Schema map[string]any
}

func (TextFormat) isOutputFormat()       {}
func (JSONObjectFormat) isOutputFormat() {}
func (JSONSchemaFormat) isOutputFormat() {}

// Generator produces text from a single prompt exchange.
type Generator interface {
	Generate(ctx context.Context, in Input) (string, error)
}

// Config selects and parameterizes a provider adapter.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	// BaseURL overrides the provider endpoint, used by tests and proxies.
	// Only honored by the OpenAI adapter.
	BaseURL string
}

// New builds a Generator for the configured provider.
func New(cfg Config) (Generator, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return newOpenAIGenerator(cfg), nil
	case ProviderAnthropic:
		return newAnthropicGenerator(cfg), nil
	default:
		return nil, eris.Errorf("textgen: unknown provider %q", cfg.Provider)
	}
}
