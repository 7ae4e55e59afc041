// Package settings holds per-client generation configuration and the
// prompt templates each population flow renders. Settings live in
// Postgres and are served through a TTL cache with an updated-at
// watermark check, so hot paths rarely touch the database.
package settings

import (
	"time"

	"github.com/rotisserie/eris"
)

// Defaults applied when a client's stored config leaves a field zero.
const (
	DefaultMaxOptionsPerAttribute = 10
	DefaultOptionExamplesCount    = 5
)

// GenerationConfig is the per-client model configuration.
type GenerationConfig struct {
	Provider         string   `json:"provider"`
	Model            string   `json:"model"`
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int      `json:"max_output_tokens,omitempty"`
	WebSearchEnabled bool     `json:"web_search_enabled"`

	// OptionsMappingModel, when set, runs the options-mapping pass on a
	// different model than the population pass.
	OptionsMappingModel string `json:"options_mapping_model,omitempty"`

	// MaxOptionsPerAttribute is the option-count threshold above which
	// prompts sample a subset instead of listing every option.
	MaxOptionsPerAttribute int `json:"max_options_per_attribute,omitempty"`
	// OptionExamplesCount is how many sampled options a compacted prompt
	// shows.
	OptionExamplesCount int `json:"option_examples_count,omitempty"`
	// RandomOptionSampling switches sampling from evenly spaced to random.
	RandomOptionSampling bool `json:"random_option_sampling"`

	// AppendSourcesToReason controls whether source URLs are appended to
	// the human-readable reason text.
	AppendSourcesToReason *bool `json:"append_sources_to_reason,omitempty"`
}

// EffectiveMaxOptions returns the sampling threshold with the default
// applied.
func (c GenerationConfig) EffectiveMaxOptions() int {
	if c.MaxOptionsPerAttribute > 0 {
		return c.MaxOptionsPerAttribute
	}
	return DefaultMaxOptionsPerAttribute
}

// EffectiveExamplesCount returns the sample size with the default applied.
func (c GenerationConfig) EffectiveExamplesCount() int {
	if c.OptionExamplesCount > 0 {
		return c.OptionExamplesCount
	}
	return DefaultOptionExamplesCount
}

// MappingConfig returns the config the options-mapping pass runs with:
// the dedicated mapping model when configured, the main model otherwise.
func (c GenerationConfig) MappingConfig() GenerationConfig {
	if c.OptionsMappingModel != "" {
		c.Model = c.OptionsMappingModel
	}
	return c
}

// SourcesInReason defaults to true when unset.
func (c GenerationConfig) SourcesInReason() bool {
	if c.AppendSourcesToReason == nil {
		return true
	}
	return *c.AppendSourcesToReason
}

// FlowSettings is one flow's prompt template set. Templates are stick
// source text rendered per request.
type FlowSettings struct {
	SetupPrompt               string `json:"setup_prompt"`
	Prompt                    string `json:"prompt"`
	OptionsMappingSetupPrompt string `json:"options_mapping_setup_prompt"`
	OptionsMappingPrompt      string `json:"options_mapping_prompt"`
}

// ClientSettings is everything stored for one client.
type ClientSettings struct {
	ClientID  string
	Config    GenerationConfig
	Flows     map[string]*FlowSettings
	UpdatedAt time.Time
}

// Flow returns the named flow's settings.
func (s *ClientSettings) Flow(name string) (*FlowSettings, error) {
	flow, ok := s.Flows[name]
	if !ok || flow == nil {
		return nil, eris.Errorf("settings: client %s has no flow %q", s.ClientID, name)
	}
	return flow, nil
}
