package populate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pimstack/aipopulate/internal/settings"
)

func TestFactoryExecutor(t *testing.T) {
	f := NewFactory(FactoryConfig{OpenAIKey: "k", OpenAIModel: "gpt-4o"})

	sync, err := f.Executor(settings.GenerationConfig{Provider: "openai"}, false)
	require.NoError(t, err)
	assert.NotNil(t, sync)

	async, err := f.Executor(settings.GenerationConfig{Provider: "openai"}, true)
	require.NoError(t, err)
	assert.NotNil(t, async)
}

func TestFactoryAsyncRequiresOpenAI(t *testing.T) {
	f := NewFactory(FactoryConfig{OpenAIKey: "k", AnthropicKey: "a"})

	_, err := f.Executor(settings.GenerationConfig{Provider: "anthropic"}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "async execution not supported")

	// The same provider works fine synchronously.
	_, err = f.Executor(settings.GenerationConfig{Provider: "anthropic", Model: "claude-sonnet-4-5-20250929"}, false)
	require.NoError(t, err)
}

func TestFactoryUnknownProvider(t *testing.T) {
	f := NewFactory(FactoryConfig{OpenAIKey: "k"})
	_, err := f.Executor(settings.GenerationConfig{Provider: "mystery"}, false)
	require.Error(t, err)
}
