package populate

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/pimstack/aipopulate/internal/batchfile"
	"github.com/pimstack/aipopulate/internal/settings"
	"github.com/pimstack/aipopulate/internal/textgen"
	"github.com/pimstack/aipopulate/pkg/openai"
)

// FactoryConfig carries the provider credentials and dispatcher tuning
// shared by every client. Per-client choices (provider, model, sampling)
// come from client settings at call time.
type FactoryConfig struct {
	OpenAIKey      string
	OpenAIBaseURL  string
	OpenAIModel    string
	RateLimitRPS   float64
	RateLimitBurst int

	AnthropicKey string

	Parallelism    int
	RequestTimeout time.Duration
	RetryAttempts  int

	PollInterval time.Duration
	TempDir      string
	Journal      batchfile.Journal
}

// Factory builds executors on demand, one per batch call. The underlying
// OpenAI client and batch-file processor are shared.
type Factory struct {
	cfg       FactoryConfig
	client    openai.Client
	processor *batchfile.Processor
}

// NewFactory wires the shared provider clients.
func NewFactory(cfg FactoryConfig) *Factory {
	clientOpts := []openai.Option{}
	if cfg.OpenAIBaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	if cfg.OpenAIModel != "" {
		clientOpts = append(clientOpts, openai.WithModel(cfg.OpenAIModel))
	}
	if cfg.RateLimitRPS > 0 {
		clientOpts = append(clientOpts, openai.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	client := openai.NewClient(cfg.OpenAIKey, clientOpts...)

	procOpts := []batchfile.Option{}
	if cfg.PollInterval > 0 {
		procOpts = append(procOpts, batchfile.WithPollInterval(cfg.PollInterval))
	}
	if cfg.TempDir != "" {
		procOpts = append(procOpts, batchfile.WithTempDir(cfg.TempDir))
	}
	if cfg.Journal != nil {
		procOpts = append(procOpts, batchfile.WithJournal(cfg.Journal))
	}

	return &Factory{
		cfg:       cfg,
		client:    client,
		processor: batchfile.NewProcessor(client, procOpts...),
	}
}

// Executor builds the sync or async executor for one generation config.
// Async execution rides the OpenAI batch-file API, so it is limited to the
// OpenAI provider.
func (f *Factory) Executor(cfg settings.GenerationConfig, async bool) (textgen.Executor, error) {
	model := cfg.Model
	if model == "" {
		model = f.cfg.OpenAIModel
	}

	if async {
		if cfg.Provider != textgen.ProviderOpenAI {
			return nil, eris.Errorf("populate: async execution not supported for provider %q", cfg.Provider)
		}
		return batchfile.NewExecutor(f.processor, model, "populate"), nil
	}

	gen, err := textgen.New(textgen.Config{
		Provider: cfg.Provider,
		Model:    model,
		APIKey:   f.apiKey(cfg.Provider),
		BaseURL:  f.cfg.OpenAIBaseURL,
	})
	if err != nil {
		return nil, err
	}
	return textgen.NewSyncExecutor(gen, textgen.SyncExecutorOptions{
		Parallelism:    f.cfg.Parallelism,
		RequestTimeout: f.cfg.RequestTimeout,
		RetryAttempts:  f.cfg.RetryAttempts,
	}), nil
}

func (f *Factory) apiKey(provider string) string {
	if provider == textgen.ProviderAnthropic {
		return f.cfg.AnthropicKey
	}
	return f.cfg.OpenAIKey
}
