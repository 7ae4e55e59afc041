package batchfile

import (
	"context"

	"github.com/pimstack/aipopulate/internal/model"
	"github.com/pimstack/aipopulate/internal/textgen"
	"github.com/pimstack/aipopulate/pkg/openai"
)

type executor struct {
	processor *Processor
	model     string
	jobName   string
}

// NewExecutor adapts the file-based batch pipeline to the generation
// Executor contract. Every ExecuteBatch call becomes one remote job.
func NewExecutor(p *Processor, model, jobName string) textgen.Executor {
	if jobName == "" {
		jobName = "generate"
	}
	return &executor{processor: p, model: model, jobName: jobName}
}

func (e *executor) ExecuteBatch(ctx context.Context, items []model.BatchItem[textgen.Input]) *model.BatchResponse[string] {
	reqs := make([]model.BatchItem[openai.ChatCompletionRequest], 0, len(items))
	for _, item := range items {
		reqs = append(reqs, model.BatchItem[openai.ChatCompletionRequest]{
			ID:   item.ID,
			Body: textgen.OpenAIChatRequest(e.model, item.Body),
		})
	}
	return e.processor.Process(ctx, e.jobName, reqs)
}
