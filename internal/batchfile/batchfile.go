// Package batchfile submits large request sets through the provider's
// file-based batch API: serialize requests to a JSONL file, upload it,
// open a remote batch job, poll to completion, then parse the output and
// error files back into per-item results. Remote and local artifacts are
// cleaned up whether or not the job succeeds.
package batchfile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pimstack/aipopulate/internal/model"
	"github.com/pimstack/aipopulate/pkg/openai"
)

const (
	defaultPollInterval = 30 * time.Second

	pollRetryCount = 5
)

// Client is the provider surface the processor needs. *openai* clients
// satisfy it directly.
type Client interface {
	UploadFile(ctx context.Context, filename, purpose string, content []byte) (*openai.File, error)
	CreateBatch(ctx context.Context, req openai.CreateBatchRequest) (*openai.Batch, error)
	GetBatch(ctx context.Context, batchID string) (*openai.Batch, error)
	FileContent(ctx context.Context, fileID string) ([]byte, error)
	DeleteFile(ctx context.Context, fileID string) error
}

// Journal receives job lifecycle updates. Journal failures never fail the
// batch; they are logged and dropped.
type Journal interface {
	Record(ctx context.Context, job JobRecord) error
}

// JobRecord is one journal entry for a remote batch job.
type JobRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	InputFileID  string    `json:"inputFileId,omitempty"`
	OutputFileID string    `json:"outputFileId,omitempty"`
	ErrorFileID  string    `json:"errorFileId,omitempty"`
	ItemCount    int       `json:"itemCount"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// inputLine is one request in the uploaded JSONL file.
type inputLine struct {
	CustomID string                       `json:"custom_id"`
	Method   string                       `json:"method"`
	URL      string                       `json:"url"`
	Body     openai.ChatCompletionRequest `json:"body"`
}

// outputLine is one result in the downloaded output or error file.
type outputLine struct {
	CustomID string `json:"custom_id"`
	Response struct {
		Body struct {
			Choices []openai.Choice `json:"choices"`
			Error   *struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"body"`
	} `json:"response"`
}

// Option configures the processor.
type Option func(*Processor)

// WithPollInterval overrides how often the remote job status is checked.
func WithPollInterval(d time.Duration) Option {
	return func(p *Processor) {
		p.pollInterval = d
	}
}

// WithJournal attaches a job journal.
func WithJournal(j Journal) Option {
	return func(p *Processor) {
		p.journal = j
	}
}

// WithTempDir overrides where the local JSONL file is staged.
func WithTempDir(dir string) Option {
	return func(p *Processor) {
		p.tempDir = dir
	}
}

// Processor runs request sets through the file-based batch API.
type Processor struct {
	client       Client
	journal      Journal
	pollInterval time.Duration
	tempDir      string
}

// NewProcessor creates a processor over the given provider client.
func NewProcessor(client Client, opts ...Option) *Processor {
	p := &Processor{
		client:       client,
		pollInterval: defaultPollInterval,
		tempDir:      os.TempDir(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process submits the items as one remote batch job and blocks until the
// job reaches a terminal state. Per-item failures land on the matching
// output; a response-level error means the whole job failed and no item
// produced a result.
func (p *Processor) Process(ctx context.Context, name string, items []model.BatchItem[openai.ChatCompletionRequest]) *model.BatchResponse[string] {
	resp := &model.BatchResponse[string]{}
	if len(items) == 0 {
		return resp
	}

	jobName := fmt.Sprintf("%s-%s", name, uuid.NewString())

	localPath, err := p.stageInputFile(jobName, items)
	if err != nil {
		return model.FailedResponse[string](model.ErrCodeInputProcessing, err.Error())
	}
	cleanup := newCleanup(p.client, localPath)
	defer cleanup.run()

	batch, err := p.submit(ctx, jobName, localPath, cleanup)
	if err != nil {
		return model.FailedResponse[string](model.ErrCodeUnknown, err.Error())
	}
	p.record(ctx, jobName, batch, len(items), "")

	final, err := p.waitForCompletion(ctx, batch.ID)
	if err != nil {
		p.record(ctx, jobName, batch, len(items), err.Error())
		return model.FailedResponse[string](model.ErrCodeUnknown, err.Error())
	}
	cleanup.addRemote(final.OutputFileID)
	cleanup.addRemote(final.ErrorFileID)
	p.record(ctx, jobName, final, len(items), "")

	switch final.Status {
	case openai.BatchStatusCompleted:
		outputs, err := p.collectResults(ctx, final)
		if err != nil {
			return model.FailedResponse[string](model.ErrCodeUnknown, err.Error())
		}
		resp.Outputs = outputs
		return resp
	case openai.BatchStatusFailed:
		return model.FailedResponse[string](model.ErrCodeBatchFailed, batchErrorMessage(final))
	default:
		return model.FailedResponse[string](model.ErrCodeUnknown,
			fmt.Sprintf("batch %s ended in invalid state %q", final.ID, final.Status))
	}
}

// stageInputFile writes the JSONL request file to local disk before upload.
func (p *Processor) stageInputFile(jobName string, items []model.BatchItem[openai.ChatCompletionRequest]) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		line := inputLine{
			CustomID: item.ID,
			Method:   "POST",
			URL:      openai.BatchEndpointChatCompletions,
			Body:     item.Body,
		}
		if err := enc.Encode(line); err != nil {
			return "", eris.Wrapf(err, "batchfile: encode request %s", item.ID)
		}
	}

	path := filepath.Join(p.tempDir, jobName+".jsonl")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return "", eris.Wrap(err, "batchfile: write input file")
	}
	return path, nil
}

func (p *Processor) submit(ctx context.Context, jobName, localPath string, cleanup *cleanup) (*openai.Batch, error) {
	content, err := os.ReadFile(localPath)
	if err != nil {
		return nil, eris.Wrap(err, "batchfile: read staged input file")
	}

	file, err := p.client.UploadFile(ctx, filepath.Base(localPath), openai.FilePurposeBatch, content)
	if err != nil {
		return nil, eris.Wrap(err, "batchfile: upload input file")
	}
	cleanup.addRemote(file.ID)

	batch, err := p.client.CreateBatch(ctx, openai.CreateBatchRequest{InputFileID: file.ID})
	if err != nil {
		return nil, eris.Wrap(err, "batchfile: create batch job")
	}
	zap.L().Info("batch job submitted",
		zap.String("job", jobName),
		zap.String("batch_id", batch.ID),
		zap.String("input_file_id", file.ID))
	return batch, nil
}

// waitForCompletion polls until the job leaves its processing states.
// Transient poll failures are retried with exponential backoff before the
// job is abandoned.
func (p *Processor) waitForCompletion(ctx context.Context, batchID string) (*openai.Batch, error) {
	failures := 0
	for {
		batch, err := p.client.GetBatch(ctx, batchID)
		if err != nil {
			failures++
			if failures > pollRetryCount {
				return nil, eris.Wrapf(err, "batchfile: poll batch %s", batchID)
			}
			// Exponential backoff scaled from the poll interval.
			if err := sleep(ctx, p.pollInterval*time.Duration(1<<failures)); err != nil {
				return nil, err
			}
			continue
		}
		failures = 0

		switch batch.Status {
		case openai.BatchStatusCompleted, openai.BatchStatusFailed,
			openai.BatchStatusExpired, openai.BatchStatusCancelled:
			return batch, nil
		}

		if err := sleep(ctx, p.pollInterval); err != nil {
			return nil, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "batchfile: wait interrupted")
	case <-time.After(d):
		return nil
	}
}

// collectResults parses the output and error files into per-item outputs.
func (p *Processor) collectResults(ctx context.Context, batch *openai.Batch) ([]model.BatchOutput[string], error) {
	var outputs []model.BatchOutput[string]

	if batch.OutputFileID != "" {
		content, err := p.client.FileContent(ctx, batch.OutputFileID)
		if err != nil {
			return nil, eris.Wrap(err, "batchfile: download output file")
		}
		parsed, err := parseOutputLines(content, false)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, parsed...)
	}

	if batch.ErrorFileID != "" {
		content, err := p.client.FileContent(ctx, batch.ErrorFileID)
		if err != nil {
			return nil, eris.Wrap(err, "batchfile: download error file")
		}
		parsed, err := parseOutputLines(content, true)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, parsed...)
	}

	return outputs, nil
}

func parseOutputLines(content []byte, errorFile bool) ([]model.BatchOutput[string], error) {
	var outputs []model.BatchOutput[string]
	for _, raw := range strings.Split(string(content), "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		var line outputLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			return nil, eris.Wrap(err, "batchfile: parse result line")
		}

		if line.Response.Body.Error != nil {
			outputs = append(outputs, model.ErrorOutput[string](line.CustomID, model.ErrCodeRequestFailed, line.Response.Body.Error.Message))
			continue
		}
		if errorFile {
			outputs = append(outputs, model.ErrorOutput[string](line.CustomID, model.ErrCodeRequestFailed, "request failed without error detail"))
			continue
		}

		text := joinChoices(line.Response.Body.Choices)
		outputs = append(outputs, model.BatchOutput[string]{ID: line.CustomID, Body: &text})
	}
	return outputs, nil
}

// joinChoices concatenates choice contents in index order. Multiple
// choices are rare but the ordering must not depend on wire order.
func joinChoices(choices []openai.Choice) string {
	ordered := make([]string, len(choices))
	for _, c := range choices {
		if c.Index >= 0 && c.Index < len(ordered) {
			ordered[c.Index] = c.Message.Content
		}
	}
	return strings.Join(ordered, "\n")
}

// batchErrorMessage surfaces the first reported remote error.
func batchErrorMessage(batch *openai.Batch) string {
	if batch.Errors == nil || len(batch.Errors.Data) == 0 {
		return fmt.Sprintf("batch %s failed", batch.ID)
	}
	first := batch.Errors.Data[0]
	if first.Code != "" {
		return fmt.Sprintf("%s: %s", first.Code, first.Message)
	}
	return first.Message
}

func (p *Processor) record(ctx context.Context, name string, batch *openai.Batch, itemCount int, errMsg string) {
	if p.journal == nil {
		return
	}
	rec := JobRecord{
		ID:           batch.ID,
		Name:         name,
		Status:       batch.Status,
		InputFileID:  batch.InputFileID,
		OutputFileID: batch.OutputFileID,
		ErrorFileID:  batch.ErrorFileID,
		ItemCount:    itemCount,
		Error:        errMsg,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := p.journal.Record(ctx, rec); err != nil {
		zap.L().Warn("batch journal write failed",
			zap.String("batch_id", batch.ID),
			zap.Error(err))
	}
}

// cleanup tracks every artifact the run produced and deletes each exactly
// once, swallowing individual failures so teardown always finishes.
type cleanup struct {
	client    Client
	localPath string
	remoteIDs []string
	seen      map[string]bool
	done      bool
}

func newCleanup(client Client, localPath string) *cleanup {
	return &cleanup{
		client:    client,
		localPath: localPath,
		seen:      map[string]bool{},
	}
}

func (c *cleanup) addRemote(fileID string) {
	if fileID == "" || c.seen[fileID] {
		return
	}
	c.seen[fileID] = true
	c.remoteIDs = append(c.remoteIDs, fileID)
}

func (c *cleanup) run() {
	if c.done {
		return
	}
	c.done = true

	// Deletion uses a fresh context so a cancelled run still cleans up.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, id := range c.remoteIDs {
		g.Go(func() error {
			if err := c.client.DeleteFile(ctx, id); err != nil {
				zap.L().Warn("failed to delete remote batch file",
					zap.String("file_id", id),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	if c.localPath != "" {
		if err := os.Remove(c.localPath); err != nil && !os.IsNotExist(err) {
			zap.L().Warn("failed to delete local batch file",
				zap.String("path", c.localPath),
				zap.Error(err))
		}
	}
}
