// Package openai is a minimal OpenAI REST client covering the endpoints
// this service uses: chat completions, files, and the batch API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/pimstack/aipopulate/internal/resilience"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o"

	// FilePurposeBatch is the upload purpose required for batch input files.
	FilePurposeBatch = "batch"

	// BatchEndpointChatCompletions is the only batch endpoint this client
	// targets.
	BatchEndpointChatCompletions = "/v1/chat/completions"

	// BatchWindow24h is the completion window accepted by the batch API.
	BatchWindow24h = "24h"

	maxRetryAttempts = 3
	retryBaseDelay   = 500 * time.Millisecond
)

// Batch lifecycle statuses reported by GET /batches/{id}.
const (
	BatchStatusCompleted = "completed"
	BatchStatusFailed    = "failed"
	BatchStatusExpired   = "expired"
	BatchStatusCancelled = "cancelled"
)

// Client performs requests against the OpenAI API.
type Client interface {
	ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error)
	UploadFile(ctx context.Context, filename, purpose string, content []byte) (*File, error)
	FileContent(ctx context.Context, fileID string) ([]byte, error)
	DeleteFile(ctx context.Context, fileID string) error
	CreateBatch(ctx context.Context, req CreateBatchRequest) (*Batch, error)
	GetBatch(ctx context.Context, batchID string) (*Batch, error)
}

// ChatCompletionRequest is the request body for POST /chat/completions.
type ChatCompletionRequest struct {
	Model            string            `json:"model"`
	Messages         []Message         `json:"messages"`
	Temperature      *float64          `json:"temperature,omitempty"`
	MaxTokens        *int              `json:"max_completion_tokens,omitempty"`
	ResponseFormat   *ResponseFormat   `json:"response_format,omitempty"`
	WebSearchOptions *WebSearchOptions `json:"web_search_options,omitempty"`
}

// Message represents a single message in the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat selects plain text, free-form JSON, or schema-bound JSON.
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema names and pins the schema for "json_schema" response formats.
type JSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

// WebSearchOptions enables the built-in web search tool. The zero value
// requests search with provider defaults.
type WebSearchOptions struct {
	SearchContextSize string `json:"search_context_size,omitempty"`
}

// ChatCompletionResponse is the response from POST /chat/completions.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is a single completion choice.
type Choice struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// File is a stored file object as returned by the files API.
type File struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Purpose  string `json:"purpose"`
	Bytes    int64  `json:"bytes"`
}

// CreateBatchRequest is the request body for POST /batches.
type CreateBatchRequest struct {
	InputFileID      string `json:"input_file_id"`
	Endpoint         string `json:"endpoint"`
	CompletionWindow string `json:"completion_window"`
}

// Batch is a batch job as returned by the batch API.
type Batch struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	InputFileID  string       `json:"input_file_id"`
	OutputFileID string       `json:"output_file_id"`
	ErrorFileID  string       `json:"error_file_id"`
	Errors       *BatchErrors `json:"errors,omitempty"`
}

// BatchErrors is the error container attached to failed batches.
type BatchErrors struct {
	Data []BatchErrorItem `json:"data"`
}

// BatchErrorItem is one entry in a failed batch's error list.
type BatchErrorItem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *httpClient) {
		c.model = model
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an OpenAI API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "openai: marshal request")
	}

	var result ChatCompletionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/chat/completions", "application/json", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) UploadFile(ctx context.Context, filename, purpose string, content []byte) (*File, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", purpose); err != nil {
		return nil, eris.Wrap(err, "openai: write purpose field")
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, eris.Wrap(err, "openai: create form file")
	}
	if _, err := fw.Write(content); err != nil {
		return nil, eris.Wrap(err, "openai: write file content")
	}
	if err := mw.Close(); err != nil {
		return nil, eris.Wrap(err, "openai: finalize multipart body")
	}

	var result File
	if err := c.doJSON(ctx, http.MethodPost, "/files", mw.FormDataContentType(), buf.Bytes(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) FileContent(ctx context.Context, fileID string) ([]byte, error) {
	return c.doRaw(ctx, http.MethodGet, "/files/"+fileID+"/content", "", nil)
}

func (c *httpClient) DeleteFile(ctx context.Context, fileID string) error {
	_, err := c.doRaw(ctx, http.MethodDelete, "/files/"+fileID, "", nil)
	return err
}

func (c *httpClient) CreateBatch(ctx context.Context, req CreateBatchRequest) (*Batch, error) {
	if req.Endpoint == "" {
		req.Endpoint = BatchEndpointChatCompletions
	}
	if req.CompletionWindow == "" {
		req.CompletionWindow = BatchWindow24h
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "openai: marshal batch request")
	}

	var result Batch
	if err := c.doJSON(ctx, http.MethodPost, "/batches", "application/json", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) GetBatch(ctx context.Context, batchID string) (*Batch, error) {
	var result Batch
	if err := c.doJSON(ctx, http.MethodGet, "/batches/"+batchID, "", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) doJSON(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	respBody, err := c.doRaw(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrapf(err, "openai: unmarshal %s response", path)
	}
	return nil
}

// doRaw performs one API call, retrying transient failures with exponential
// backoff. Transient means rate-limit and server statuses or network errors;
// anything else propagates on the first attempt. The body is held as bytes
// so each attempt can replay it. Errors carry resilience.TransientError
// markers so callers layering their own retry classify them the same way.
func (c *httpClient) doRaw(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, eris.Wrap(ctx.Err(), "openai: retry interrupted")
			case <-time.After(retryBaseDelay << (attempt - 1)):
			}
		}

		respBody, err := c.attempt(ctx, method, path, contentType, body)
		if err == nil {
			return respBody, nil
		}
		lastErr = err
		if !resilience.IsTransient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *httpClient) attempt(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "openai: rate limit wait")
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, eris.Wrapf(err, "openai: create %s request", path)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		sendErr := eris.Wrapf(err, "openai: send %s request", path)
		if ctx.Err() != nil {
			return nil, sendErr
		}
		return nil, resilience.NewTransientError(sendErr, 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "openai: read %s response", path), resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := eris.Errorf("openai: unexpected status %d from %s: %s", resp.StatusCode, path, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}
	return respBody, nil
}
