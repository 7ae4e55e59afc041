package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pimstack/aipopulate/internal/model"
	"github.com/pimstack/aipopulate/internal/textgen"
)

// Mapping is the reconciliation result: attribute code to a table from
// raw value to the canonical option display value it maps to. Values
// coerce to stable option codes downstream.
type Mapping map[string]map[string]string

// Lookup returns the mapped option value for a raw value, if any.
func (m Mapping) Lookup(code, raw string) (string, bool) {
	table, ok := m[code]
	if !ok {
		return "", false
	}
	v, ok := table[raw]
	return v, ok
}

// PromptBuilder renders the prompt pair for one mapping chunk.
type PromptBuilder interface {
	MappingPrompt(chunk []MappingInput) (system, user string, err error)
}

// Option configures the reconciler.
type Option func(*Reconciler)

// WithChunkLimit overrides the options-per-chunk limit.
func WithChunkLimit(limit int) Option {
	return func(r *Reconciler) {
		r.chunkLimit = limit
	}
}

// Reconciler resolves unmatched raw values through an AI mapping pass,
// executed over whichever strategy the caller supplies.
type Reconciler struct {
	exec       textgen.Executor
	prompts    PromptBuilder
	chunkLimit int
}

// NewReconciler builds a reconciler over the given execution strategy.
func NewReconciler(exec textgen.Executor, prompts PromptBuilder, opts ...Option) *Reconciler {
	r := &Reconciler{
		exec:       exec,
		prompts:    prompts,
		chunkLimit: DefaultChunkLimit,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// mappingResponse is the JSON shape the mapping prompt asks for.
type mappingResponse struct {
	Attributes []struct {
		Code   string `json:"code"`
		Values []struct {
			Raw    string `json:"raw"`
			Option string `json:"option"`
		} `json:"values"`
	} `json:"attributes"`
}

// MappingSchema is the JSON schema enforced on mapping responses.
func MappingSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"attributes"},
		"properties": map[string]any{
			"attributes": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"code", "values"},
					"properties": map[string]any{
						"code": map[string]any{"type": "string"},
						"values": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type":                 "object",
								"additionalProperties": false,
								"required":             []string{"raw", "option"},
								"properties": map[string]any{
									"raw":    map[string]any{"type": "string"},
									"option": map[string]any{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
	}
}

// Reconcile resolves the queued selections. A failed chunk drops only its
// own mappings; the rest of the table is still returned.
func (r *Reconciler) Reconcile(ctx context.Context, selections []UnresolvedSelection) (Mapping, error) {
	mapping := Mapping{}

	inputs := MergeSelections(selections)
	if len(inputs) == 0 {
		return mapping, nil
	}
	chunks := Chunk(inputs, r.chunkLimit)

	items := make([]model.BatchItem[textgen.Input], 0, len(chunks))
	byChunkID := map[string][]MappingInput{}
	for i, chunk := range chunks {
		system, user, err := r.prompts.MappingPrompt(chunk)
		if err != nil {
			return nil, eris.Wrap(err, "reconcile: render mapping prompt")
		}
		id := fmt.Sprintf("chunk-%d", i)
		byChunkID[id] = chunk
		items = append(items, model.BatchItem[textgen.Input]{
			ID: id,
			Body: textgen.Input{
				SystemPrompt: system,
				UserPrompt:   user,
				Format: textgen.JSONSchemaFormat{
					Name:   "options_mapping",
					Schema: MappingSchema(),
				},
			},
		})
	}

	resp := r.exec.ExecuteBatch(ctx, items)
	if resp.Error != nil {
		return nil, eris.Errorf("reconcile: mapping batch failed: %s: %s", resp.Error.Code, resp.Error.Message)
	}

	for _, out := range resp.Outputs {
		if out.Error != nil {
			zap.L().Warn("mapping chunk failed",
				zap.String("chunk", out.ID),
				zap.String("code", out.Error.Code),
				zap.String("message", out.Error.Message))
			continue
		}
		chunk, ok := byChunkID[out.ID]
		if !ok || out.Body == nil {
			continue
		}
		r.merge(mapping, chunk, *out.Body)
	}
	return mapping, nil
}

// merge parses one chunk's response and folds validated entries into the
// mapping table.
func (r *Reconciler) merge(mapping Mapping, chunk []MappingInput, raw string) {
	var parsed mappingResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		zap.L().Warn("mapping response is not valid JSON", zap.Error(err))
		return
	}

	allowed := map[string][]string{}
	queued := map[string]map[string]bool{}
	for _, in := range chunk {
		allowed[in.Code] = in.OptionValues
		queued[in.Code] = map[string]bool{}
		for _, raw := range in.RawValues {
			queued[in.Code][raw] = true
		}
	}

	for _, attr := range parsed.Attributes {
		options, ok := allowed[attr.Code]
		if !ok {
			zap.L().Warn("mapping response references unknown attribute",
				zap.String("code", attr.Code))
			continue
		}
		for _, v := range attr.Values {
			if !queued[attr.Code][v.Raw] {
				zap.L().Warn("mapping response references unqueued raw value",
					zap.String("code", attr.Code),
					zap.String("raw", v.Raw))
				continue
			}
			canonical, ok := canonicalOption(v.Option, options)
			if !ok {
				// The mapping call is not trusted blindly; an option
				// outside the declared list is discarded.
				zap.L().Warn("mapping produced undeclared option",
					zap.String("code", attr.Code),
					zap.String("raw", v.Raw),
					zap.String("option", v.Option))
				continue
			}
			table, ok := mapping[attr.Code]
			if !ok {
				table = map[string]string{}
				mapping[attr.Code] = table
			}
			table[v.Raw] = canonical
		}
	}
}

func canonicalOption(option string, declared []string) (string, bool) {
	for _, v := range declared {
		if option == v {
			return v, true
		}
	}
	for _, v := range declared {
		if strings.EqualFold(option, v) {
			return v, true
		}
	}
	return "", false
}
