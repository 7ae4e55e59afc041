// Package populate orchestrates attribute population: prompt rendering,
// generation dispatch, option reconciliation, and value coercion.
package populate

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/pimstack/aipopulate/internal/model"
	"github.com/pimstack/aipopulate/internal/reconcile"
	"github.com/pimstack/aipopulate/internal/settings"
	"github.com/pimstack/aipopulate/internal/textgen"
)

// ExecutorFactory builds a generation executor for a client's config.
// The async form routes through the remote batch-file pipeline; the sync
// form fans out over the worker pool.
type ExecutorFactory interface {
	Executor(cfg settings.GenerationConfig, async bool) (textgen.Executor, error)
}

// SettingsSource is the read side of the settings cache.
type SettingsSource interface {
	Get(ctx context.Context, clientID string) (*settings.ClientSettings, error)
}

// BatchOptions select how a batch is executed.
type BatchOptions struct {
	// Async routes generation through the remote batch-file pipeline
	// instead of the parallel fan-out.
	Async bool
}

// Service is the attribute population orchestrator.
type Service struct {
	settings SettingsSource
	renderer renderer
	factory  ExecutorFactory
}

// NewService wires the orchestrator's dependencies.
func NewService(src SettingsSource, r renderer, factory ExecutorFactory) *Service {
	return &Service{settings: src, renderer: r, factory: factory}
}

// PopulateOne populates a single request synchronously.
func (s *Service) PopulateOne(ctx context.Context, req model.PopulateRequest) (*model.PopulateResponse, error) {
	items := []model.BatchItem[model.PopulateRequest]{{ID: "single", Body: req}}
	batch, err := s.PopulateBatch(ctx, items, BatchOptions{})
	if err != nil {
		return nil, err
	}
	if batch.Error != nil {
		return nil, eris.Errorf("populate: %s: %s", batch.Error.Code, batch.Error.Message)
	}
	if len(batch.Outputs) != 1 {
		return nil, eris.Errorf("populate: expected one output, got %d", len(batch.Outputs))
	}
	out := batch.Outputs[0]
	if out.Error != nil {
		return nil, eris.Errorf("populate: %s: %s", out.Error.Code, out.Error.Message)
	}
	return out.Body, nil
}

// PopulateBatch populates many requests as one unit. All items must share
// the same client and flow; a mixed batch is a caller bug, not a per-item
// failure.
func (s *Service) PopulateBatch(ctx context.Context, items []model.BatchItem[model.PopulateRequest], opts BatchOptions) (*model.BatchResponse[model.PopulateResponse], error) {
	resp := &model.BatchResponse[model.PopulateResponse]{}
	if len(items) == 0 {
		return resp, nil
	}
	if err := validateBatch(items); err != nil {
		return nil, err
	}

	clientID := items[0].Body.ClientID
	flowName := items[0].Body.Flow

	clientSettings, err := s.settings.Get(ctx, clientID)
	if err != nil {
		return nil, eris.Wrap(err, "populate: load settings")
	}
	flow, err := clientSettings.Flow(flowName)
	if err != nil {
		return nil, err
	}
	cfg := clientSettings.Config

	exec, err := s.factory.Executor(cfg, opts.Async)
	if err != nil {
		return nil, eris.Wrap(err, "populate: build executor")
	}

	// Phase 1: render one generation request per item. Items that fail
	// rendering become per-item errors without reaching the executor.
	genItems := make([]model.BatchItem[textgen.Input], 0, len(items))
	reqByID := map[string]model.PopulateRequest{}
	for _, item := range items {
		reqByID[item.ID] = item.Body
		input, err := s.buildGenerationInput(item.Body, flow, cfg)
		if err != nil {
			resp.Outputs = append(resp.Outputs,
				model.ErrorOutput[model.PopulateResponse](item.ID, model.ErrCodeInputProcessing, err.Error()))
			continue
		}
		genItems = append(genItems, model.BatchItem[textgen.Input]{ID: item.ID, Body: input})
	}
	if len(genItems) == 0 {
		return resp, nil
	}

	genResp := exec.ExecuteBatch(ctx, genItems)
	if genResp.Error != nil {
		resp.Error = genResp.Error
		return resp, nil
	}

	// Phase 2: parse results and gather everything the mapping pass needs
	// across the whole batch.
	results := map[string]*generationResult{}
	var unresolved []reconcile.UnresolvedSelection
	for _, out := range genResp.Outputs {
		if out.Error != nil {
			resp.Outputs = append(resp.Outputs,
				model.ErrorOutput[model.PopulateResponse](out.ID, out.Error.Code, out.Error.Message))
			continue
		}
		result, err := parseGenerationResult(*out.Body)
		if err != nil {
			resp.Outputs = append(resp.Outputs,
				model.ErrorOutput[model.PopulateResponse](out.ID, model.ErrCodeInputProcessing, err.Error()))
			continue
		}
		results[out.ID] = result
		unresolved = append(unresolved, collectUnresolved(reqByID[out.ID], result)...)
	}

	// Phase 3: one reconciliation round for the whole batch, over the same
	// execution strategy as the generation pass.
	mapping := reconcile.Mapping{}
	if len(unresolved) > 0 {
		mapping, err = s.reconcileSelections(ctx, cfg, flow, unresolved, opts.Async)
		if err != nil {
			zap.L().Warn("options reconciliation failed, proceeding without mappings",
				zap.String("client_id", clientID),
				zap.Error(err))
			mapping = reconcile.Mapping{}
		}
	}

	// Phase 4: repair, coerce, and assemble per item.
	for id, result := range results {
		built := buildResponse(reqByID[id], result, mapping, cfg.SourcesInReason())
		resp.Outputs = append(resp.Outputs, model.BatchOutput[model.PopulateResponse]{ID: id, Body: built})
	}
	return resp, nil
}

func (s *Service) buildGenerationInput(req model.PopulateRequest, flow *settings.FlowSettings, cfg settings.GenerationConfig) (textgen.Input, error) {
	if err := validateRequest(req); err != nil {
		return textgen.Input{}, err
	}

	attrs := buildPromptAttributes(req.Attributes, cfg)
	system, user, err := s.renderPrompts(flow, req, attrs)
	if err != nil {
		return textgen.Input{}, err
	}

	return textgen.Input{
		SystemPrompt:     system,
		UserPrompt:       user,
		Temperature:      cfg.Temperature,
		MaxOutputTokens:  cfg.MaxOutputTokens,
		WebSearchEnabled: cfg.WebSearchEnabled,
		Format: textgen.JSONSchemaFormat{
			Name:   "attribute_population",
			Schema: responseSchema(req.Attributes),
		},
	}, nil
}

func (s *Service) reconcileSelections(ctx context.Context, cfg settings.GenerationConfig, flow *settings.FlowSettings, unresolved []reconcile.UnresolvedSelection, async bool) (reconcile.Mapping, error) {
	exec, err := s.factory.Executor(cfg.MappingConfig(), async)
	if err != nil {
		return nil, eris.Wrap(err, "populate: build mapping executor")
	}
	r := reconcile.NewReconciler(exec, mappingPrompts{renderer: s.renderer, flow: flow})
	return r.Reconcile(ctx, unresolved)
}

func validateBatch(items []model.BatchItem[model.PopulateRequest]) error {
	clientID := items[0].Body.ClientID
	flow := items[0].Body.Flow
	seen := map[string]bool{}
	for _, item := range items {
		if item.ID == "" {
			return eris.New("populate: batch item missing id")
		}
		if seen[item.ID] {
			return eris.Errorf("populate: duplicate batch item id %q", item.ID)
		}
		seen[item.ID] = true
		if item.Body.ClientID != clientID || item.Body.Flow != flow {
			return eris.Errorf("populate: batch mixes client/flow (%s/%s vs %s/%s)",
				clientID, flow, item.Body.ClientID, item.Body.Flow)
		}
	}
	return nil
}

func validateRequest(req model.PopulateRequest) error {
	if req.ClientID == "" {
		return eris.New("populate: request missing client id")
	}
	if req.Label == "" {
		return eris.New("populate: request missing label")
	}
	if len(req.Attributes) == 0 {
		return eris.New("populate: request has no attributes")
	}
	if req.Language != "" {
		if _, err := language.Parse(req.Language); err != nil {
			return eris.Wrapf(err, "populate: invalid language %q", req.Language)
		}
	}
	seen := map[string]bool{}
	for _, attr := range req.Attributes {
		if attr.Code == "" {
			return eris.New("populate: attribute missing code")
		}
		if seen[attr.Code] {
			return eris.Errorf("populate: duplicate attribute code %q", attr.Code)
		}
		seen[attr.Code] = true
	}
	return nil
}
