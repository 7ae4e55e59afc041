package populate

import (
	"math/rand/v2"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/pimstack/aipopulate/internal/model"
	"github.com/pimstack/aipopulate/internal/reconcile"
	"github.com/pimstack/aipopulate/internal/settings"
)

// promptAttribute is the template-facing view of one attribute. Option
// lists above the configured threshold are sampled down so the prompt
// stays bounded; coercion and repair always see the full list.
type promptAttribute struct {
	Code           string
	Label          string
	Description    string
	Type           string
	Options        []string
	OptionsSampled bool
}

// promptType maps the internal value type to the vocabulary prompts use.
// String arrays read as multi-choice in the prompt because the model
// answers both the same way, with a list of short strings.
func promptType(vt model.ValueType) string {
	if vt == model.ValueTypeStringArray {
		return string(model.ValueTypeMultiChoice)
	}
	return string(vt)
}

func buildPromptAttributes(attrs []model.Attribute, cfg settings.GenerationConfig) []promptAttribute {
	out := make([]promptAttribute, 0, len(attrs))
	for _, attr := range attrs {
		pa := promptAttribute{
			Code:        attr.Code,
			Label:       attr.Label,
			Description: attr.Description,
			Type:        promptType(attr.ValueType),
		}
		if attr.ValueType.Selectable() {
			pa.Options = attr.OptionValues()
			if len(pa.Options) > cfg.EffectiveMaxOptions() {
				pa.Options = sampleOptions(pa.Options, cfg.EffectiveExamplesCount(), cfg.RandomOptionSampling)
				pa.OptionsSampled = true
			}
		}
		out = append(out, pa)
	}
	return out
}

// sampleOptions picks count representative values, either evenly spaced
// across the list or at random. Original order is preserved either way.
func sampleOptions(options []string, count int, random bool) []string {
	if count <= 0 || count >= len(options) {
		return options
	}
	if random {
		idx := rand.Perm(len(options))[:count]
		sort.Ints(idx)
		out := make([]string, 0, count)
		for _, i := range idx {
			out = append(out, options[i])
		}
		return out
	}

	step := float64(len(options)) / float64(count)
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, options[int(float64(i)*step)])
	}
	return out
}

// templateVars builds the variable map both prompt templates render with.
func templateVars(req model.PopulateRequest, attrs []promptAttribute) map[string]any {
	attrVars := make([]map[string]any, 0, len(attrs))
	for _, a := range attrs {
		attrVars = append(attrVars, map[string]any{
			"code":            a.Code,
			"label":           a.Label,
			"description":     a.Description,
			"type":            a.Type,
			"options":         a.Options,
			"options_sampled": a.OptionsSampled,
		})
	}
	return map[string]any{
		"label":      req.Label,
		"language":   req.Language,
		"client_id":  req.ClientID,
		"flow":       req.Flow,
		"attributes": attrVars,
	}
}

// renderPrompts produces the system and user prompt for one request.
func (s *Service) renderPrompts(flow *settings.FlowSettings, req model.PopulateRequest, attrs []promptAttribute) (system, user string, err error) {
	vars := templateVars(req, attrs)
	system, err = s.renderer.Render(flow.SetupPrompt, vars)
	if err != nil {
		return "", "", eris.Wrap(err, "populate: render setup prompt")
	}
	user, err = s.renderer.Render(flow.Prompt, vars)
	if err != nil {
		return "", "", eris.Wrap(err, "populate: render prompt")
	}
	return system, user, nil
}

// mappingPrompts adapts flow settings to the reconciler's prompt contract.
type mappingPrompts struct {
	renderer renderer
	flow     *settings.FlowSettings
}

type renderer interface {
	Render(source string, vars map[string]any) (string, error)
}

func (m mappingPrompts) MappingPrompt(chunk []reconcile.MappingInput) (string, string, error) {
	attrVars := make([]map[string]any, 0, len(chunk))
	for _, in := range chunk {
		attrVars = append(attrVars, map[string]any{
			"code":    in.Code,
			"label":   in.Label,
			"options": in.OptionValues,
			"values":  in.RawValues,
		})
	}
	vars := map[string]any{"attributes": attrVars}

	system, err := m.renderer.Render(m.flow.OptionsMappingSetupPrompt, vars)
	if err != nil {
		return "", "", eris.Wrap(err, "populate: render mapping setup prompt")
	}
	user, err := m.renderer.Render(m.flow.OptionsMappingPrompt, vars)
	if err != nil {
		return "", "", eris.Wrap(err, "populate: render mapping prompt")
	}
	return system, user, nil
}
