package populate

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pimstack/aipopulate/internal/coerce"
	"github.com/pimstack/aipopulate/internal/model"
	"github.com/pimstack/aipopulate/internal/reconcile"
)

// generationResult is the wire shape the response schema enforces.
type generationResult struct {
	Attributes map[string]resultAttribute `json:"attributes"`
	Sources    []resultSource             `json:"sources"`
}

type resultAttribute struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type resultSource struct {
	URL            string   `json:"url"`
	AttributeCodes []string `json:"attribute_codes"`
}

func parseGenerationResult(raw string) (*generationResult, error) {
	var result generationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, eris.Wrap(err, "populate: parse generation result")
	}
	return &result, nil
}

// collectUnresolved runs the first two matching tiers over one item's
// selectable answers and returns whatever needs the mapping pass.
func collectUnresolved(req model.PopulateRequest, result *generationResult) []reconcile.UnresolvedSelection {
	var selections []reconcile.UnresolvedSelection
	for _, attr := range req.Attributes {
		if !attr.ValueType.Selectable() {
			continue
		}
		res, ok := result.Attributes[attr.Code]
		if !ok {
			continue
		}
		options := attr.OptionValues()

		var unresolved []string
		for _, raw := range rawSelections(attr, res.Value) {
			if m := reconcile.MatchOption(raw, options); m.Stage == reconcile.Unresolved {
				unresolved = append(unresolved, raw)
			}
		}
		if len(unresolved) == 0 {
			continue
		}
		selections = append(selections, reconcile.UnresolvedSelection{
			Code:                attr.Code,
			Label:               attr.Label,
			Context:             req.Label,
			RawValues:           unresolved,
			OptionValues:        options,
			SingleSelectionOnly: attr.ValueType == model.ValueTypeSingleChoice,
		})
	}
	return selections
}

// rawSelections normalizes a selectable answer into its raw string values.
func rawSelections(attr model.Attribute, value any) []string {
	if attr.ValueType == model.ValueTypeSingleChoice {
		if s, ok := value.(string); ok && s != "" {
			return []string{s}
		}
		return nil
	}
	list, ok := value.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// repairSelection rewrites a selectable answer using match results and the
// mapping table. Single-choice values with no mapping stay as-is and fail
// coercion; multi-choice elements with no mapping are dropped, and a list
// that empties out reverts to the raw elements so the attribute reads as
// unpopulated rather than silently empty.
func repairSelection(attr model.Attribute, value any, mapping reconcile.Mapping) any {
	options := attr.OptionValues()

	repairOne := func(raw string) (string, bool) {
		m := reconcile.MatchOption(raw, options)
		switch m.Stage {
		case reconcile.MatchedDirectly:
			return m.Canonical, true
		case reconcile.MatchedCaseInsensitive:
			zap.L().Info("option matched case-insensitively",
				zap.String("attribute", attr.Code),
				zap.String("raw", raw),
				zap.String("canonical", m.Canonical))
			return m.Canonical, true
		}
		if mapped, ok := mapping.Lookup(attr.Code, raw); ok {
			return mapped, true
		}
		return raw, false
	}

	if attr.ValueType == model.ValueTypeSingleChoice {
		raw, ok := value.(string)
		if !ok {
			return value
		}
		repaired, _ := repairOne(raw)
		return repaired
	}

	list, ok := value.([]any)
	if !ok {
		return value
	}
	var repaired []any
	for _, item := range list {
		raw, ok := item.(string)
		if !ok {
			continue
		}
		if fixed, resolved := repairOne(raw); resolved {
			repaired = append(repaired, any(fixed))
		} else {
			zap.L().Warn("dropping unmappable multi-choice element",
				zap.String("attribute", attr.Code),
				zap.String("raw", raw))
		}
	}
	if len(repaired) == 0 {
		return value
	}
	return repaired
}

// buildResponse coerces one item's generation result into the final typed
// response.
func buildResponse(req model.PopulateRequest, result *generationResult, mapping reconcile.Mapping, appendSources bool) *model.PopulateResponse {
	resp := &model.PopulateResponse{}
	sources := validSources(req, result.Sources)

	for _, attr := range req.Attributes {
		res, ok := result.Attributes[attr.Code]
		if !ok {
			resp.UnpopulatedAttributeCodes = append(resp.UnpopulatedAttributeCodes, attr.Code)
			continue
		}

		value := res.Value
		if attr.ValueType.Selectable() {
			value = repairSelection(attr, value, mapping)
		}

		coerced, err := coerce.Coerce(value, attr.ValueType, attr.Settings)
		if err != nil {
			if !coerce.IsUnpopulated(err) {
				zap.L().Error("value coercion failed unexpectedly",
					zap.String("attribute", attr.Code),
					zap.Error(err))
			} else {
				zap.L().Debug("attribute left unpopulated",
					zap.String("attribute", attr.Code),
					zap.String("reason", err.Error()))
			}
			resp.UnpopulatedAttributeCodes = append(resp.UnpopulatedAttributeCodes, attr.Code)
			continue
		}

		urls := sources[attr.Code]
		reason := res.Reason
		if appendSources && len(urls) > 0 {
			reason = appendSourceList(reason, urls)
		}

		resp.PopulatedAttributes = append(resp.PopulatedAttributes, model.PopulatedAttribute{
			ID:         attr.ID,
			Code:       attr.Code,
			Value:      coerced,
			Confidence: coerce.ClampConfidence(res.Confidence),
			Reason:     reason,
			SourceURLs: urls,
		})
	}
	return resp
}

// validSources filters the reported sources down to absolute HTTPS URLs
// whose attribute references exist in the request, deduplicated per
// attribute in report order.
func validSources(req model.PopulateRequest, sources []resultSource) map[string][]string {
	out := map[string][]string{}
	seen := map[string]map[string]bool{}
	for _, src := range sources {
		u, err := url.Parse(strings.TrimSpace(src.URL))
		if err != nil || !u.IsAbs() || u.Scheme != "https" || u.Host == "" {
			zap.L().Warn("discarding invalid source url", zap.String("url", src.URL))
			continue
		}
		normalized := u.String()

		for _, code := range src.AttributeCodes {
			if req.FindAttribute(code) == nil {
				zap.L().Warn("source references unknown attribute",
					zap.String("url", normalized),
					zap.String("attribute", code))
				continue
			}
			if seen[code] == nil {
				seen[code] = map[string]bool{}
			}
			if seen[code][normalized] {
				continue
			}
			seen[code][normalized] = true
			out[code] = append(out[code], normalized)
		}
	}
	return out
}

func appendSourceList(reason string, urls []string) string {
	var sb strings.Builder
	sb.WriteString(reason)
	sb.WriteString("\n\nSources:")
	for _, u := range urls {
		sb.WriteString("\n- ")
		sb.WriteString(u)
	}
	return sb.String()
}
