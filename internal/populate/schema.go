package populate

import (
	"github.com/pimstack/aipopulate/internal/coerce"
	"github.com/pimstack/aipopulate/internal/model"
)

// responseSchema builds the JSON schema the generation call is bound to:
// one entry per attribute code plus a shared source list. Hand-built
// because the shape depends on the request's attribute set.
func responseSchema(attrs []model.Attribute) map[string]any {
	properties := map[string]any{}
	required := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		properties[attr.Code] = map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []string{"value", "confidence", "reason"},
			"properties": map[string]any{
				"value":      valueSchema(attr),
				"confidence": map[string]any{"type": "number"},
				"reason":     map[string]any{"type": "string"},
			},
		}
		required = append(required, attr.Code)
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"attributes", "sources"},
		"properties": map[string]any{
			"attributes": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             required,
				"properties":           properties,
			},
			"sources": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"url", "attribute_codes"},
					"properties": map[string]any{
						"url": map[string]any{"type": "string"},
						"attribute_codes": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
					},
				},
			},
		},
	}
}

func valueSchema(attr model.Attribute) map[string]any {
	switch attr.ValueType {
	case model.ValueTypeBoolean:
		return map[string]any{"type": "boolean"}
	case model.ValueTypeInteger:
		return map[string]any{"type": "integer"}
	case model.ValueTypeDecimal:
		return map[string]any{"type": "number"}
	case model.ValueTypeDate:
		return map[string]any{
			"type":        "string",
			"description": "Calendar date formatted " + coerce.DateFormat,
		}
	case model.ValueTypeDateRange:
		dateSchema := map[string]any{
			"type":        "string",
			"description": "Calendar date formatted " + coerce.DateFormat,
		}
		return map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []string{"from", "to"},
			"properties": map[string]any{
				"from": dateSchema,
				"to":   dateSchema,
			},
		}
	case model.ValueTypeMultiChoice, model.ValueTypeStringArray:
		return map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		}
	default:
		// text, formatted-text, single-choice
		return map[string]any{"type": "string"}
	}
}
