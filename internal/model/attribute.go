package model

import "time"

// ValueType tags the kind of value an attribute holds.
type ValueType string

const (
	ValueTypeBoolean       ValueType = "boolean"
	ValueTypeInteger       ValueType = "integer"
	ValueTypeDecimal       ValueType = "decimal"
	ValueTypeText          ValueType = "text"
	ValueTypeFormattedText ValueType = "formatted-text"
	ValueTypeDate          ValueType = "date"
	ValueTypeDateRange     ValueType = "date-range"
	ValueTypeSingleChoice  ValueType = "single-choice"
	ValueTypeMultiChoice   ValueType = "multi-choice"
	ValueTypeStringArray   ValueType = "string-array"
)

// Selectable reports whether the value type carries a closed option set.
func (t ValueType) Selectable() bool {
	return t == ValueTypeSingleChoice || t == ValueTypeMultiChoice
}

// AttributeOption is one permissible value of a selectable attribute. Code is
// the stable identifier; Value is the human-readable display form the model
// sees and answers with.
type AttributeOption struct {
	Code  string `json:"code"`
	Value string `json:"value"`
}

// AttributeSettings carries optional validation metadata for an attribute.
type AttributeSettings struct {
	Minimum        *float64          `json:"minimum,omitempty"`
	Maximum        *float64          `json:"maximum,omitempty"`
	AllowNegative  *bool             `json:"allowNegative,omitempty"`
	FractionDigits *int              `json:"fractionDigits,omitempty"`
	ValidationRule string            `json:"validationRule,omitempty"`
	AllowHTML      *bool             `json:"allowHtml,omitempty"`
	MinimumDate    *time.Time        `json:"minimumDate,omitempty"`
	MaximumDate    *time.Time        `json:"maximumDate,omitempty"`
	Options        []AttributeOption `json:"options,omitempty"`
}

// Attribute is a typed catalog field to be populated by the model. Immutable
// once built for a request.
type Attribute struct {
	ID          int64              `json:"id"`
	Code        string             `json:"code"`
	Label       string             `json:"label"`
	Description string             `json:"description,omitempty"`
	ValueType   ValueType          `json:"valueType"`
	Settings    *AttributeSettings `json:"settings,omitempty"`
}

// Options returns the attribute's declared option list, or nil.
func (a *Attribute) Options() []AttributeOption {
	if a.Settings == nil {
		return nil
	}
	return a.Settings.Options
}

// OptionValues returns the distinct display values of the attribute's options
// in declaration order.
func (a *Attribute) OptionValues() []string {
	opts := a.Options()
	values := make([]string, 0, len(opts))
	seen := make(map[string]struct{}, len(opts))
	for _, o := range opts {
		if _, ok := seen[o.Value]; ok {
			continue
		}
		seen[o.Value] = struct{}{}
		values = append(values, o.Value)
	}
	return values
}
