// Package coerce converts raw model output into typed attribute values. It is
// pure: malformed input never panics or returns a transport error, it yields
// an UnpopulatedError carrying the reason so one bad field never aborts the
// rest of the attribute set.
package coerce

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pimstack/aipopulate/internal/model"
)

// DateFormat is the only calendar pattern accepted for date values.
const DateFormat = "2006-01-02"

// UnpopulatedError marks a value that failed coercion or validation. The
// attribute it belongs to is reported as unpopulated, not as an error.
type UnpopulatedError struct {
	Reason string
}

func (e *UnpopulatedError) Error() string {
	return e.Reason
}

func unpopulatedf(format string, args ...any) error {
	return &UnpopulatedError{Reason: fmt.Sprintf(format, args...)}
}

// IsUnpopulated reports whether err marks an unpopulated value.
func IsUnpopulated(err error) bool {
	var ue *UnpopulatedError
	return eris.As(err, &ue)
}

// Coerce validates and converts a raw model value per the attribute value
// type. Selectable types resolve display values to option codes using the
// declared options; the stored result is always the stable code.
func Coerce(raw any, valueType model.ValueType, settings *model.AttributeSettings) (model.Value, error) {
	switch valueType {
	case model.ValueTypeBoolean:
		return coerceBool(raw)
	case model.ValueTypeInteger:
		return coerceInt(raw)
	case model.ValueTypeDecimal:
		return coerceFloat(raw)
	case model.ValueTypeText, model.ValueTypeFormattedText:
		return coerceText(raw)
	case model.ValueTypeDate:
		return coerceDate(raw)
	case model.ValueTypeDateRange:
		return coerceDateRange(raw)
	case model.ValueTypeSingleChoice:
		return coerceSingleChoice(raw, settings)
	case model.ValueTypeMultiChoice:
		return coerceMultiChoice(raw, settings)
	case model.ValueTypeStringArray:
		return coerceStringArray(raw)
	default:
		return nil, eris.Errorf("coerce: unsupported value type %q", valueType)
	}
}

// ClampConfidence forces a confidence score into [0,1]. Out-of-range scores
// are clamped, never rejected.
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func coerceBool(raw any) (model.Value, error) {
	if b, ok := raw.(bool); ok {
		return model.BoolValue(b), nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(stringify(raw)))
	if err != nil {
		return nil, unpopulatedf("value %q is not a boolean", stringify(raw))
	}
	return model.BoolValue(b), nil
}

func coerceInt(raw any) (model.Value, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(stringify(raw)), 10, 64)
	if err != nil {
		return nil, unpopulatedf("value %q is not an integer", stringify(raw))
	}
	return model.IntValue(n), nil
}

func coerceFloat(raw any) (model.Value, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(stringify(raw)), 64)
	if err != nil {
		return nil, unpopulatedf("value %q is not a number", stringify(raw))
	}
	return model.FloatValue(f), nil
}

func coerceText(raw any) (model.Value, error) {
	s := stringify(raw)
	if strings.TrimSpace(s) == "" {
		return nil, unpopulatedf("value is empty")
	}
	return model.StringValue(s), nil
}

func coerceDate(raw any) (model.Value, error) {
	s := stringify(raw)
	if strings.TrimSpace(s) == "" {
		return nil, unpopulatedf("value is empty")
	}
	if !ValidDate(s) {
		return nil, unpopulatedf("value %q is not a valid %s date", s, DateFormat)
	}
	return model.StringValue(s), nil
}

func coerceDateRange(raw any) (model.Value, error) {
	from, to, ok := dateRangeBounds(raw)
	if !ok {
		return nil, unpopulatedf("value is not a date range")
	}
	if !ValidDate(from) {
		return nil, unpopulatedf("date range 'from' %q is not a valid %s date", from, DateFormat)
	}
	if !ValidDate(to) {
		return nil, unpopulatedf("date range 'to' %q is not a valid %s date", to, DateFormat)
	}
	return model.DateRangeValue{From: from, To: to}, nil
}

func coerceSingleChoice(raw any, settings *model.AttributeSettings) (model.Value, error) {
	s := stringify(raw)
	if strings.TrimSpace(s) == "" {
		return nil, unpopulatedf("value is empty")
	}
	if settings != nil {
		for _, opt := range settings.Options {
			if opt.Value == s {
				return model.StringValue(opt.Code), nil
			}
		}
	}
	return nil, unpopulatedf("value %q does not match any declared option", s)
}

func coerceMultiChoice(raw any, settings *model.AttributeSettings) (model.Value, error) {
	items, ok := stringSlice(raw)
	if !ok || len(items) == 0 {
		return nil, unpopulatedf("value is empty")
	}

	var codes []string
	seen := make(map[string]struct{})
	for _, item := range items {
		code, ok := findOptionCode(settings, item)
		if !ok {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		return nil, unpopulatedf("no values match any declared option")
	}
	return model.StringListValue(codes), nil
}

func coerceStringArray(raw any) (model.Value, error) {
	items, ok := stringSlice(raw)
	if !ok || len(items) == 0 {
		return nil, unpopulatedf("value is empty")
	}

	var result []string
	seen := make(map[string]struct{})
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			continue
		}
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, dup := seen[part]; dup {
				continue
			}
			seen[part] = struct{}{}
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return nil, unpopulatedf("value contains no usable elements")
	}
	return model.StringListValue(result), nil
}

// ValidDate reports whether s matches the fixed ISO-ordered calendar pattern.
func ValidDate(s string) bool {
	_, err := time.Parse(DateFormat, s)
	return err == nil && len(s) == len(DateFormat)
}

func findOptionCode(settings *model.AttributeSettings, display string) (string, bool) {
	if settings == nil {
		return "", false
	}
	for _, opt := range settings.Options {
		if opt.Value == display {
			return opt.Code, true
		}
	}
	return "", false
}

// stringify renders a raw JSON value in its invariant string form.
func stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case model.StringValue:
		return string(v)
	case model.BoolValue:
		return strconv.FormatBool(bool(v))
	case model.IntValue:
		return strconv.FormatInt(int64(v), 10)
	case model.FloatValue:
		return strconv.FormatFloat(float64(v), 'f', -1, 64)
	default:
		return ""
	}
}

func stringSlice(raw any) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return v, true
	case model.StringListValue:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func dateRangeBounds(raw any) (from, to string, ok bool) {
	switch v := raw.(type) {
	case model.DateRangeValue:
		return v.From, v.To, true
	case map[string]any:
		f, fok := v["from"].(string)
		t, tok := v["to"].(string)
		return f, t, fok && tok
	default:
		return "", "", false
	}
}
