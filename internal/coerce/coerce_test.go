package coerce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pimstack/aipopulate/internal/model"
)

func colorSettings() *model.AttributeSettings {
	return &model.AttributeSettings{
		Options: []model.AttributeOption{
			{Code: "RED", Value: "Red"},
			{Code: "BLUE", Value: "Blue"},
			{Code: "GREEN", Value: "Green"},
		},
	}
}

func TestCoerceBoolean(t *testing.T) {
	v, err := Coerce("true", model.ValueTypeBoolean, nil)
	require.NoError(t, err)
	assert.Equal(t, model.BoolValue(true), v)

	v, err = Coerce(false, model.ValueTypeBoolean, nil)
	require.NoError(t, err)
	assert.Equal(t, model.BoolValue(false), v)

	_, err = Coerce("yes", model.ValueTypeBoolean, nil)
	assert.True(t, IsUnpopulated(err))
}

func TestCoerceInteger(t *testing.T) {
	v, err := Coerce("42", model.ValueTypeInteger, nil)
	require.NoError(t, err)
	assert.Equal(t, model.IntValue(42), v)

	// JSON numbers arrive as float64; whole numbers must still parse.
	v, err = Coerce(float64(25), model.ValueTypeInteger, nil)
	require.NoError(t, err)
	assert.Equal(t, model.IntValue(25), v)

	_, err = Coerce("25.5", model.ValueTypeInteger, nil)
	assert.True(t, IsUnpopulated(err))

	_, err = Coerce("", model.ValueTypeInteger, nil)
	assert.True(t, IsUnpopulated(err))
}

func TestCoerceDecimal(t *testing.T) {
	v, err := Coerce("3.14", model.ValueTypeDecimal, nil)
	require.NoError(t, err)
	assert.Equal(t, model.FloatValue(3.14), v)

	_, err = Coerce("n/a", model.ValueTypeDecimal, nil)
	assert.True(t, IsUnpopulated(err))
}

func TestCoerceText(t *testing.T) {
	v, err := Coerce("hello", model.ValueTypeText, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StringValue("hello"), v)

	_, err = Coerce("   ", model.ValueTypeText, nil)
	assert.True(t, IsUnpopulated(err))

	_, err = Coerce("", model.ValueTypeFormattedText, nil)
	assert.True(t, IsUnpopulated(err))
}

func TestCoerceDate(t *testing.T) {
	v, err := Coerce("2024-03-15", model.ValueTypeDate, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StringValue("2024-03-15"), v)

	for _, bad := range []string{"15/03/2024", "2024-3-5", "2024-13-01", "March 15, 2024", ""} {
		_, err = Coerce(bad, model.ValueTypeDate, nil)
		assert.True(t, IsUnpopulated(err), "expected unpopulated for %q", bad)
	}
}

func TestCoerceDateRange(t *testing.T) {
	raw := map[string]any{"from": "2024-01-01", "to": "2024-12-31"}
	v, err := Coerce(raw, model.ValueTypeDateRange, nil)
	require.NoError(t, err)
	assert.Equal(t, model.DateRangeValue{From: "2024-01-01", To: "2024-12-31"}, v)

	_, err = Coerce(map[string]any{"from": "2024-01-01", "to": "soon"}, model.ValueTypeDateRange, nil)
	assert.True(t, IsUnpopulated(err))

	_, err = Coerce("2024-01-01", model.ValueTypeDateRange, nil)
	assert.True(t, IsUnpopulated(err))
}

func TestCoerceSingleChoice(t *testing.T) {
	// The stored result is the option code, never the display value.
	v, err := Coerce("Red", model.ValueTypeSingleChoice, colorSettings())
	require.NoError(t, err)
	assert.Equal(t, model.StringValue("RED"), v)

	// Raw display strings that don't match exactly stay unresolved here;
	// case-insensitive repair happens upstream of coercion.
	_, err = Coerce("red", model.ValueTypeSingleChoice, colorSettings())
	assert.True(t, IsUnpopulated(err))

	_, err = Coerce("Red", model.ValueTypeSingleChoice, nil)
	assert.True(t, IsUnpopulated(err))
}

func TestCoerceMultiChoice(t *testing.T) {
	v, err := Coerce([]any{"Red", "Blue", "Red"}, model.ValueTypeMultiChoice, colorSettings())
	require.NoError(t, err)
	assert.Equal(t, model.StringListValue{"RED", "BLUE"}, v)

	// Unknown elements are dropped; survivors keep the attribute populated.
	v, err = Coerce([]any{"Red", "Purple"}, model.ValueTypeMultiChoice, colorSettings())
	require.NoError(t, err)
	assert.Equal(t, model.StringListValue{"RED"}, v)

	// Zero resolvable elements unpopulates the whole attribute.
	_, err = Coerce([]any{"Purple", "Cyan"}, model.ValueTypeMultiChoice, colorSettings())
	assert.True(t, IsUnpopulated(err))

	_, err = Coerce([]any{}, model.ValueTypeMultiChoice, colorSettings())
	assert.True(t, IsUnpopulated(err))
}

func TestCoerceStringArray(t *testing.T) {
	v, err := Coerce([]any{"a, b", " ", "c"}, model.ValueTypeStringArray, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StringListValue{"a", "b", "c"}, v)

	v, err = Coerce([]any{"x", "x", " y "}, model.ValueTypeStringArray, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StringListValue{"x", "y"}, v)

	_, err = Coerce([]any{" ", ", ,"}, model.ValueTypeStringArray, nil)
	assert.True(t, IsUnpopulated(err))
}

func TestCoerceIdempotent(t *testing.T) {
	// Re-running coercion on an already-coerced valid value yields the same
	// value.
	first, err := Coerce("42", model.ValueTypeInteger, nil)
	require.NoError(t, err)
	second, err := Coerce(first, model.ValueTypeInteger, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	first, err = Coerce([]any{"a, b", "c"}, model.ValueTypeStringArray, nil)
	require.NoError(t, err)
	second, err = Coerce(first, model.ValueTypeStringArray, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	first, err = Coerce("true", model.ValueTypeBoolean, nil)
	require.NoError(t, err)
	second, err = Coerce(first, model.ValueTypeBoolean, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-0.3))
	assert.Equal(t, 1.0, ClampConfidence(1.7))
	assert.Equal(t, 0.42, ClampConfidence(0.42))
}

func TestCoerceUnsupportedType(t *testing.T) {
	_, err := Coerce("x", model.ValueType("geo-point"), nil)
	require.Error(t, err)
	assert.False(t, IsUnpopulated(err))
}
