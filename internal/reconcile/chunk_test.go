package reconcile

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func optionValues(n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("option-%d", i))
	}
	return out
}

func TestMergeSelectionsUnionsByCode(t *testing.T) {
	merged := MergeSelections([]UnresolvedSelection{
		{Code: "color", Label: "Color", RawValues: []string{"crimson", "navy"}, OptionValues: []string{"Red", "Blue"}},
		{Code: "size", Label: "Size", RawValues: []string{"huge"}, OptionValues: []string{"S", "M", "L"}},
		{Code: "color", Label: "Colour", RawValues: []string{"navy", "scarlet"}, OptionValues: []string{"Red", "Blue"}},
	})

	require.Len(t, merged, 2)
	assert.Equal(t, "color", merged[0].Code)
	assert.Equal(t, "Color", merged[0].Label)
	assert.Equal(t, []string{"crimson", "navy", "scarlet"}, merged[0].RawValues)
	assert.Equal(t, "size", merged[1].Code)
	assert.Equal(t, []string{"huge"}, merged[1].RawValues)
}

func TestMergeSelectionsDropsEmpty(t *testing.T) {
	merged := MergeSelections([]UnresolvedSelection{
		{Code: "color", RawValues: []string{""}},
	})
	assert.Empty(t, merged)
}

func TestChunkRespectsLimit(t *testing.T) {
	inputs := []MappingInput{
		{Code: "a", OptionValues: optionValues(40), RawValues: []string{"x"}},
		{Code: "b", OptionValues: optionValues(30), RawValues: []string{"x"}},
		{Code: "c", OptionValues: optionValues(30), RawValues: []string{"x"}},
		{Code: "d", OptionValues: optionValues(20), RawValues: []string{"x"}},
	}
	chunks := Chunk(inputs, 100)

	seen := map[string]int{}
	for _, chunk := range chunks {
		total := 0
		for _, in := range chunk {
			total += len(in.OptionValues)
			seen[in.Code]++
		}
		assert.LessOrEqual(t, total, 100)
	}
	// Every input appears exactly once.
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1, "d": 1}, seen)
}

func TestChunkExactFitSharesChunk(t *testing.T) {
	inputs := []MappingInput{
		{Code: "a", OptionValues: optionValues(60), RawValues: []string{"x"}},
		{Code: "b", OptionValues: optionValues(40), RawValues: []string{"x"}},
	}
	chunks := Chunk(inputs, 100)

	// A placement that lands exactly on the limit is still a fit.
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0], 2)
}

func TestChunkOversizedGetsDedicatedChunk(t *testing.T) {
	inputs := []MappingInput{
		{Code: "big", OptionValues: optionValues(150), RawValues: []string{"x"}},
		{Code: "edge", OptionValues: optionValues(100), RawValues: []string{"x"}},
		{Code: "small", OptionValues: optionValues(10), RawValues: []string{"x"}},
	}
	chunks := Chunk(inputs, 100)

	require.Len(t, chunks, 3)
	assert.Equal(t, "big", chunks[0][0].Code)
	require.Len(t, chunks[0], 1)
	assert.Equal(t, "edge", chunks[1][0].Code)
	require.Len(t, chunks[1], 1)
	assert.Equal(t, "small", chunks[2][0].Code)
}

func TestChunkFirstFitDecreasing(t *testing.T) {
	inputs := []MappingInput{
		{Code: "s1", OptionValues: optionValues(10), RawValues: []string{"x"}},
		{Code: "l1", OptionValues: optionValues(60), RawValues: []string{"x"}},
		{Code: "m1", OptionValues: optionValues(35), RawValues: []string{"x"}},
		{Code: "l2", OptionValues: optionValues(60), RawValues: []string{"x"}},
	}
	chunks := Chunk(inputs, 100)

	// Descending order packs l1+m1 together and l2+s1 together.
	require.Len(t, chunks, 2)
	codes := func(chunk []MappingInput) []string {
		out := make([]string, 0, len(chunk))
		for _, in := range chunk {
			out = append(out, in.Code)
		}
		return out
	}
	assert.Equal(t, []string{"l1", "m1"}, codes(chunks[0]))
	assert.Equal(t, []string{"l2", "s1"}, codes(chunks[1]))
}

func TestChunkZeroLimitUsesDefault(t *testing.T) {
	chunks := Chunk([]MappingInput{{Code: "a", OptionValues: optionValues(5), RawValues: []string{"x"}}}, 0)
	require.Len(t, chunks, 1)
}
