package reconcile

import "sort"

// DefaultChunkLimit bounds the total option count per mapping request.
const DefaultChunkLimit = 100

// MappingInput is one attribute's merged mapping work: every raw value
// still unresolved for that code across the whole batch, plus the
// permitted option values.
type MappingInput struct {
	Code         string
	Label        string
	OptionValues []string
	RawValues    []string
}

// MergeSelections unions queued selections by attribute code. Raw values
// are deduplicated preserving first-seen order; label and options come
// from the first occurrence of each code.
func MergeSelections(selections []UnresolvedSelection) []MappingInput {
	var order []string
	byCode := map[string]*MappingInput{}
	seen := map[string]map[string]bool{}

	for _, sel := range selections {
		in, ok := byCode[sel.Code]
		if !ok {
			in = &MappingInput{
				Code:         sel.Code,
				Label:        sel.Label,
				OptionValues: sel.OptionValues,
			}
			byCode[sel.Code] = in
			seen[sel.Code] = map[string]bool{}
			order = append(order, sel.Code)
		}
		for _, raw := range sel.RawValues {
			if raw == "" || seen[sel.Code][raw] {
				continue
			}
			seen[sel.Code][raw] = true
			in.RawValues = append(in.RawValues, raw)
		}
	}

	out := make([]MappingInput, 0, len(order))
	for _, code := range order {
		if len(byCode[code].RawValues) > 0 {
			out = append(out, *byCode[code])
		}
	}
	return out
}

// Chunk partitions mapping inputs so each chunk's total option count stays
// within limit, using first-fit-decreasing. A placement that lands exactly
// on the limit is accepted. An input whose own option count reaches the
// limit gets a dedicated chunk.
func Chunk(inputs []MappingInput, limit int) [][]MappingInput {
	if limit <= 0 {
		limit = DefaultChunkLimit
	}

	var chunks [][]MappingInput
	var fill []int
	var rest []MappingInput

	for _, in := range inputs {
		if len(in.OptionValues) >= limit {
			chunks = append(chunks, []MappingInput{in})
			fill = append(fill, limit)
			continue
		}
		rest = append(rest, in)
	}

	sort.SliceStable(rest, func(i, j int) bool {
		return len(rest[i].OptionValues) > len(rest[j].OptionValues)
	})

	for _, in := range rest {
		placed := false
		for i := range chunks {
			if fill[i]+len(in.OptionValues) <= limit {
				chunks[i] = append(chunks[i], in)
				fill[i] += len(in.OptionValues)
				placed = true
				break
			}
		}
		if !placed {
			chunks = append(chunks, []MappingInput{in})
			fill = append(fill, len(in.OptionValues))
		}
	}
	return chunks
}
