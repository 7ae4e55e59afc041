// Package reconcile resolves free-text categorical answers onto an
// attribute's declared option list. Cheap string matching runs first;
// whatever survives is merged, chunked, and sent back to the generation
// capability for an explicit mapping pass.
package reconcile

import "strings"

// MatchStage identifies which tier of the matching pipeline accepted a
// raw value.
type MatchStage int

const (
	// MatchedDirectly means the raw value equals an option display value.
	MatchedDirectly MatchStage = iota
	// MatchedCaseInsensitive means the raw value matched an option display
	// value ignoring case and was rewritten to the canonical spelling.
	MatchedCaseInsensitive
	// Unresolved means no option matched and the value needs the mapping
	// pass.
	Unresolved
)

// OptionMatch is the immutable outcome of matching one raw value.
type OptionMatch struct {
	Raw       string
	Canonical string
	Stage     MatchStage
}

// MatchOption runs the first two matching tiers against the option display
// values. Unresolved matches carry an empty Canonical.
func MatchOption(raw string, optionValues []string) OptionMatch {
	for _, v := range optionValues {
		if raw == v {
			return OptionMatch{Raw: raw, Canonical: v, Stage: MatchedDirectly}
		}
	}
	for _, v := range optionValues {
		if strings.EqualFold(raw, v) {
			return OptionMatch{Raw: raw, Canonical: v, Stage: MatchedCaseInsensitive}
		}
	}
	return OptionMatch{Raw: raw, Stage: Unresolved}
}

// UnresolvedSelection is one attribute's set of raw values that passed
// neither matching tier, queued for the mapping pass.
type UnresolvedSelection struct {
	Code         string
	Label        string
	Context      string
	RawValues    []string
	OptionValues []string
	// SingleSelectionOnly distinguishes single-choice repair, where a
	// missing mapping leaves the value unresolved, from multi-choice
	// repair, where unmapped elements are dropped.
	SingleSelectionOnly bool
}
