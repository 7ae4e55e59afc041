package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchOptionDirect(t *testing.T) {
	m := MatchOption("Red", []string{"Red", "Blue"})
	assert.Equal(t, MatchedDirectly, m.Stage)
	assert.Equal(t, "Red", m.Canonical)
}

func TestMatchOptionCaseInsensitive(t *testing.T) {
	m := MatchOption("red", []string{"Red", "Blue"})
	assert.Equal(t, MatchedCaseInsensitive, m.Stage)
	assert.Equal(t, "Red", m.Canonical)

	m = MatchOption("BLUE", []string{"Red", "Blue"})
	assert.Equal(t, MatchedCaseInsensitive, m.Stage)
	assert.Equal(t, "Blue", m.Canonical)
}

func TestMatchOptionExactWinsOverFold(t *testing.T) {
	// Both spellings are declared; the exact one must win.
	m := MatchOption("red", []string{"Red", "red"})
	assert.Equal(t, MatchedDirectly, m.Stage)
	assert.Equal(t, "red", m.Canonical)
}

func TestMatchOptionUnresolved(t *testing.T) {
	m := MatchOption("Crimson", []string{"Red", "Blue"})
	assert.Equal(t, Unresolved, m.Stage)
	assert.Empty(t, m.Canonical)
}
