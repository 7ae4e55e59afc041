// Package render executes the stored prompt templates. Templates use
// Twig syntax via stick, which is what the settings UI that authors them
// produces.
package render

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tyler-sommer/stick"
)

// Renderer renders template source text with a variable map. Safe for
// concurrent use.
type Renderer struct {
	env *stick.Env
}

// New creates a renderer with no template loader; callers pass template
// source directly.
func New() *Renderer {
	return &Renderer{env: stick.New(nil)}
}

// Render executes the template source against the given variables.
func (r *Renderer) Render(source string, vars map[string]any) (string, error) {
	ctx := make(map[string]stick.Value, len(vars))
	for k, v := range vars {
		ctx[k] = v
	}

	var out strings.Builder
	if err := r.env.Execute(source, &out, ctx); err != nil {
		return "", eris.Wrap(err, "render: execute template")
	}
	return out.String(), nil
}
