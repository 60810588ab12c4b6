package prompts

import (
	"fmt"
	"strings"

	"github.com/draftforge/draftforge-backend/internal/domain"
)

var registry = map[domain.GenerationKind]Template{}

// Register registers a compiled Template.
func Register(t Template) {
	registry[t.Kind] = t
}

// Build renders the full prompt for a generation request: persona/body, then
// the verbatim exclusion block, then the focus-angle clause, then the strict
// output-schema declaration last. Pure function of its inputs.
func Build(kind domain.GenerationKind, in Input) (string, error) {
	t, ok := registry[kind]
	if !ok {
		return "", fmt.Errorf("unknown prompt kind: %s", string(kind))
	}
	if t.Validate != nil {
		if err := t.Validate(in); err != nil {
			return "", fmt.Errorf("%s: %w", string(kind), err)
		}
	}

	var b strings.Builder
	b.WriteString(t.Body(in))

	if len(in.Exclusions) > 0 {
		b.WriteString("\n\nDo NOT generate any of the following titles, or close paraphrases of them:\n")
		for _, ex := range in.Exclusions {
			b.WriteString("- ")
			b.WriteString(ex)
			b.WriteString("\n")
		}
	}

	if strings.TrimSpace(in.FocusAngle) != "" {
		b.WriteString("\nFocus specifically on this angle: ")
		b.WriteString(strings.TrimSpace(in.FocusAngle))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(t.Schema)
	return strings.TrimSpace(b.String()), nil
}

// BuildRequest renders a prompt straight from a GenerationRequest plus the
// pre-assembled Input for its kind, folding in the request's constraint
// fields so callers cannot desynchronize them.
func BuildRequest(req domain.GenerationRequest, in Input) (string, error) {
	in.Exclusions = req.Exclusions
	if strings.TrimSpace(req.FocusAngle) != "" {
		in.FocusAngle = req.FocusAngle
	}
	return Build(req.Kind, in)
}

// Version reports the registered template version for cache-key mixing.
func Version(kind domain.GenerationKind) int {
	if t, ok := registry[kind]; ok {
		return t.Version
	}
	return 0
}
