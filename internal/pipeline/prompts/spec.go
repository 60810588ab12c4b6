package prompts

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/draftforge/draftforge-backend/internal/domain"
)

// Validator rejects inputs a template cannot render meaningfully.
type Validator func(Input) error

// Spec is the declaration format for one generation kind: a persona/body
// template plus the strict output-schema block that always closes the prompt.
type Spec struct {
	Kind       domain.GenerationKind
	Version    int
	Body       string
	Schema     string
	Validators []Validator
}

// Template is a compiled Spec.
type Template struct {
	Kind     domain.GenerationKind
	Version  int
	Schema   string
	Body     func(Input) string
	Validate Validator
}

var funcMap = template.FuncMap{
	"join": strings.Join,
	"numbered": func(items []string) string {
		var b strings.Builder
		for i, it := range items {
			fmt.Fprintf(&b, "%d. %s\n", i+1, it)
		}
		return strings.TrimRight(b.String(), "\n")
	},
	"bulleted": func(items []string) string {
		var b strings.Builder
		for _, it := range items {
			fmt.Fprintf(&b, "- %s\n", it)
		}
		return strings.TrimRight(b.String(), "\n")
	},
}

// MakeTemplate compiles a Spec.
func MakeTemplate(s Spec) (Template, error) {
	if strings.TrimSpace(string(s.Kind)) == "" {
		return Template{}, fmt.Errorf("missing prompt kind")
	}
	if s.Version <= 0 {
		return Template{}, fmt.Errorf("invalid version for %s", s.Kind)
	}
	if strings.TrimSpace(s.Schema) == "" {
		return Template{}, fmt.Errorf("missing output schema for %s", s.Kind)
	}
	bodyT, err := template.New("body").Funcs(funcMap).Option("missingkey=zero").Parse(s.Body)
	if err != nil {
		return Template{}, fmt.Errorf("%s body template parse: %w", s.Kind, err)
	}

	tt := Template{
		Kind:    s.Kind,
		Version: s.Version,
		Schema:  strings.TrimSpace(s.Schema),
		Body: func(in Input) string {
			var b bytes.Buffer
			_ = bodyT.Execute(&b, in)
			return strings.TrimSpace(b.String())
		},
	}
	if len(s.Validators) > 0 {
		validators := s.Validators
		tt.Validate = func(in Input) error {
			for _, v := range validators {
				if v == nil {
					continue
				}
				if err := v(in); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return tt, nil
}

// RegisterSpec compiles and registers, panicking on a bad declaration. Called
// from RegisterAll at init time only.
func RegisterSpec(s Spec) {
	t, err := MakeTemplate(s)
	if err != nil {
		panic(err)
	}
	Register(t)
}
